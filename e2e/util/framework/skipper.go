package framework

import (
	"context"

	"k8s.io/client-go/discovery"
	addonv1alpha1 "open-cluster-management.io/api/addon/v1alpha1"
	clusterv1 "open-cluster-management.io/api/cluster/v1"
	clusterv1beta2 "open-cluster-management.io/api/cluster/v1beta2"

	e2eskipper "k8s.io/kubernetes/test/e2e/framework/skipper"
)

// SkipUnlessOCMHub skips the test unless the cluster serves the Open Cluster
// Management hub APIs the suite drives.
func SkipUnlessOCMHub(ctx context.Context, client discovery.DiscoveryInterface) {
	for _, gv := range HubGroupVersions {
		if _, err := client.ServerResourcesForGroupVersion(gv); err != nil {
			e2eskipper.Skipf("cluster is not an Open Cluster Management hub, %s is not served: %v", gv, err)
		}
	}
}

// HubGroupVersions are the API group versions a hub must serve.
var HubGroupVersions = []string{
	clusterv1.GroupVersion.String(),
	clusterv1beta2.GroupVersion.String(),
	addonv1alpha1.GroupVersion.String(),
}

// SkipUnlessServed skips the test unless the group version is served.
func SkipUnlessServed(ctx context.Context, client discovery.DiscoveryInterface, groupVersion string) {
	if _, err := client.ServerResourcesForGroupVersion(groupVersion); err != nil {
		e2eskipper.Skipf("%s is not served: %v", groupVersion, err)
	}
}
