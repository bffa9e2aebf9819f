// Package remote runs commands against member clusters with their own
// credentials and checks that a service exported on one member is reachable
// from another.
package remote

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

var ClusterDeploymentGVR = schema.GroupVersionResource{
	Group:    "hive.openshift.io",
	Version:  "v1",
	Resource: "clusterdeployments",
}

// Credentials log into the API server of one member cluster.
type Credentials struct {
	Cluster  string
	APIURL   string
	Username string
	Password string
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s (%s as %s)", c.Cluster, c.APIURL, c.Username)
}

func (c Credentials) Validate() error {
	switch {
	case c.Cluster == "":
		return fmt.Errorf("credentials have no cluster name")
	case c.APIURL == "":
		return fmt.Errorf("credentials of %s have no API URL", c.Cluster)
	case c.Username == "" || c.Password == "":
		return fmt.Errorf("credentials of %s have no username or password", c.Cluster)
	}
	return nil
}

// CredentialsFromHive reads the admin credentials hive stored for a cluster
// it provisioned, and the API URL the hub registered for it.
func CredentialsFromHive(ctx context.Context, dyn dynamic.Interface, kube kubernetes.Interface, clusters clusterclientset.Interface, cluster string) (Credentials, error) {
	creds := Credentials{Cluster: cluster}

	getDeployment := func(ctx context.Context, name string, opts metav1.GetOptions) (*unstructured.Unstructured, error) {
		return dyn.Resource(ClusterDeploymentGVR).Namespace(cluster).Get(ctx, name, opts)
	}
	existence, deployment, err := resource.Lookup(ctx, "clusterdeployment", getDeployment, cluster)
	if err != nil {
		return creds, err
	}
	if existence != resource.Exists {
		return creds, failure.New(failure.PreconditionMissing, "clusterdeployment/"+cluster, existence, nil)
	}

	secretName, _, _ := unstructured.NestedString(deployment.Object, "spec", "clusterMetadata", "adminPasswordSecretRef", "name")
	if secretName == "" {
		return creds, failure.New(failure.PreconditionMissing, "admin password secret of "+cluster, "", nil)
	}
	existence, secret, err := resource.Lookup(ctx, "secret", kube.CoreV1().Secrets(cluster).Get, secretName)
	if err != nil {
		return creds, err
	}
	if existence != resource.Exists {
		return creds, failure.New(failure.PreconditionMissing, "secret/"+secretName, existence, nil)
	}
	creds.Username, creds.Password = string(secret.Data[corev1.BasicAuthUsernameKey]), string(secret.Data[corev1.BasicAuthPasswordKey])

	managed, err := clusters.ClusterV1().ManagedClusters().Get(ctx, cluster, metav1.GetOptions{})
	if err != nil {
		return creds, fmt.Errorf("get managedcluster %s: %w", cluster, err)
	}
	for _, config := range managed.Spec.ManagedClusterClientConfigs {
		if config.URL != "" {
			creds.APIURL = config.URL
			break
		}
	}
	if creds.APIURL == "" {
		creds.APIURL, _, _ = unstructured.NestedString(deployment.Object, "status", "apiURL")
	}
	return creds, creds.Validate()
}
