package remote

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/cli-runtime/pkg/resource"
	"k8s.io/client-go/rest"

	frameworkutil "github.com/stolostron/submariner-addon-e2e/e2e/util/framework"
)

//go:embed manifests/nginx.yaml
var nginxManifests []byte

const (
	// WorkloadName names the Deployment, Service and ServiceExport.
	WorkloadName = "nginx"
	// WorkloadPort is the port the Service exposes.
	WorkloadPort  = 8080
	DefaultImage  = "docker.io/nginxinc/nginx-unprivileged:stable-alpine"
	DefaultProbe  = "quay.io/curl/curl:latest"
	DefaultExpect = "Welcome to nginx"
)

// ServiceURL is the cluster set address of the exported workload.
func ServiceURL(namespace string) string {
	return fmt.Sprintf("http://%s.%s.svc.clusterset.local:%d", WorkloadName, namespace, WorkloadPort)
}

// Workload parses the embedded workload manifests and places them in
// namespace, running image. The result is a List ready for oc apply -f -.
func Workload(namespace, image string) ([]byte, []*unstructured.Unstructured, error) {
	getter, err := frameworkutil.NewClientGetter(&rest.Config{})
	if err != nil {
		return nil, nil, err
	}
	infos, err := resource.NewBuilder(getter).
		Unstructured().
		Local().
		Stream(bytes.NewReader(nginxManifests), "nginx.yaml").
		Flatten().
		Do().
		Infos()
	if err != nil {
		return nil, nil, fmt.Errorf("parse workload manifests: %w", err)
	}

	objects := make([]*unstructured.Unstructured, 0, len(infos))
	items := make([]any, 0, len(infos))
	for _, info := range infos {
		obj, ok := info.Object.(*unstructured.Unstructured)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected object %T in workload manifests", info.Object)
		}
		switch obj.GetKind() {
		case "Namespace":
			obj.SetName(namespace)
		case "Deployment":
			obj.SetNamespace(namespace)
			containers, _, _ := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
			for i := range containers {
				if container, ok := containers[i].(map[string]any); ok {
					container["image"] = image
				}
			}
			if err := unstructured.SetNestedSlice(obj.Object, containers, "spec", "template", "spec", "containers"); err != nil {
				return nil, nil, err
			}
		default:
			obj.SetNamespace(namespace)
		}
		objects = append(objects, obj)
		items = append(items, obj.Object)
	}

	list, err := json.Marshal(map[string]any{
		"apiVersion": "v1",
		"kind":       "List",
		"items":      items,
	})
	if err != nil {
		return nil, nil, err
	}
	return list, objects, nil
}

// NamespaceManifest is a Namespace object for oc apply -f -.
func NamespaceManifest(namespace string) ([]byte, error) {
	ns := &unstructured.Unstructured{}
	ns.SetAPIVersion("v1")
	ns.SetKind("Namespace")
	ns.SetName(namespace)
	return ns.MarshalJSON()
}
