package addon

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	addonv1alpha1 "open-cluster-management.io/api/addon/v1alpha1"
	addonclientset "open-cluster-management.io/api/client/addon/clientset/versioned"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/provision"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

const (
	// Name of the ManagedClusterAddOn and of every SubmarinerConfig.
	Name = "submariner"
	// InstallNamespace is where the add-on agent runs on a managed cluster.
	InstallNamespace = "submariner-operator"
	// BrokerName is the name of the Broker of every cluster set.
	BrokerName = "submariner-broker"
)

var (
	BrokerGVR = schema.GroupVersionResource{
		Group:    "submariner.io",
		Version:  "v1alpha1",
		Resource: "brokers",
	}
	SubmarinerConfigGVR = schema.GroupVersionResource{
		Group:    "submarineraddon.open-cluster-management.io",
		Version:  "v1alpha1",
		Resource: "submarinerconfigs",
	}
)

// BrokerNamespace is the namespace the hub reserves for the broker of a set.
func BrokerNamespace(set string) string {
	return set + "-broker"
}

// objectBackend provisions one kind of namespaced custom resource through the
// dynamic client.
type objectBackend struct {
	client    dynamic.Interface
	gvr       schema.GroupVersionResource
	kind      string
	namespace string
	build     func(name string) *unstructured.Unstructured
}

var _ provision.Backend = &objectBackend{}

func (b *objectBackend) resource() dynamic.ResourceInterface {
	return b.client.Resource(b.gvr).Namespace(b.namespace)
}

func (b *objectBackend) Kind() string {
	return fmt.Sprintf("%s %s", b.kind, b.namespace)
}

func (b *objectBackend) Lookup(ctx context.Context, name string) (resource.Existence, error) {
	get := func(ctx context.Context, name string, opts metav1.GetOptions) (*unstructured.Unstructured, error) {
		return b.resource().Get(ctx, name, opts)
	}
	existence, _, err := resource.Lookup(ctx, b.Kind(), get, name)
	return existence, err
}

func (b *objectBackend) Create(ctx context.Context, name string) error {
	obj := b.build(name)
	obj.SetNamespace(b.namespace)
	_, err := b.resource().Create(ctx, obj, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (b *objectBackend) PrepareDelete(ctx context.Context, name string) (provision.DeleteRequest, error) {
	del := func(ctx context.Context, name string, opts metav1.DeleteOptions) error {
		return b.resource().Delete(ctx, name, opts)
	}
	return provision.PrepareDryRun(ctx, del, name)
}

func newBrokerBackend(client dynamic.Interface, set string, globalnet bool) *objectBackend {
	return &objectBackend{
		client:    client,
		gvr:       BrokerGVR,
		kind:      "broker",
		namespace: BrokerNamespace(set),
		build: func(name string) *unstructured.Unstructured {
			return &unstructured.Unstructured{Object: map[string]any{
				"apiVersion": BrokerGVR.GroupVersion().String(),
				"kind":       "Broker",
				"metadata": map[string]any{
					"name": name,
				},
				"spec": map[string]any{
					"globalnetEnabled": globalnet,
				},
			}}
		},
	}
}

func newConfigBackend(client dynamic.Interface, cluster string, opts InstallOptions) *objectBackend {
	return &objectBackend{
		client:    client,
		gvr:       SubmarinerConfigGVR,
		kind:      "submarinerconfig",
		namespace: cluster,
		build: func(name string) *unstructured.Unstructured {
			spec := map[string]any{
				"IPSecNATTPort": int64(opts.NATTPort),
				"cableDriver":   "libreswan",
				"gatewayConfig": map[string]any{
					"gateways": int64(1),
				},
			}
			if opts.Downstream {
				spec["subscriptionConfig"] = map[string]any{
					"source":          opts.CatalogSource,
					"sourceNamespace": opts.CatalogSourceNamespace,
				}
			}
			return &unstructured.Unstructured{Object: map[string]any{
				"apiVersion": SubmarinerConfigGVR.GroupVersion().String(),
				"kind":       "SubmarinerConfig",
				"metadata": map[string]any{
					"name": name,
				},
				"spec": spec,
			}}
		},
	}
}

// managedClusterAddOnBackend provisions the submariner ManagedClusterAddOn
// in a managed cluster namespace.
type managedClusterAddOnBackend struct {
	client  addonclientset.Interface
	cluster string
}

var _ provision.Backend = &managedClusterAddOnBackend{}

func (b *managedClusterAddOnBackend) Kind() string {
	return "managedclusteraddon " + b.cluster
}

func (b *managedClusterAddOnBackend) Lookup(ctx context.Context, name string) (resource.Existence, error) {
	existence, _, err := resource.Lookup(ctx, b.Kind(), b.client.AddonV1alpha1().ManagedClusterAddOns(b.cluster).Get, name)
	return existence, err
}

func (b *managedClusterAddOnBackend) Create(ctx context.Context, name string) error {
	addOn := &addonv1alpha1.ManagedClusterAddOn{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: b.cluster,
		},
		Spec: addonv1alpha1.ManagedClusterAddOnSpec{
			InstallNamespace: InstallNamespace,
		},
	}
	_, err := b.client.AddonV1alpha1().ManagedClusterAddOns(b.cluster).Create(ctx, addOn, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (b *managedClusterAddOnBackend) PrepareDelete(ctx context.Context, name string) (provision.DeleteRequest, error) {
	return provision.PrepareDryRun(ctx, b.client.AddonV1alpha1().ManagedClusterAddOns(b.cluster).Delete, name)
}
