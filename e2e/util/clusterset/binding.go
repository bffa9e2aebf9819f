package clusterset

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"
	clusterv1beta2 "open-cluster-management.io/api/cluster/v1beta2"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/provision"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

// BindingBackend provisions ManagedClusterSetBindings in one namespace. A
// binding is named after the set it binds.
type BindingBackend struct {
	client    clusterclientset.Interface
	namespace string
}

var _ provision.Backend = &BindingBackend{}

func NewBindingBackend(client clusterclientset.Interface, namespace string) *BindingBackend {
	return &BindingBackend{client: client, namespace: namespace}
}

func (b *BindingBackend) Kind() string { return BindingKind }

func (b *BindingBackend) Lookup(ctx context.Context, name string) (resource.Existence, error) {
	existence, _, err := resource.Lookup(ctx, BindingKind, b.client.ClusterV1beta2().ManagedClusterSetBindings(b.namespace).Get, name)
	return existence, err
}

func (b *BindingBackend) Create(ctx context.Context, name string) error {
	binding := &clusterv1beta2.ManagedClusterSetBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: b.namespace,
		},
		Spec: clusterv1beta2.ManagedClusterSetBindingSpec{
			ClusterSet: name,
		},
	}
	_, err := b.client.ClusterV1beta2().ManagedClusterSetBindings(b.namespace).Create(ctx, binding, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (b *BindingBackend) PrepareDelete(ctx context.Context, name string) (provision.DeleteRequest, error) {
	return provision.PrepareDryRun(ctx, b.client.ClusterV1beta2().ManagedClusterSetBindings(b.namespace).Delete, name)
}

// Bound reports whether the hub has accepted the binding.
func (b *BindingBackend) Bound(ctx context.Context, name string) (bool, error) {
	existence, binding, err := resource.Lookup(ctx, BindingKind, b.client.ClusterV1beta2().ManagedClusterSetBindings(b.namespace).Get, name)
	if err != nil || existence != resource.Exists {
		return false, err
	}
	return meta.IsStatusConditionTrue(binding.Status.Conditions, clusterv1beta2.ClusterSetBindingBoundType), nil
}
