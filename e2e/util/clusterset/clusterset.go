// Package clusterset provisions ManagedClusterSets, their bindings and their
// members on an Open Cluster Management hub.
package clusterset

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"
	clusterv1beta2 "open-cluster-management.io/api/cluster/v1beta2"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/provision"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

const (
	// ClusterSetKind names ManagedClusterSets in logs and failures.
	ClusterSetKind = "managedclusterset"
	// BindingKind names ManagedClusterSetBindings in logs and failures.
	BindingKind = "managedclustersetbinding"
)

// ClusterSetBackend provisions ManagedClusterSets selecting their members by
// the exclusive clusterset label.
type ClusterSetBackend struct {
	client clusterclientset.Interface
}

var _ provision.Backend = &ClusterSetBackend{}

func NewClusterSetBackend(client clusterclientset.Interface) *ClusterSetBackend {
	return &ClusterSetBackend{client: client}
}

func (b *ClusterSetBackend) Kind() string { return ClusterSetKind }

func (b *ClusterSetBackend) Lookup(ctx context.Context, name string) (resource.Existence, error) {
	existence, _, err := resource.Lookup(ctx, ClusterSetKind, b.client.ClusterV1beta2().ManagedClusterSets().Get, name)
	return existence, err
}

func (b *ClusterSetBackend) Create(ctx context.Context, name string) error {
	set := &clusterv1beta2.ManagedClusterSet{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
		},
		Spec: clusterv1beta2.ManagedClusterSetSpec{
			ClusterSelector: clusterv1beta2.ManagedClusterSelector{
				SelectorType: clusterv1beta2.ExclusiveClusterSetLabel,
			},
		},
	}
	_, err := b.client.ClusterV1beta2().ManagedClusterSets().Create(ctx, set, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (b *ClusterSetBackend) PrepareDelete(ctx context.Context, name string) (provision.DeleteRequest, error) {
	return provision.PrepareDryRun(ctx, b.client.ClusterV1beta2().ManagedClusterSets().Delete, name)
}

// Acknowledged reports whether the set exists and the hub controller has
// reported on it, which is what the console waits for before showing the set.
func (b *ClusterSetBackend) Acknowledged(ctx context.Context, name string) (bool, error) {
	existence, set, err := resource.Lookup(ctx, ClusterSetKind, b.client.ClusterV1beta2().ManagedClusterSets().Get, name)
	if err != nil || existence != resource.Exists {
		return false, err
	}
	return len(set.Status.Conditions) > 0, nil
}

// Empty reports whether the hub controller considers the set to have no members.
func (b *ClusterSetBackend) Empty(ctx context.Context, name string) (bool, error) {
	set, err := b.client.ClusterV1beta2().ManagedClusterSets().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return false, err
	}
	for _, cond := range set.Status.Conditions {
		if cond.Type == clusterv1beta2.ManagedClusterSetConditionEmpty {
			return cond.Status == metav1.ConditionTrue, nil
		}
	}
	return false, nil
}
