package clusterset

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"
	clusterv1beta2 "open-cluster-management.io/api/cluster/v1beta2"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/membership"
)

// CloudLabel carries the platform of a managed cluster, e.g. "Amazon".
const CloudLabel = "cloud"

// Members enumerates managed clusters as membership candidates and commits
// a selection by labelling the clusters with the set name.
type Members struct {
	client clusterclientset.Interface
	staged sets.Set[string]
}

var (
	_ membership.Source    = &Members{}
	_ membership.Committer = &Members{}
)

func NewMembers(client clusterclientset.Interface) *Members {
	return &Members{client: client, staged: sets.New[string]()}
}

// Candidates lists every managed cluster of the hub. The set name is not
// used to filter: any cluster can be moved into an exclusive set.
func (m *Members) Candidates(ctx context.Context, _ string) ([]membership.Candidate, error) {
	clusters, err := m.client.ClusterV1().ManagedClusters().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	candidates := make([]membership.Candidate, 0, len(clusters.Items))
	for _, cluster := range clusters.Items {
		candidates = append(candidates, membership.Candidate{
			Name:     cluster.Name,
			Platform: cluster.Labels[CloudLabel],
			Labels:   cluster.Labels,
		})
	}
	return candidates, nil
}

// Toggle flips the staged inclusion of a cluster.
func (m *Members) Toggle(name string) {
	if m.staged.Has(name) {
		m.staged.Delete(name)
		return
	}
	m.staged.Insert(name)
}

// Submit labels every staged cluster with the set. The stage is cleared
// whether or not the labelling succeeded, so a retry stages from scratch.
func (m *Members) Submit(ctx context.Context, set string) error {
	defer func() {
		m.staged = sets.New[string]()
	}()
	patch, err := json.Marshal(map[string]any{
		"metadata": map[string]any{
			"labels": map[string]string{clusterv1beta2.ClusterSetLabel: set},
		},
	})
	if err != nil {
		return err
	}
	for _, name := range sets.List(m.staged) {
		if _, err := m.client.ClusterV1().ManagedClusters().Patch(ctx, name, types.MergePatchType, patch, metav1.PatchOptions{}); err != nil {
			return fmt.Errorf("label managedcluster %s: %w", name, err)
		}
		klog.FromContext(ctx).V(1).Info("Moved cluster into set", "cluster", name, "clusterSet", set)
	}
	return nil
}

// MembersOf returns the names of the clusters carrying the set label.
func MembersOf(ctx context.Context, client clusterclientset.Interface, set string) (sets.Set[string], error) {
	selector := labels.SelectorFromSet(labels.Set{clusterv1beta2.ClusterSetLabel: set})
	clusters, err := client.ClusterV1().ManagedClusters().List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, err
	}
	members := sets.New[string]()
	for _, cluster := range clusters.Items {
		members.Insert(cluster.Name)
	}
	return members, nil
}
