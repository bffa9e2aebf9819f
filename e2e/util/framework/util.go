package framework

import (
	"context"
	"strings"
	"sync"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/kubernetes/test/e2e/framework"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"
)

// DeleteClusterSets deletes all managed cluster sets that match the given delete and skip filters.
// Filter is by simple strings.Contains; first skip filter, then delete filter.
// Returns the list of deleted cluster sets or an error.
func DeleteClusterSets(ctx context.Context, c clusterclientset.Interface, deleteFilter, skipFilter []string) ([]string, error) {
	ginkgo.By("Deleting managed cluster sets")
	setList, err := c.ClusterV1beta2().ManagedClusterSets().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	var deleted []string
	var wg sync.WaitGroup
OUTER:
	for _, item := range setList.Items {
		for _, pattern := range skipFilter {
			if strings.Contains(item.Name, pattern) {
				continue OUTER
			}
		}
		if deleteFilter != nil {
			var shouldDelete bool
			for _, pattern := range deleteFilter {
				if strings.Contains(item.Name, pattern) {
					shouldDelete = true
					break
				}
			}
			if !shouldDelete {
				continue OUTER
			}
		}
		wg.Add(1)
		deleted = append(deleted, item.Name)
		go func(name string) {
			defer wg.Done()
			defer ginkgo.GinkgoRecover()
			err := c.ClusterV1beta2().ManagedClusterSets().Delete(ctx, name, metav1.DeleteOptions{})
			if apierrors.IsNotFound(err) {
				err = nil
			}
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			framework.Logf("managed cluster set : %v api call to delete is complete ", name)
		}(item.Name)
	}
	wg.Wait()
	return deleted, nil
}
