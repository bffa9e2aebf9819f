package submariner

import (
	"context"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"k8s.io/kubernetes/test/e2e/framework"
	admissionapi "k8s.io/pod-security-admission/api"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/addon"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
	frameworkutil "github.com/stolostron/submariner-addon-e2e/e2e/util/framework"
	e2ecrd "github.com/stolostron/submariner-addon-e2e/e2e/util/framework/crd"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/framework/session"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/poll"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

var _ = ClusterSetDescribe("Managed cluster set", func() {
	f := framework.NewDefaultFramework("clusterset")
	f.SkipNamespaceCreation = true

	var s *session.Session
	ginkgo.BeforeEach(func(ctx context.Context) {
		s = newSession(ctx, f)
		ginkgo.DeferCleanup(func(ctx context.Context) {
			deleted, err := frameworkutil.DeleteClusterSets(ctx, s.Clusters, []string{f.UniqueName}, nil)
			framework.ExpectNoError(err, "error when cleaning up cluster sets")
			if len(deleted) > 0 {
				framework.Logf("deleted leftover cluster sets %v", deleted)
			}
		})
	})

	/*
		Testname: Cluster set creation
		Description: Creating a cluster set that does not exist MUST create it and the hub MUST acknowledge it
		with a status condition. Ensuring the same name again MUST reuse it without a second creation.
		A new cluster set MUST have no members.
	*/
	frameworkutil.SubmarinerIt("should create a cluster set once and reuse it", func(ctx context.Context) {
		name := f.UniqueName
		sets, backend := s.ClusterSets()

		handle, err := sets.Ensure(ctx, name)
		framework.ExpectNoError(err, "error when creating cluster set %s", name)
		ginkgo.DeferCleanup(sets.Delete, name)
		gomega.Expect(handle.Created).To(gomega.BeTrue(), "%s should have been created", handle)

		again, err := sets.Ensure(ctx, name)
		framework.ExpectNoError(err)
		gomega.Expect(again.Created).To(gomega.BeFalse(), "%s should have been reused", again)

		empty, err := backend.Empty(ctx, name)
		framework.ExpectNoError(err)
		gomega.Expect(empty).To(gomega.BeTrue(), "a new cluster set should have no members")
	})

	/*
		Testname: Submariner add-ons of a cluster set
		Description: The Submariner add-on MUST be registered on the hub and its Broker and SubmarinerConfig
		CRDs MUST be established, so the Submariner add-ons of any cluster set can be listed.
	*/
	frameworkutil.SubmarinerIt("should serve the Submariner add-ons of a cluster set", func(ctx context.Context) {
		existence, _, err := resource.Lookup(ctx, "clustermanagementaddon", s.AddOns.AddonV1alpha1().ClusterManagementAddOns().Get, addon.Name)
		framework.ExpectNoError(err)
		gomega.Expect(existence).To(gomega.Equal(resource.Exists), "the %s add-on should be registered on the hub", addon.Name)

		for _, gvr := range []string{
			addon.BrokerGVR.GroupResource().String(),
			addon.SubmarinerConfigGVR.GroupResource().String(),
		} {
			err := e2ecrd.WaitForCrdEstablishedAndNamesAccepted(ctx, s.APIExtensions, gvr)
			framework.ExpectNoError(err, "error when waiting for CRD %s to be established and names accepted", gvr)
			framework.Logf("CustomResourceDefinition %s is ready", gvr)
		}
	})

	/*
		Testname: Cluster set deletion
		Description: Deleting a cluster set MUST remove it within the delete timeout. Deleting a cluster set
		that does not exist MUST succeed without doing anything.
	*/
	frameworkutil.SubmarinerIt("should delete a cluster set", func(ctx context.Context) {
		name := f.UniqueName
		sets, backend := s.ClusterSets()

		_, err := sets.Ensure(ctx, name)
		framework.ExpectNoError(err, "error when creating cluster set %s", name)

		framework.ExpectNoError(sets.Delete(ctx, name), "error when deleting cluster set %s", name)
		existence, err := backend.Lookup(ctx, name)
		framework.ExpectNoError(err)
		gomega.Expect(existence).To(gomega.Equal(resource.NotFound))

		framework.ExpectNoError(sets.Delete(ctx, name), "deleting an absent cluster set should be a no-op")
	})

	/*
		Testname: Cancelled cluster set deletion
		Description: Cancelling the deletion of a cluster set MUST leave it in place. Cancelling the deletion
		of a cluster set that does not exist MUST fail with a missing precondition.
	*/
	frameworkutil.SubmarinerIt("should keep a cluster set when its deletion is cancelled", func(ctx context.Context) {
		name := f.UniqueName
		sets, backend := s.ClusterSets()

		_, err := sets.Ensure(ctx, name)
		framework.ExpectNoError(err, "error when creating cluster set %s", name)
		ginkgo.DeferCleanup(sets.Delete, name)

		framework.ExpectNoError(sets.CancelDelete(ctx, name), "error when cancelling the deletion of %s", name)
		existence, err := backend.Lookup(ctx, name)
		framework.ExpectNoError(err)
		gomega.Expect(existence).To(gomega.Equal(resource.Exists), "%s should survive a cancelled deletion", name)

		err = sets.CancelDelete(ctx, name+"-absent")
		gomega.Expect(err).To(gomega.MatchError(failure.ErrPreconditionMissing))
	})
})

var _ = ClusterSetDescribe("Managed cluster set binding", func() {
	f := framework.NewDefaultFramework("clusterset-binding")
	f.NamespacePodSecurityLevel = admissionapi.LevelBaseline

	var s *session.Session
	ginkgo.BeforeEach(func(ctx context.Context) {
		s = newSession(ctx, f)
	})

	/*
		Testname: Cluster set binding
		Description: Binding a cluster set into a namespace MUST create a ManagedClusterSetBinding that the
		hub reports as bound to the cluster set.
	*/
	frameworkutil.SubmarinerIt("should bind a cluster set into a namespace", func(ctx context.Context) {
		name := f.UniqueName
		sets, _ := s.ClusterSets()
		_, err := sets.Ensure(ctx, name)
		framework.ExpectNoError(err, "error when creating cluster set %s", name)
		ginkgo.DeferCleanup(sets.Delete, name)

		bindings, backend := s.Bindings(f.Namespace.Name)
		handle, err := bindings.Ensure(ctx, name)
		framework.ExpectNoError(err, "error when binding cluster set %s into %s", name, f.Namespace.Name)
		ginkgo.DeferCleanup(bindings.Delete, name)
		framework.Logf("created %s", handle)

		out, err := poll.Until(ctx, func(ctx context.Context) (bool, bool, error) {
			bound, err := backend.Bound(ctx, name)
			return bound, bound, err
		}, poll.WithDescription("binding %s/%s to be bound", f.Namespace.Name, name))
		framework.ExpectNoError(err)
		framework.ExpectNoError(out.Err())
	})
})
