package submariner

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/kubernetes/test/e2e/framework"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/clusterset"
	frameworkutil "github.com/stolostron/submariner-addon-e2e/e2e/util/framework"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/framework/session"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/membership"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/options"
)

var (
	ClusterSetDescribe = frameworkutil.SubmarinerDescribe("clusterset")
	AddOnDescribe      = frameworkutil.SubmarinerDescribe("addon")
)

// newSession connects to the hub of f and skips the test unless it is an
// Open Cluster Management hub.
func newSession(ctx context.Context, f *framework.Framework) *session.Session {
	s, err := session.New(ctx, f, options.Submariner)
	framework.ExpectNoError(err, "error when connecting to the hub")
	frameworkutil.SkipUnlessOCMHub(ctx, s.Kube.Discovery())
	return s
}

// memberClusters lists the members of set, without the hub itself.
func memberClusters(ctx context.Context, s *session.Session, set string) []string {
	members, err := clusterset.MembersOf(ctx, s.Clusters, set)
	framework.ExpectNoError(err, "error when listing the members of cluster set %s", set)
	members.Delete(membership.Sentinel)
	return sets.List(members)
}
