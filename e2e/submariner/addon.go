package submariner

import (
	"context"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"k8s.io/kubernetes/test/e2e/framework"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/addon"
	frameworkutil "github.com/stolostron/submariner-addon-e2e/e2e/util/framework"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/framework/session"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/membership"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/options"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/poll"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/remote"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/status"
)

// validationTimeout bounds each label check once the add-on is installed.
const validationTimeout = 3 * time.Minute

var _ = AddOnDescribe("Submariner add-on lifecycle", ginkgo.Ordered, framework.WithSerial(), func() {
	f := framework.NewDefaultFramework("submariner")
	f.SkipNamespaceCreation = true

	var s *session.Session
	ginkgo.BeforeEach(func(ctx context.Context) {
		s = newSession(ctx, f)
	})

	/*
		Testname: Submariner deployment
		Description: The configured cluster set MUST exist and hold the selected managed clusters. Installing
		the Submariner add-on on its members MUST make the connection status and the agent status of every
		member healthy and label its gateway nodes within the install timeout.
	*/
	frameworkutil.SubmarinerSlowIt("should deploy Submariner on the members of the cluster set", func(ctx context.Context) {
		opts := options.Submariner
		set := opts.ClusterSet

		ginkgo.By("Ensuring cluster set " + set)
		sets, _ := s.ClusterSets()
		handle, err := sets.Ensure(ctx, set)
		framework.ExpectNoError(err, "error when ensuring cluster set %s", set)
		framework.Logf("using %s", handle)

		ginkgo.By("Adding the clusters selected by " + opts.Selector().String())
		members := s.Members()
		added, err := membership.AddMembers(ctx, set, members, members, opts.Selector())
		framework.ExpectNoError(err, "error when adding members to %s", set)
		framework.Logf("added %v to %s", added.UnsortedList(), set)

		clusters := memberClusters(ctx, s, set)
		gomega.Expect(clusters).NotTo(gomega.BeEmpty(), "cluster set %s should have members besides %s", set, membership.Sentinel)

		ginkgo.By("Installing the Submariner add-on")
		result, err := s.Installer().Install(ctx, set, clusters, s.InstallOptions())
		framework.ExpectNoError(err, "error when installing the Submariner add-on in %s", set)
		framework.Logf("installed the add-on on %v, created anything: %v", clusters, result.Created())

		for _, label := range status.Labels {
			ginkgo.By("Waiting for " + label.Name + " to be " + label.Good)
			rows, err := status.WaitFor(ctx, s.Status(), set, status.Expectation{Label: label, Text: label.Good},
				poll.WithTimeout(opts.InstallTimeout), poll.WithInterval(10*time.Second))
			framework.ExpectNoError(err)
			framework.Logf("%s: %v", label, rows)
		}
	})

	/*
		Testname: Submariner status validation
		Description: For every member the connection status MUST be healthy with established connections,
		the agent status MUST be healthy and deployed, and the gateway nodes MUST be labeled.
	*/
	frameworkutil.SubmarinerIt("should report healthy Submariner status on every member", func(ctx context.Context) {
		set := options.Submariner.ClusterSet
		for _, exp := range []status.Expectation{
			{Label: status.ConnectionStatus, Text: "Healthy", DetailContains: "established"},
			{Label: status.AgentStatus, Text: "Healthy", DetailContains: "is deployed on managed cluster"},
			{Label: status.GatewayNodesLabeled, Text: "Nodes labeled", DetailContains: "submariner.io/gateway"},
		} {
			ginkgo.By("Checking that " + exp.String())
			rows, err := status.WaitFor(ctx, s.Status(), set, exp, poll.WithTimeout(validationTimeout), poll.WithInterval(5*time.Second))
			framework.ExpectNoError(err)
			for _, row := range rows {
				framework.Logf("%s", row)
			}
		}
	})

	/*
		Testname: Cross-cluster service reachability
		Description: A service exported from the server cluster MUST be reachable from the client cluster
		through its cluster set address. In log mode the probe output is only logged.
	*/
	frameworkutil.SubmarinerSlowIt("should reach a service exported by another member", func(ctx context.Context) {
		opts := options.Submariner
		if opts.ServerCluster == "" || opts.ClientCluster == "" {
			ginkgo.Skip("no server and client cluster configured")
		}

		server, err := s.Credentials(ctx, opts.ServerCluster)
		framework.ExpectNoError(err, "error when reading the credentials of %s", opts.ServerCluster)
		client, err := s.Credentials(ctx, opts.ClientCluster)
		framework.ExpectNoError(err, "error when reading the credentials of %s", opts.ClientCluster)

		result, err := remote.Reachability{
			Server:    server,
			Client:    client,
			Namespace: f.UniqueName,
			Strength:  opts.Strength(),
			Expect:    opts.ReachabilityExpect,
		}.Check(ctx)
		framework.ExpectNoError(err, "error when probing %s from %s", result.URL, client.Cluster)
		framework.Logf("probe of %s from %s (matched %v): %s", result.URL, client.Cluster, result.Matched, result.Output)
	})

	/*
		Testname: Gateway metrics
		Description: Once scraped by the Prometheus of the server cluster, the gateway MUST expose the
		submariner_connections metric. Skipped unless a Prometheus service or URL is configured.
	*/
	frameworkutil.SubmarinerIt("should expose gateway connection metrics", func(ctx context.Context) {
		checkGatewayMetrics(ctx, s)
	})

	/*
		Testname: Submariner uninstall
		Description: Uninstalling the Submariner add-on MUST remove it from every member of the cluster set
		within the uninstall timeout, after which no member shows Submariner status any more.
	*/
	frameworkutil.SubmarinerSlowIt("should uninstall the Submariner add-on", func(ctx context.Context) {
		set := options.Submariner.ClusterSet
		_, backend := s.ClusterSets()
		existence, err := backend.Lookup(ctx, set)
		framework.ExpectNoError(err)
		if existence != resource.Exists {
			ginkgo.Skip("cluster set " + set + " does not exist")
		}

		clusters := memberClusters(ctx, s, set)
		installer := s.Installer()
		framework.ExpectNoError(installer.Uninstall(ctx, clusters), "error when uninstalling the Submariner add-on from %s", set)
		framework.ExpectNoError(status.WaitForNoRows(ctx, s.Status(), set, poll.WithTimeout(addon.DefaultUninstallTimeout)))
		framework.ExpectNoError(installer.DeleteConfigs(ctx, clusters))
	})
})
