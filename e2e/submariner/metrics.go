package submariner

import (
	"context"
	"strings"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	monitoringv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/kubernetes/test/e2e/framework"
	e2eskipper "k8s.io/kubernetes/test/e2e/framework/skipper"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/addon"
	frameworkutil "github.com/stolostron/submariner-addon-e2e/e2e/util/framework"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/framework/session"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/options"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/poll"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/prometheus"
)

// checkGatewayMetrics makes the Prometheus of the server cluster scrape the
// gateway and waits for the connection metric to show up.
func checkGatewayMetrics(ctx context.Context, s *session.Session) {
	opts := options.Submariner
	viaService := opts.PrometheusNamespace != "" && opts.PrometheusService != ""
	if !viaService && opts.PrometheusURL == "" {
		e2eskipper.Skipf("no Prometheus service or URL configured")
	}
	if opts.ServerCluster == "" {
		e2eskipper.Skipf("no server cluster configured")
	}

	member, err := s.Member(ctx, opts.ServerCluster)
	framework.ExpectNoError(err, "error when connecting to %s", opts.ServerCluster)
	kube, promOpClient := member.Kube, member.Monitoring

	if viaService {
		frameworkutil.SkipUnlessServed(ctx, kube.Discovery(), monitoringv1.SchemeGroupVersion.String())
		promList, err := promOpClient.MonitoringV1().Prometheuses(opts.PrometheusNamespace).List(ctx, metav1.ListOptions{})
		framework.ExpectNoError(err, "error when getting Prometheus list")
		gomega.Expect(promList.Items).ToNot(gomega.BeEmpty(), "at least one Prometheus should be found in %s", opts.PrometheusNamespace)

		ginkgo.By("Creating a ServiceMonitor for the gateway metrics")
		sm := prometheus.CreateGatewayServiceMonitor(ctx, promOpClient, promList.Items[0], kube, addon.InstallNamespace)
		ginkgo.DeferCleanup(framework.IgnoreNotFound(promOpClient.MonitoringV1().ServiceMonitors(sm.Namespace).Delete), sm.Name, metav1.DeleteOptions{})
	}

	out, err := poll.Until(ctx, func(ctx context.Context) (string, bool, error) {
		raw, err := prometheus.Query(ctx, prometheus.QueryParams{
			RestClient:  kube.CoreV1().RESTClient(),
			URL:         opts.PrometheusURL,
			Namespace:   opts.PrometheusNamespace,
			ServiceName: opts.PrometheusService,
			Query:       prometheus.ConnectionsMetric,
		})
		return raw, strings.Contains(raw, `"__name__":"`+prometheus.ConnectionsMetric+`"`), err
	}, poll.WithTimeout(5*time.Minute), poll.WithInterval(15*time.Second),
		poll.WithDescription("%s on %s", prometheus.ConnectionsMetric, opts.ServerCluster))
	framework.ExpectNoError(err)
	framework.ExpectNoError(out.Err())
}
