package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
)

// Strength decides what a reachability check fails on.
type Strength string

const (
	// LogOnly captures and logs the probe output but never fails on it.
	LogOnly Strength = "log"
	// AssertContains fails unless the probe output contains the expected text.
	AssertContains Strength = "assert"
)

func ParseStrength(s string) (Strength, error) {
	switch Strength(s) {
	case LogOnly, AssertContains:
		return Strength(s), nil
	case "":
		return LogOnly, nil
	}
	return "", fmt.Errorf("unknown reachability strength %q, want %q or %q", s, LogOnly, AssertContains)
}

// Reachability exports a web server from the Server cluster and fetches it
// from the Client cluster through its cluster set address.
type Reachability struct {
	Server    Credentials
	Client    Credentials
	Namespace string
	// Image serves HTTP on the workload port. Defaults to DefaultImage.
	Image string
	// Probe runs curl on the client cluster. Defaults to DefaultProbe.
	Probe    string
	Strength Strength
	Expect   string

	CLIOptions []CLIOption
}

// ReachabilityResult is what the probe fetched.
type ReachabilityResult struct {
	URL    string
	Output string
	// ProbeErr is the error of the probe command, kept in LogOnly mode.
	ProbeErr error
	Matched  bool
}

func (r Reachability) withDefaults() Reachability {
	if r.Image == "" {
		r.Image = DefaultImage
	}
	if r.Probe == "" {
		r.Probe = DefaultProbe
	}
	if r.Expect == "" {
		r.Expect = DefaultExpect
	}
	if r.Strength == "" {
		r.Strength = LogOnly
	}
	return r
}

// Check deploys the workload, probes it and removes the namespaces again.
func (r Reachability) Check(ctx context.Context) (ReachabilityResult, error) {
	r = r.withDefaults()
	result := ReachabilityResult{URL: ServiceURL(r.Namespace)}
	logger := klog.FromContext(ctx).WithValues("server", r.Server.Cluster, "client", r.Client.Cluster, "url", result.URL)

	if r.Namespace == "" {
		return result, fmt.Errorf("reachability check needs a namespace")
	}
	if _, err := ParseStrength(string(r.Strength)); err != nil {
		return result, err
	}

	server, err := NewCLI(r.Server, r.CLIOptions...)
	if err != nil {
		return result, err
	}
	defer server.Close()
	client, err := NewCLI(r.Client, r.CLIOptions...)
	if err != nil {
		return result, err
	}
	defer client.Close()

	for _, cli := range []*CLI{server, client} {
		if err := cli.Login(ctx); err != nil {
			return result, err
		}
	}
	defer r.cleanup(ctx, server, client)

	workload, _, err := Workload(r.Namespace, r.Image)
	if err != nil {
		return result, err
	}
	if _, err := server.RunInput(ctx, string(workload), "apply", "-f", "-"); err != nil {
		return result, fmt.Errorf("deploy workload on %s: %w", server.Cluster(), err)
	}
	if _, err := server.Run(ctx, "rollout", "status", "deployment/"+WorkloadName, "-n", r.Namespace, "--timeout=180s"); err != nil {
		return result, fmt.Errorf("wait for workload on %s: %w", server.Cluster(), err)
	}

	ns, err := NamespaceManifest(r.Namespace)
	if err != nil {
		return result, err
	}
	if _, err := client.RunInput(ctx, string(ns), "apply", "-f", "-"); err != nil {
		return result, fmt.Errorf("create namespace on %s: %w", client.Cluster(), err)
	}
	result.Output, result.ProbeErr = client.Run(ctx,
		"run", "reachability-probe", "-n", r.Namespace,
		"--image="+r.Probe, "--restart=Never", "--rm", "-i", "--quiet",
		"--command", "--", "curl", "-s", "--max-time", "30", result.URL,
	)
	result.Matched = result.ProbeErr == nil && strings.Contains(result.Output, r.Expect)
	logger.Info("Probed exported service", "strength", r.Strength, "matched", result.Matched, "output", result.Output, "err", result.ProbeErr)

	if r.Strength == LogOnly {
		return result, nil
	}
	if result.ProbeErr != nil {
		return result, fmt.Errorf("probe %s from %s: %w", result.URL, client.Cluster(), result.ProbeErr)
	}
	if !result.Matched {
		return result, failure.New(failure.UnexpectedState, "response of "+result.URL, strconv.Quote(truncate(result.Output, 200)),
			fmt.Errorf("expected it to contain %q", r.Expect))
	}
	return result, nil
}

// cleanup still runs once ctx is cancelled, bounded by the command timeout
// of each CLI.
func (r Reachability) cleanup(ctx context.Context, clis ...*CLI) {
	ctx = context.WithoutCancel(ctx)
	for _, cli := range clis {
		if _, err := cli.Run(ctx, "delete", "namespace", r.Namespace, "--ignore-not-found", "--wait=false"); err != nil {
			klog.FromContext(ctx).Error(err, "Failed to delete namespace", "cluster", cli.Cluster(), "namespace", r.Namespace)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
