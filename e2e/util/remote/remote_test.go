package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
	clusterfake "open-cluster-management.io/api/client/cluster/clientset/versioned/fake"
	clusterv1 "open-cluster-management.io/api/cluster/v1"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
)

var (
	sub1 = Credentials{Cluster: "sub-1", APIURL: "https://api.sub-1.example.com:6443", Username: "kubeadmin", Password: "s3cret-1"}
	sub2 = Credentials{Cluster: "sub-2", APIURL: "https://api.sub-2.example.com:6443", Username: "kubeadmin", Password: "s3cret-2"}
)

// fakeOC writes an oc stand-in that records its arguments and answers the
// probe with output.
func fakeOC(t *testing.T, output string) (binary, log string) {
	t.Helper()
	dir := t.TempDir()
	log = filepath.Join(dir, "calls.log")
	binary = filepath.Join(dir, "oc")
	script := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %q
case "$*" in
  *"-f -"*) cat > /dev/null ;;
  *" run "*) printf '%%s' %q ;;
esac
`, log, output)
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return binary, log
}

func calls(t *testing.T, log string) []string {
	t.Helper()
	data, err := os.ReadFile(log)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestWorkload(t *testing.T) {
	g := gomega.NewWithT(t)

	list, objects, err := Workload("reach-abc", "registry.example.com/nginx:1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(string(list)).To(gomega.ContainSubstring(`"kind":"List"`))

	kinds := map[string]*unstructured.Unstructured{}
	for _, obj := range objects {
		kinds[obj.GetKind()] = obj
	}
	g.Expect(kinds).To(gomega.HaveKey("Namespace"))
	g.Expect(kinds).To(gomega.HaveKey("Deployment"))
	g.Expect(kinds).To(gomega.HaveKey("Service"))
	g.Expect(kinds).To(gomega.HaveKey("ServiceExport"))

	g.Expect(kinds["Namespace"].GetName()).To(gomega.Equal("reach-abc"))
	g.Expect(kinds["ServiceExport"].GetNamespace()).To(gomega.Equal("reach-abc"))
	containers, _, _ := unstructured.NestedSlice(kinds["Deployment"].Object, "spec", "template", "spec", "containers")
	g.Expect(containers).To(gomega.HaveLen(1))
	g.Expect(containers[0]).To(gomega.HaveKeyWithValue("image", "registry.example.com/nginx:1"))
}

func TestParseStrength(t *testing.T) {
	g := gomega.NewWithT(t)

	s, err := ParseStrength("")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(s).To(gomega.Equal(LogOnly))

	s, err = ParseStrength("assert")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(s).To(gomega.Equal(AssertContains))

	_, err = ParseStrength("strict")
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestCLILoginUsesOwnKubeconfig(t *testing.T) {
	g := gomega.NewWithT(t)

	binary, log := fakeOC(t, "")
	cli, err := NewCLI(sub1, WithBinary(binary))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer cli.Close()

	g.Expect(cli.Login(context.Background())).To(gomega.Succeed())
	g.Expect(calls(t, log)).To(gomega.ConsistOf(
		"--kubeconfig=" + cli.Kubeconfig() + " login --server=https://api.sub-1.example.com:6443 -u kubeadmin -p s3cret-1 --insecure-skip-tls-verify",
	))

	g.Expect(cli.Close()).To(gomega.Succeed())
	_, err = os.Stat(filepath.Dir(cli.Kubeconfig()))
	g.Expect(os.IsNotExist(err)).To(gomega.BeTrue())
}

func TestNewCLIRejectsIncompleteCredentials(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := NewCLI(Credentials{Cluster: "sub-1", APIURL: "https://api.sub-1.example.com:6443"})
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("no username or password")))
	g.Expect(sub1.String()).NotTo(gomega.ContainSubstring(sub1.Password))
}

func TestReachabilityLogOnlyNeverFailsOnContent(t *testing.T) {
	g := gomega.NewWithT(t)

	binary, log := fakeOC(t, "502 Bad Gateway")
	result, err := Reachability{
		Server:     sub1,
		Client:     sub2,
		Namespace:  "reach-abc",
		CLIOptions: []CLIOption{WithBinary(binary)},
	}.Check(context.Background())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(result.Matched).To(gomega.BeFalse())
	g.Expect(result.Output).To(gomega.Equal("502 Bad Gateway"))
	g.Expect(result.URL).To(gomega.Equal("http://nginx.reach-abc.svc.clusterset.local:8080"))

	lines := calls(t, log)
	g.Expect(lines).To(gomega.HaveLen(8))
	g.Expect(lines[2]).To(gomega.HaveSuffix("apply -f -"))
	g.Expect(lines[3]).To(gomega.ContainSubstring("rollout status deployment/nginx -n reach-abc"))
	g.Expect(lines[5]).To(gomega.ContainSubstring("curl -s --max-time 30 http://nginx.reach-abc.svc.clusterset.local:8080"))
	g.Expect(lines[6]).To(gomega.ContainSubstring("delete namespace reach-abc"))
	g.Expect(lines[7]).To(gomega.ContainSubstring("delete namespace reach-abc"))
}

func TestReachabilityAssertContains(t *testing.T) {
	g := gomega.NewWithT(t)

	binary, _ := fakeOC(t, "<h1>Welcome to nginx!</h1>")
	result, err := Reachability{
		Server:     sub1,
		Client:     sub2,
		Namespace:  "reach-abc",
		Strength:   AssertContains,
		CLIOptions: []CLIOption{WithBinary(binary)},
	}.Check(context.Background())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(result.Matched).To(gomega.BeTrue())

	binary, _ = fakeOC(t, "502 Bad Gateway")
	_, err = Reachability{
		Server:     sub1,
		Client:     sub2,
		Namespace:  "reach-abc",
		Strength:   AssertContains,
		CLIOptions: []CLIOption{WithBinary(binary)},
	}.Check(context.Background())
	g.Expect(errors.Is(err, failure.ErrUnexpectedState)).To(gomega.BeTrue())
	g.Expect(err.Error()).To(gomega.ContainSubstring("502 Bad Gateway"))
}

func TestReachabilityCleanupOutlivesCancellation(t *testing.T) {
	g := gomega.NewWithT(t)

	binary, log := fakeOC(t, "")
	server, err := NewCLI(sub1, WithBinary(binary))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer server.Close()
	client, err := NewCLI(sub2, WithBinary(binary))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Reachability{Namespace: "reach-abc"}.cleanup(ctx, server, client)

	lines := calls(t, log)
	g.Expect(lines).To(gomega.HaveLen(2))
	g.Expect(lines[0]).To(gomega.ContainSubstring("--kubeconfig=" + server.Kubeconfig() + " delete namespace reach-abc"))
	g.Expect(lines[1]).To(gomega.ContainSubstring("--kubeconfig=" + client.Kubeconfig() + " delete namespace reach-abc"))
}

func TestCredentialsFromHive(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()

	deployment := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "hive.openshift.io/v1",
		"kind":       "ClusterDeployment",
		"metadata":   map[string]any{"name": "sub-1", "namespace": "sub-1"},
		"spec": map[string]any{
			"clusterMetadata": map[string]any{
				"adminPasswordSecretRef": map[string]any{"name": "sub-1-admin-password"},
			},
		},
		"status": map[string]any{"apiURL": "https://api.sub-1.hive.example.com:6443"},
	}}
	dyn := dynamicfake.NewSimpleDynamicClient(k8sruntime.NewScheme(), deployment)
	kube := kubefake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "sub-1-admin-password", Namespace: "sub-1"},
		Data: map[string][]byte{
			corev1.BasicAuthUsernameKey: []byte("kubeadmin"),
			corev1.BasicAuthPasswordKey: []byte("s3cret-1"),
		},
	})
	clusters := clusterfake.NewSimpleClientset(&clusterv1.ManagedCluster{
		ObjectMeta: metav1.ObjectMeta{Name: "sub-1"},
		Spec: clusterv1.ManagedClusterSpec{
			ManagedClusterClientConfigs: []clusterv1.ClientConfig{{URL: "https://api.sub-1.example.com:6443"}},
		},
	})

	creds, err := CredentialsFromHive(ctx, dyn, kube, clusters, "sub-1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(creds).To(gomega.Equal(sub1))

	_, err = CredentialsFromHive(ctx, dyn, kube, clusters, "sub-2")
	g.Expect(errors.Is(err, failure.ErrPreconditionMissing)).To(gomega.BeTrue())
}
