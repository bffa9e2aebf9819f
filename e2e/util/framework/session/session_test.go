package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	clusterfake "open-cluster-management.io/api/client/cluster/clientset/versioned/fake"
	clusterv1 "open-cluster-management.io/api/cluster/v1"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/options"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/remote"
)

func TestNewForConfig(t *testing.T) {
	g := gomega.NewWithT(t)

	opts := &options.Options{NATTPort: 4600, Downstream: true, CatalogSource: "catalog", CatalogSourceNamespace: "marketplace"}
	s, err := NewForConfig(&rest.Config{Host: "https://api.hub.example.com:6443", BearerToken: "token"}, opts)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(s.Kube).NotTo(gomega.BeNil())
	g.Expect(s.Clusters).NotTo(gomega.BeNil())
	g.Expect(s.AddOns).NotTo(gomega.BeNil())
	g.Expect(s.Monitoring).NotTo(gomega.BeNil())

	install := s.InstallOptions()
	g.Expect(install.NATTPort).To(gomega.Equal(4600))
	g.Expect(install.Downstream).To(gomega.BeTrue())
	g.Expect(install.CatalogSource).To(gomega.Equal("catalog"))
	g.Expect(install.CatalogSourceNamespace).To(gomega.Equal("marketplace"))
}

func TestCredentialsAreCached(t *testing.T) {
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
		"status": map[string]any{"apiURL": "https://api.sub-1.example.com:6443"},
	}}
	kube := kubefake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "sub-1-admin-password", Namespace: "sub-1"},
		Data: map[string][]byte{
			corev1.BasicAuthUsernameKey: []byte("kubeadmin"),
			corev1.BasicAuthPasswordKey: []byte("s3cret"),
		},
	})
	s := &Session{
		Options:     &options.Options{},
		Kube:        kube,
		Dynamic:     dynamicfake.NewSimpleDynamicClient(k8sruntime.NewScheme(), deployment),
		Clusters:    clusterfake.NewSimpleClientset(&clusterv1.ManagedCluster{ObjectMeta: metav1.ObjectMeta{Name: "sub-1"}}),
		credentials: map[string]remote.Credentials{},
	}

	creds, err := s.Credentials(ctx, "sub-1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(creds.APIURL).To(gomega.Equal("https://api.sub-1.example.com:6443"))
	g.Expect(creds.Password).To(gomega.Equal("s3cret"))

	reads := len(kube.Actions())
	again, err := s.Credentials(ctx, "sub-1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(again).To(gomega.Equal(creds))
	g.Expect(kube.Actions()).To(gomega.HaveLen(reads))
}

func TestMemberLogsIntoTheMemberCluster(t *testing.T) {
	g := gomega.NewWithT(t)

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"issuer": %q}`, server.URL)
	})
	mux.HandleFunc("/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		if user, password, ok := r.BasicAuth(); !ok || user != "kubeadmin" || password != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Location", server.URL+"/oauth/token/implicit#access_token=sha256~member&token_type=Bearer")
		w.WriteHeader(http.StatusFound)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	opts := &options.Options{ClusterSet: "submariner"}
	s := &Session{
		Options: opts,
		credentials: map[string]remote.Credentials{
			"sub-1": {Cluster: "sub-1", APIURL: server.URL, Username: "kubeadmin", Password: "s3cret"},
		},
	}

	member, err := s.Member(context.Background(), "sub-1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(member.Config.Host).To(gomega.Equal(server.URL))
	g.Expect(member.Config.BearerToken).To(gomega.Equal("sha256~member"))
	g.Expect(member.Monitoring).NotTo(gomega.BeNil())
	g.Expect(member.Options).To(gomega.BeIdenticalTo(opts))

	_, err = s.Member(context.Background(), "")
	g.Expect(err).To(gomega.HaveOccurred())
}
