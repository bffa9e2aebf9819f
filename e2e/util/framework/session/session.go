// Package session holds the hub clients and options of one test case.
package session

import (
	"context"
	"fmt"
	"sync"

	monitoring "github.com/prometheus-operator/prometheus-operator/pkg/client/versioned"
	apiextclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/kubernetes/test/e2e/framework"
	addonclientset "open-cluster-management.io/api/client/addon/clientset/versioned"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/addon"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/auth"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/clusterset"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/options"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/provision"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/remote"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/status"
)

// Session is created per test case and never shared between processes.
type Session struct {
	Options *options.Options
	Config  *rest.Config

	Kube          kubernetes.Interface
	Dynamic       dynamic.Interface
	Clusters      clusterclientset.Interface
	AddOns        addonclientset.Interface
	APIExtensions apiextclientset.Interface
	Monitoring    monitoring.Interface

	mu          sync.Mutex
	credentials map[string]remote.Credentials
}

// New builds a session on the hub of f. When a password is configured the
// hub is accessed with an OAuth token of the configured user instead of the
// kubeconfig credentials.
func New(ctx context.Context, f *framework.Framework, opts *options.Options) (*Session, error) {
	config := f.ClientConfig()
	if opts.Password != "" {
		// The OAuth route is served with the ingress certificate, which the
		// hub kubeconfig does not carry.
		token, err := auth.Login(ctx, config.Host, opts.HubUser(), opts.Password, auth.NewHTTPClient(true))
		if err != nil {
			return nil, fmt.Errorf("log into %s as %s: %w", config.Host, opts.HubUser(), err)
		}
		config = auth.WithBearer(config, token)
		framework.Logf("Using an OAuth token of %s (idp %s) for %s", opts.HubUser(), opts.IDP, config.Host)
	}
	return NewForConfig(config, opts)
}

// Member returns a session on a member cluster, logged in through its OAuth
// server with the admin credentials read from the hub.
func (s *Session) Member(ctx context.Context, cluster string) (*Session, error) {
	if cluster == "" {
		return nil, fmt.Errorf("no member cluster given")
	}
	creds, err := s.Credentials(ctx, cluster)
	if err != nil {
		return nil, err
	}
	token, err := auth.Login(ctx, creds.APIURL, creds.Username, creds.Password, auth.NewHTTPClient(true))
	if err != nil {
		return nil, fmt.Errorf("log into %s: %w", creds, err)
	}
	return NewForConfig(auth.BearerConfig(creds.APIURL, token, true), s.Options)
}

func NewForConfig(config *rest.Config, opts *options.Options) (*Session, error) {
	s := &Session{
		Options:     opts,
		Config:      config,
		credentials: map[string]remote.Credentials{},
	}
	var err error
	if s.Kube, err = kubernetes.NewForConfig(config); err != nil {
		return nil, err
	}
	if s.Dynamic, err = dynamic.NewForConfig(config); err != nil {
		return nil, err
	}
	if s.Clusters, err = clusterclientset.NewForConfig(config); err != nil {
		return nil, err
	}
	if s.AddOns, err = addonclientset.NewForConfig(config); err != nil {
		return nil, err
	}
	if s.APIExtensions, err = apiextclientset.NewForConfig(config); err != nil {
		return nil, err
	}
	if s.Monitoring, err = monitoring.NewForConfig(config); err != nil {
		return nil, err
	}
	return s, nil
}

// ClusterSets provisions cluster sets and waits for the hub to report a
// condition on new ones.
func (s *Session) ClusterSets() (*provision.Provisioner, *clusterset.ClusterSetBackend) {
	backend := clusterset.NewClusterSetBackend(s.Clusters)
	return provision.New(backend, provision.WithAcknowledgement(backend.Acknowledged)), backend
}

// Bindings provisions cluster set bindings in namespace.
func (s *Session) Bindings(namespace string) (*provision.Provisioner, *clusterset.BindingBackend) {
	backend := clusterset.NewBindingBackend(s.Clusters, namespace)
	return provision.New(backend), backend
}

func (s *Session) Members() *clusterset.Members {
	return clusterset.NewMembers(s.Clusters)
}

func (s *Session) Installer() *addon.Installer {
	return addon.NewInstaller(s.Dynamic, s.AddOns, s.Kube)
}

// InstallOptions are the install wizard choices taken from the options.
func (s *Session) InstallOptions() addon.InstallOptions {
	return addon.InstallOptions{
		NATTPort:               s.Options.NATTPort,
		Globalnet:              s.Options.Globalnet,
		Downstream:             s.Options.Downstream,
		CatalogSource:          s.Options.CatalogSource,
		CatalogSourceNamespace: s.Options.CatalogSourceNamespace,
	}
}

func (s *Session) Status() status.Source {
	return status.NewAddOnSource(s.Clusters, s.AddOns)
}

// Credentials returns the admin credentials of a member cluster, reading
// them from the hub once per session.
func (s *Session) Credentials(ctx context.Context, cluster string) (remote.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if creds, ok := s.credentials[cluster]; ok {
		return creds, nil
	}
	creds, err := remote.CredentialsFromHive(ctx, s.Dynamic, s.Kube, s.Clusters, cluster)
	if err != nil {
		return remote.Credentials{}, err
	}
	s.credentials[cluster] = creds
	return creds, nil
}
