// Package addon installs and uninstalls the Submariner add-on on the members
// of a cluster set, the way the console's install wizard does it: a Broker
// for the set, then a SubmarinerConfig and a ManagedClusterAddOn per cluster.
package addon

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	addonclientset "open-cluster-management.io/api/client/addon/clientset/versioned"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/poll"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/provision"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

// DefaultUninstallTimeout bounds the wait for every add-on to be removed.
const DefaultUninstallTimeout = 210 * time.Second

// InstallOptions are the choices of the install wizard.
type InstallOptions struct {
	NATTPort               int
	Globalnet              bool
	Downstream             bool
	CatalogSource          string
	CatalogSourceNamespace string
}

// Result lists what an Install call found or created.
type Result struct {
	Broker  provision.Handle
	Configs []provision.Handle
	AddOns  []provision.Handle
}

// Created reports whether the call created anything.
func (r Result) Created() bool {
	if r.Broker.Created {
		return true
	}
	for _, h := range append(append([]provision.Handle{}, r.Configs...), r.AddOns...) {
		if h.Created {
			return true
		}
	}
	return false
}

// Installer drives the add-on lifecycle against the hub.
type Installer struct {
	dynamic dynamic.Interface
	addons  addonclientset.Interface
	kube    kubernetes.Interface

	timeout          time.Duration
	uninstallTimeout time.Duration
	interval         time.Duration
	clock            clock.Clock
}

// Option configures an Installer.
type Option func(*Installer)

// WithTimeout bounds each creation and the wait for the broker namespace.
func WithTimeout(d time.Duration) Option {
	return func(i *Installer) { i.timeout = d }
}

// WithUninstallTimeout bounds the wait for every add-on to be removed.
func WithUninstallTimeout(d time.Duration) Option {
	return func(i *Installer) { i.uninstallTimeout = d }
}

func WithInterval(d time.Duration) Option {
	return func(i *Installer) { i.interval = d }
}

func WithClock(c clock.Clock) Option {
	return func(i *Installer) { i.clock = c }
}

func NewInstaller(dyn dynamic.Interface, addons addonclientset.Interface, kube kubernetes.Interface, opts ...Option) *Installer {
	i := &Installer{
		dynamic:          dyn,
		addons:           addons,
		kube:             kube,
		timeout:          poll.DefaultTimeout,
		uninstallTimeout: DefaultUninstallTimeout,
		interval:         poll.DefaultInterval,
		clock:            clock.RealClock{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Installer) provisioner(backend provision.Backend) *provision.Provisioner {
	return provision.New(backend,
		provision.WithCreateTimeout(i.timeout),
		provision.WithDeleteTimeout(i.timeout),
		provision.WithInterval(i.interval),
		provision.WithClock(i.clock),
	)
}

func (i *Installer) pollOptions(timeout time.Duration, format string, args ...any) []poll.Option {
	return []poll.Option{
		poll.WithTimeout(timeout),
		poll.WithInterval(min(i.interval, timeout)),
		poll.WithClock(i.clock),
		poll.WithDescription(format, args...),
	}
}

// Install ensures the broker of set and the add-on on every cluster. Objects
// that already exist are reused, so Install can be called again after a
// partial failure.
func (i *Installer) Install(ctx context.Context, set string, clusters []string, opts InstallOptions) (Result, error) {
	logger := klog.FromContext(ctx).WithValues("clusterSet", set)
	var result Result

	if len(clusters) == 0 {
		return result, failure.New(failure.PreconditionMissing, "members of "+set, 0, nil)
	}
	if err := i.waitForBrokerNamespace(ctx, set); err != nil {
		return result, err
	}

	broker, err := i.provisioner(newBrokerBackend(i.dynamic, set, opts.Globalnet)).Ensure(ctx, BrokerName)
	if err != nil {
		return result, err
	}
	result.Broker = broker

	for _, cluster := range clusters {
		config, err := i.provisioner(newConfigBackend(i.dynamic, cluster, opts)).Ensure(ctx, Name)
		if err != nil {
			return result, err
		}
		result.Configs = append(result.Configs, config)

		addOn, err := i.provisioner(&managedClusterAddOnBackend{client: i.addons, cluster: cluster}).Ensure(ctx, Name)
		if err != nil {
			return result, err
		}
		result.AddOns = append(result.AddOns, addOn)
	}
	logger.Info("Submariner add-on installed", "clusters", clusters, "created", result.Created())
	return result, nil
}

// waitForBrokerNamespace waits for the hub to create the broker namespace,
// which it does once the set exists.
func (i *Installer) waitForBrokerNamespace(ctx context.Context, set string) error {
	namespace := BrokerNamespace(set)
	out, err := poll.Until(ctx, func(ctx context.Context) (resource.Existence, bool, error) {
		existence, _, err := resource.Lookup(ctx, "namespace", i.kube.CoreV1().Namespaces().Get, namespace)
		return existence, existence == resource.Exists, err
	}, i.pollOptions(i.timeout, "broker namespace %s to exist", namespace)...)
	if err != nil {
		return err
	}
	if out.TimedOut() {
		return failure.New(failure.PreconditionMissing, "namespace/"+namespace, out.Value, out.LastErr)
	}
	return nil
}

// Installed returns the clusters that currently have the add-on.
func (i *Installer) Installed(ctx context.Context, clusters []string) (sets.Set[string], error) {
	installed := sets.New[string]()
	for _, cluster := range clusters {
		existence, err := (&managedClusterAddOnBackend{client: i.addons, cluster: cluster}).Lookup(ctx, Name)
		if err != nil {
			return nil, err
		}
		if existence == resource.Exists {
			installed.Insert(cluster)
		}
	}
	return installed, nil
}

// Uninstall deletes the add-on from every cluster and waits until none is
// left. Clusters without the add-on are skipped.
func (i *Installer) Uninstall(ctx context.Context, clusters []string) error {
	logger := klog.FromContext(ctx)

	installed, err := i.Installed(ctx, clusters)
	if err != nil {
		return err
	}
	for _, cluster := range sets.List(installed) {
		backend := &managedClusterAddOnBackend{client: i.addons, cluster: cluster}
		req, err := backend.PrepareDelete(ctx, Name)
		if err != nil {
			return fmt.Errorf("prepare delete %s: %w", backend.Kind(), err)
		}
		if err := req.Confirm(ctx); err != nil {
			return fmt.Errorf("delete %s: %w", backend.Kind(), err)
		}
		logger.Info("Deleting Submariner add-on", "cluster", cluster)
	}

	out, err := poll.Until(ctx, func(ctx context.Context) ([]string, bool, error) {
		remaining, err := i.Installed(ctx, clusters)
		if err != nil {
			return nil, false, err
		}
		return sets.List(remaining), remaining.Len() == 0, nil
	}, i.pollOptions(i.uninstallTimeout, "every submariner add-on to be removed")...)
	if err != nil {
		return err
	}
	if out.TimedOut() {
		return failure.New(failure.TeardownTimeout, "managedclusteraddons/"+Name, out.Value, out.LastErr)
	}
	logger.Info("Submariner add-on uninstalled", "clusters", sets.List(installed), "elapsed", out.Elapsed)
	return nil
}

// DeleteConfigs removes the SubmarinerConfigs left behind by an uninstall.
func (i *Installer) DeleteConfigs(ctx context.Context, clusters []string) error {
	for _, cluster := range clusters {
		err := i.dynamic.Resource(SubmarinerConfigGVR).Namespace(cluster).Delete(ctx, Name, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("delete submarinerconfig %s/%s: %w", cluster, Name, err)
		}
	}
	return nil
}
