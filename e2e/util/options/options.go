// Package options holds the runtime parameters of the suite.
//
// Every parameter is a flag under the "submariner." prefix. Parameters with
// an env tag can also come from that environment variable or from the YAML
// file named by --submariner.configfile, keyed by the same name. An explicit
// flag wins over the environment, which wins over the file, which wins over
// the default.
package options

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"
	"k8s.io/apimachinery/pkg/util/validation"

	e2econfig "k8s.io/kubernetes/test/e2e/framework/config"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/membership"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/remote"
)

// Prefix of every flag of Options.
const Prefix = "submariner"

type Options struct {
	ConfigFile string `default:"" usage:"YAML file of options keyed by their environment variable names"`

	ClusterSet             string `default:"submariner" env:"CLUSTERSET" usage:"name of the cluster set Submariner is deployed into"`
	NATTPort               int    `default:"4505" env:"SUBMARINER_IPSEC_NATT_PORT" usage:"IPsec NAT-T port set on every SubmarinerConfig"`
	Downstream             bool   `default:"false" env:"DOWNSTREAM" usage:"install the downstream build from CatalogSource"`
	CatalogSource          string `default:"submariner-catalog" env:"DOWNSTREAM_CATALOG_SOURCE" usage:"catalog source of the downstream build"`
	CatalogSourceNamespace string `default:"openshift-marketplace" env:"DOWNSTREAM_CATALOG_SOURCE_NAMESPACE" usage:"namespace of the downstream catalog source"`
	Globalnet              bool   `default:"false" env:"SUBMARINER_GLOBALNET" usage:"enable globalnet on the broker"`
	ManagedClusters        string `default:"" env:"MANAGED_CLUSTERS" usage:"comma separated managed clusters to add to the cluster set; when empty, clusters are picked by platform"`
	Platforms              string `default:"Amazon,Google" env:"SUBMARINER_PLATFORMS" usage:"comma separated platforms picked when no managed clusters are listed"`

	IDP      string `default:"kube:admin" env:"OC_IDP" usage:"identity provider of the hub user"`
	Username string `default:"" env:"OC_CLUSTER_USER" usage:"hub user to request an OAuth token for; when empty the kubeconfig credentials are used"`
	Password string `default:"" env:"OC_CLUSTER_PASS" usage:"password of the hub user"`

	ServerCluster        string `default:"sub-1" env:"SUBMARINER_SERVER_CLUSTER" usage:"member cluster exporting the reachability workload"`
	ClientCluster        string `default:"sub-2" env:"SUBMARINER_CLIENT_CLUSTER" usage:"member cluster probing the reachability workload"`
	ReachabilityStrength string `default:"log" env:"SUBMARINER_REACHABILITY_STRENGTH" usage:"log to only log the probe output, assert to fail unless it contains ReachabilityExpect"`
	ReachabilityExpect   string `default:"Welcome to nginx" usage:"text the reachability probe output must contain in assert mode"`

	InstallTimeout time.Duration `default:"650s" usage:"time the add-on is given to report healthy after install"`

	PrometheusNamespace string `default:"" usage:"namespace of the Prometheus service scraping the gateway metrics"`
	PrometheusService   string `default:"" usage:"name of the Prometheus service scraping the gateway metrics"`
	PrometheusURL       string `default:"" usage:"URL of Prometheus, used when no Prometheus service is given"`
}

// Submariner is registered with the e2e framework flags and resolved once
// the flags are parsed.
var Submariner = &Options{}

var _ = e2econfig.AddOptions(Submariner, Prefix)

// Resolve fills the fields whose flag was not set explicitly in fs from
// getenv, then from the config file.
func (o *Options) Resolve(fs *flag.FlagSet, getenv func(string) string) error {
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		explicit[strings.ToLower(f.Name)] = true
	})

	file := map[string]string{}
	if o.ConfigFile != "" {
		data, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return fmt.Errorf("read options file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse options file %s: %w", o.ConfigFile, err)
		}
	}

	v := reflect.ValueOf(o).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("env")
		if key == "" || explicit[strings.ToLower(Prefix+"."+field.Name)] {
			continue
		}
		raw, ok := getenv(key), true
		if raw == "" {
			raw, ok = file[key]
		}
		if !ok {
			continue
		}
		if err := set(v.Field(i), raw); err != nil {
			return fmt.Errorf("option %s: %w", key, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func set(v reflect.Value, raw string) error {
	raw = strings.TrimSpace(raw)
	switch {
	case v.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
	case v.Kind() == reflect.String:
		v.SetString(raw)
	case v.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case v.Kind() == reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(n))
	default:
		return fmt.Errorf("unsupported type %s", v.Type())
	}
	return nil
}

// Validate rejects options the suite cannot run with.
func (o *Options) Validate() error {
	// The name is also the value of the cluster set label of every member.
	errs := append(validation.IsDNS1123Subdomain(o.ClusterSet), validation.IsValidLabelValue(o.ClusterSet)...)
	if len(errs) > 0 {
		return fmt.Errorf("invalid cluster set name %q: %s", o.ClusterSet, strings.Join(errs, ", "))
	}
	if o.NATTPort < 1 || o.NATTPort > 65535 {
		return fmt.Errorf("NAT-T port %d is outside 1-65535", o.NATTPort)
	}
	if _, err := remote.ParseStrength(o.ReachabilityStrength); err != nil {
		return err
	}
	if o.InstallTimeout <= 0 {
		return fmt.Errorf("install timeout must be positive, got %s", o.InstallTimeout)
	}
	if o.ServerCluster != "" && o.ServerCluster == o.ClientCluster {
		return fmt.Errorf("server and client cluster must differ, both are %q", o.ServerCluster)
	}
	if o.Downstream && o.CatalogSource == "" {
		return fmt.Errorf("a downstream install needs a catalog source")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Selector picks the listed managed clusters, or the clusters of the
// configured platforms when none is listed.
func (o *Options) Selector() membership.Selector {
	return membership.Selector{
		AllowList: splitList(o.ManagedClusters),
		Platforms: splitList(o.Platforms),
	}
}

// Strength is the parsed reachability strength, LogOnly when invalid.
func (o *Options) Strength() remote.Strength {
	s, err := remote.ParseStrength(o.ReachabilityStrength)
	if err != nil {
		return remote.LogOnly
	}
	return s
}

// HubUser is the user an OAuth token is requested for. The kube:admin
// provider logs in as kubeadmin.
func (o *Options) HubUser() string {
	if o.Username == "" && o.IDP == "kube:admin" && o.Password != "" {
		return "kubeadmin"
	}
	return o.Username
}
