package options

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onsi/gomega"

	e2econfig "k8s.io/kubernetes/test/e2e/framework/config"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/membership"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/remote"
)

// newFlags registers a fresh Options in its own flag set.
func newFlags(t *testing.T) (*Options, *flag.FlagSet) {
	t.Helper()
	o := &Options{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	e2econfig.AddOptionsToSet(fs, o, Prefix)
	return o, fs
}

func flagArg(t *testing.T, fs *flag.FlagSet, field, value string) string {
	t.Helper()
	var name string
	fs.VisitAll(func(f *flag.Flag) {
		if strings.EqualFold(f.Name, Prefix+"."+field) {
			name = f.Name
		}
	})
	if name == "" {
		t.Fatalf("no flag for %s", field)
	}
	return "--" + name + "=" + value
}

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestDefaults(t *testing.T) {
	g := gomega.NewWithT(t)

	o, fs := newFlags(t)
	g.Expect(fs.Parse(nil)).To(gomega.Succeed())
	g.Expect(o.Resolve(fs, env(nil))).To(gomega.Succeed())

	g.Expect(o.ClusterSet).To(gomega.Equal("submariner"))
	g.Expect(o.NATTPort).To(gomega.Equal(4505))
	g.Expect(o.Downstream).To(gomega.BeFalse())
	g.Expect(o.IDP).To(gomega.Equal("kube:admin"))
	g.Expect(o.InstallTimeout).To(gomega.Equal(650 * time.Second))
	g.Expect(o.Strength()).To(gomega.Equal(remote.LogOnly))
	g.Expect(o.Validate()).To(gomega.Succeed())
	g.Expect(o.Selector()).To(gomega.Equal(membership.Selector{Platforms: []string{"Amazon", "Google"}}))
}

func TestPrecedence(t *testing.T) {
	g := gomega.NewWithT(t)

	file := filepath.Join(t.TempDir(), "options.yaml")
	g.Expect(os.WriteFile(file, []byte(`
CLUSTERSET: from-file
SUBMARINER_IPSEC_NATT_PORT: 4600
DOWNSTREAM: true
MANAGED_CLUSTERS: sub-1, sub-2
`), 0o600)).To(gomega.Succeed())

	o, fs := newFlags(t)
	g.Expect(fs.Parse([]string{
		flagArg(t, fs, "ConfigFile", file),
		flagArg(t, fs, "ClusterSet", "from-flag"),
	})).To(gomega.Succeed())
	g.Expect(o.Resolve(fs, env(map[string]string{
		"CLUSTERSET":                 "from-env",
		"SUBMARINER_IPSEC_NATT_PORT": "4700",
	}))).To(gomega.Succeed())

	g.Expect(o.ClusterSet).To(gomega.Equal("from-flag"))
	g.Expect(o.NATTPort).To(gomega.Equal(4700))
	g.Expect(o.Downstream).To(gomega.BeTrue())
	g.Expect(o.Selector().AllowList).To(gomega.Equal([]string{"sub-1", "sub-2"}))
	g.Expect(o.CatalogSource).To(gomega.Equal("submariner-catalog"))
}

func TestResolveRejectsMalformedValues(t *testing.T) {
	g := gomega.NewWithT(t)

	o, fs := newFlags(t)
	g.Expect(fs.Parse(nil)).To(gomega.Succeed())
	err := o.Resolve(fs, env(map[string]string{"SUBMARINER_IPSEC_NATT_PORT": "four"}))
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("SUBMARINER_IPSEC_NATT_PORT")))

	o, fs = newFlags(t)
	g.Expect(fs.Parse([]string{flagArg(t, fs, "ConfigFile", filepath.Join(t.TempDir(), "missing.yaml"))})).To(gomega.Succeed())
	g.Expect(o.Resolve(fs, env(nil))).To(gomega.MatchError(gomega.ContainSubstring("read options file")))
}

func TestValidate(t *testing.T) {
	valid := func() Options {
		return Options{
			ClusterSet:           "submariner",
			NATTPort:             4505,
			ReachabilityStrength: "assert",
			InstallTimeout:       time.Minute,
			ServerCluster:        "sub-1",
			ClientCluster:        "sub-2",
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{name: "valid", mutate: func(*Options) {}},
		{name: "cluster set name", mutate: func(o *Options) { o.ClusterSet = "Not_Valid" }, wantErr: "invalid cluster set name"},
		{name: "cluster set name longer than a label value", mutate: func(o *Options) { o.ClusterSet = strings.Repeat("a", 64) }, wantErr: "invalid cluster set name"},
		{name: "port", mutate: func(o *Options) { o.NATTPort = 70000 }, wantErr: "outside 1-65535"},
		{name: "strength", mutate: func(o *Options) { o.ReachabilityStrength = "strict" }, wantErr: "unknown reachability strength"},
		{name: "timeout", mutate: func(o *Options) { o.InstallTimeout = 0 }, wantErr: "must be positive"},
		{name: "same clusters", mutate: func(o *Options) { o.ClientCluster = "sub-1" }, wantErr: "must differ"},
		{name: "downstream without catalog", mutate: func(o *Options) { o.Downstream = true }, wantErr: "catalog source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gomega.NewWithT(t)
			o := valid()
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr == "" {
				g.Expect(err).NotTo(gomega.HaveOccurred())
				return
			}
			g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring(tt.wantErr)))
		})
	}
}

func TestHubUser(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect((&Options{IDP: "kube:admin", Password: "pw"}).HubUser()).To(gomega.Equal("kubeadmin"))
	g.Expect((&Options{IDP: "htpasswd", Username: "alice", Password: "pw"}).HubUser()).To(gomega.Equal("alice"))
	g.Expect((&Options{IDP: "kube:admin"}).HubUser()).To(gomega.BeEmpty())
}
