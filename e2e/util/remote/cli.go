package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	frameworkutil "github.com/stolostron/submariner-addon-e2e/e2e/util/framework"
)

const (
	DefaultBinary         = "oc"
	DefaultLoginTimeout   = 40 * time.Second
	DefaultCommandTimeout = 3 * time.Minute
)

// CLI runs oc against one member cluster. Every CLI keeps its own
// kubeconfig so logging into one cluster never changes the context of
// another or of the hub.
type CLI struct {
	creds          Credentials
	binary         string
	dir            string
	kubeconfig     string
	loginTimeout   time.Duration
	commandTimeout time.Duration
}

type CLIOption func(*CLI)

// WithBinary runs the given executable instead of oc from the PATH.
func WithBinary(path string) CLIOption {
	return func(c *CLI) { c.binary = path }
}

func WithLoginTimeout(d time.Duration) CLIOption {
	return func(c *CLI) { c.loginTimeout = d }
}

func WithCommandTimeout(d time.Duration) CLIOption {
	return func(c *CLI) { c.commandTimeout = d }
}

// NewCLI returns a CLI for creds. Close removes its kubeconfig.
func NewCLI(creds Credentials, opts ...CLIOption) (*CLI, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	c := &CLI{
		creds:          creds,
		binary:         DefaultBinary,
		loginTimeout:   DefaultLoginTimeout,
		commandTimeout: DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	dir, err := os.MkdirTemp("", "submariner-"+creds.Cluster+"-")
	if err != nil {
		return nil, fmt.Errorf("create kubeconfig dir for %s: %w", creds.Cluster, err)
	}
	c.dir = dir
	c.kubeconfig = filepath.Join(dir, "kubeconfig")
	return c, nil
}

func (c *CLI) Cluster() string { return c.creds.Cluster }

// Kubeconfig is the path oc login writes the session of this cluster to.
func (c *CLI) Kubeconfig() string { return c.kubeconfig }

func (c *CLI) command(ctx context.Context, timeout time.Duration, args ...string) *frameworkutil.CLIBuilder {
	return frameworkutil.NewCLICommand(ctx, c.binary, c.kubeconfig, args...).
		WithTimeout(time.After(timeout)).
		WithRedacted(c.creds.Password)
}

// Login opens a session on the cluster with username and password.
func (c *CLI) Login(ctx context.Context) error {
	_, err := c.command(ctx, c.loginTimeout,
		"login",
		"--server="+c.creds.APIURL,
		"-u", c.creds.Username,
		"-p", c.creds.Password,
		"--insecure-skip-tls-verify",
	).Exec()
	if err != nil {
		return fmt.Errorf("login to %s: %w", c.creds, err)
	}
	return nil
}

// Run runs oc with args and returns its stdout.
func (c *CLI) Run(ctx context.Context, args ...string) (string, error) {
	return c.command(ctx, c.commandTimeout, args...).Exec()
}

// RunInput runs oc with args feeding data to its stdin.
func (c *CLI) RunInput(ctx context.Context, data string, args ...string) (string, error) {
	return c.command(ctx, c.commandTimeout, args...).WithStdinData(data).Exec()
}

// Close removes the kubeconfig of the session.
func (c *CLI) Close() error {
	return os.RemoveAll(c.dir)
}
