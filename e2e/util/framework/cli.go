package framework

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	uexec "k8s.io/utils/exec"

	"k8s.io/kubernetes/test/e2e/framework"
)

// CLIBuilder is used to build, customize and execute a command line client
// such as oc against one cluster.
// Add more functions to customize the builder as needed.
type CLIBuilder struct {
	cmd     *exec.Cmd
	timeout <-chan time.Time
	// redact hides arguments such as passwords from the logged command line.
	redact []string
}

// NewCLICommand returns a CLIBuilder running binary against the cluster of
// kubeconfig. An empty kubeconfig leaves the client on its default.
func NewCLICommand(ctx context.Context, binary, kubeconfig string, args ...string) *CLIBuilder {
	b := new(CLIBuilder)

	defaultArgs := []string{}
	if kubeconfig != "" {
		defaultArgs = append(defaultArgs, "--kubeconfig="+kubeconfig)
	}
	cliArgs := append(defaultArgs, args...)

	b.cmd = exec.CommandContext(ctx, binary, cliArgs...)
	return b
}

// WithTimeout sets the given timeout and returns itself.
func (b *CLIBuilder) WithTimeout(t <-chan time.Time) *CLIBuilder {
	b.timeout = t
	return b
}

// WithRedacted hides the given values from the logged command line.
func (b *CLIBuilder) WithRedacted(values ...string) *CLIBuilder {
	b.redact = append(b.redact, values...)
	return b
}

// WithStdinData sets the given data to stdin and returns itself.
func (b CLIBuilder) WithStdinData(data string) *CLIBuilder {
	b.cmd.Stdin = strings.NewReader(data)
	return &b
}

// Exec runs the executable.
func (b CLIBuilder) Exec() (string, error) {
	stdout, _, err := b.ExecWithFullOutput()
	return stdout, err
}

func (b CLIBuilder) commandLine() string {
	line := strings.Join(b.cmd.Args[1:], " ") // skip arg[0] as it is printed separately
	for _, secret := range b.redact {
		if secret != "" {
			line = strings.ReplaceAll(line, secret, "<redacted>")
		}
	}
	return fmt.Sprintf("%s %s", b.cmd.Path, line)
}

// ExecWithFullOutput runs the executable, and returns the stdout and stderr.
func (b CLIBuilder) ExecWithFullOutput() (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := b.cmd
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	framework.Logf("Running '%s'", b.commandLine())
	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("error starting %s:\nCommand stdout:\n%v\nstderr:\n%v\nerror:\n%v", b.commandLine(), cmd.Stdout, cmd.Stderr, err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.Wait()
	}()
	select {
	case err := <-errCh:
		if err != nil {
			var rc = 127
			if ee, ok := err.(*exec.ExitError); ok {
				rc = int(ee.Sys().(syscall.WaitStatus).ExitStatus())
				framework.Logf("rc: %d", rc)
			}
			return stdout.String(), stderr.String(), uexec.CodeExitError{
				Err:  fmt.Errorf("error running %s:\nCommand stdout:\n%v\nstderr:\n%v\nerror:\n%v", b.commandLine(), cmd.Stdout, cmd.Stderr, err),
				Code: rc,
			}
		}
	case <-b.timeout:
		b.cmd.Process.Kill()
		return "", "", fmt.Errorf("timed out waiting for command %s:\nCommand stdout:\n%v\nstderr:\n%v", b.commandLine(), cmd.Stdout, cmd.Stderr)
	}
	framework.Logf("stderr: %q", stderr.String())
	framework.Logf("stdout: %q", stdout.String())
	return stdout.String(), stderr.String(), nil
}
