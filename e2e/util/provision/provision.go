// Package provision ensures a named resource exists and tears it down again.
//
// Ensure creates only on the not-found path, so calling it repeatedly with
// the same name is idempotent. Existence is always decided by a fresh state
// query, never by what this process believes it created.
package provision

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/poll"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

// Backend is the surface a kind of named resource is provisioned through.
type Backend interface {
	// Kind names the resource in logs and failures, e.g. "managedclusterset".
	Kind() string
	Lookup(ctx context.Context, name string) (resource.Existence, error)
	Create(ctx context.Context, name string) error
	// PrepareDelete starts a deletion without committing it.
	PrepareDelete(ctx context.Context, name string) (DeleteRequest, error)
}

// DeleteRequest is a prepared deletion awaiting confirmation.
type DeleteRequest interface {
	Confirm(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Acknowledgement reports whether a creation has been confirmed.
type Acknowledgement func(ctx context.Context, name string) (bool, error)

// Handle references a resource that Ensure found or created.
type Handle struct {
	Kind string
	Name string
	// Created is true only when this call created the resource.
	Created bool
}

func (h Handle) String() string {
	return h.Kind + "/" + h.Name
}

// Provisioner runs the ensure and teardown workflows against a Backend.
type Provisioner struct {
	backend       Backend
	acknowledged  Acknowledgement
	createTimeout time.Duration
	deleteTimeout time.Duration
	interval      time.Duration
	clock         clock.Clock
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithCreateTimeout bounds the wait for a creation acknowledgement.
func WithCreateTimeout(d time.Duration) Option {
	return func(p *Provisioner) { p.createTimeout = d }
}

// WithDeleteTimeout bounds the wait for a deletion to be observed.
func WithDeleteTimeout(d time.Duration) Option {
	return func(p *Provisioner) { p.deleteTimeout = d }
}

// WithInterval sets the poll interval of both waits.
func WithInterval(d time.Duration) Option {
	return func(p *Provisioner) { p.interval = d }
}

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(p *Provisioner) { p.clock = c }
}

// WithAcknowledgement replaces the default acknowledgement, which is the
// resource being reported as existing.
func WithAcknowledgement(ack Acknowledgement) Option {
	return func(p *Provisioner) { p.acknowledged = ack }
}

// New returns a Provisioner with 20s create and delete timeouts polled every 2s.
func New(backend Backend, opts ...Option) *Provisioner {
	p := &Provisioner{
		backend:       backend,
		createTimeout: poll.DefaultTimeout,
		deleteTimeout: poll.DefaultTimeout,
		interval:      poll.DefaultInterval,
		clock:         clock.RealClock{},
	}
	p.acknowledged = func(ctx context.Context, name string) (bool, error) {
		existence, err := p.backend.Lookup(ctx, name)
		return existence == resource.Exists, err
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provisioner) subject(name string) string {
	return p.backend.Kind() + "/" + name
}

// Ensure returns a handle to the named resource, creating it only when the
// state query reports it absent.
func (p *Provisioner) Ensure(ctx context.Context, name string) (Handle, error) {
	logger := klog.FromContext(ctx).WithValues("kind", p.backend.Kind(), "name", name)
	handle := Handle{Kind: p.backend.Kind(), Name: name}

	existence, err := p.backend.Lookup(ctx, name)
	if err != nil {
		return handle, err
	}
	switch existence {
	case resource.Exists:
		logger.V(1).Info("Reusing existing resource")
		return handle, nil
	case resource.NotFound:
	default:
		return handle, failure.New(failure.UnexpectedState, p.subject(name), existence, nil)
	}

	logger.Info("Creating resource")
	if err := p.backend.Create(ctx, name); err != nil {
		return handle, fmt.Errorf("create %s: %w", p.subject(name), err)
	}
	handle.Created = true

	out, err := poll.Until(ctx, func(ctx context.Context) (bool, bool, error) {
		ok, err := p.acknowledged(ctx, name)
		return ok, ok, err
	}, p.pollOptions(p.createTimeout, "%s to be acknowledged", p.subject(name))...)
	if err != nil {
		return handle, err
	}
	if out.TimedOut() {
		return handle, failure.New(failure.ProvisioningTimeout, p.subject(name), out.Value, out.LastErr)
	}
	logger.Info("Resource created", "elapsed", out.Elapsed)
	return handle, nil
}

// Delete removes the named resource and waits until the state query reports
// it gone. Deleting a resource that does not exist is a no-op.
func (p *Provisioner) Delete(ctx context.Context, name string) error {
	logger := klog.FromContext(ctx).WithValues("kind", p.backend.Kind(), "name", name)

	existence, err := p.backend.Lookup(ctx, name)
	if err != nil {
		return err
	}
	if existence == resource.NotFound {
		logger.V(1).Info("Resource already absent, nothing to delete")
		return nil
	}

	req, err := p.backend.PrepareDelete(ctx, name)
	if err != nil {
		return fmt.Errorf("prepare delete %s: %w", p.subject(name), err)
	}
	if err := req.Confirm(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", p.subject(name), err)
	}

	out, err := poll.Gone(ctx, func(ctx context.Context) (bool, error) {
		existence, err := p.backend.Lookup(ctx, name)
		if err != nil {
			return false, err
		}
		return existence == resource.Exists, nil
	}, p.pollOptions(p.deleteTimeout, "%s to be deleted", p.subject(name))...)
	if err != nil {
		return err
	}
	if out.TimedOut() {
		return failure.New(failure.TeardownTimeout, p.subject(name), resource.Exists, out.LastErr)
	}
	logger.Info("Resource deleted", "elapsed", out.Elapsed)
	return nil
}

// CancelDelete prepares a deletion, cancels it and verifies the resource
// survived, exercising the cancel path without mutating state.
func (p *Provisioner) CancelDelete(ctx context.Context, name string) error {
	existence, err := p.backend.Lookup(ctx, name)
	if err != nil {
		return err
	}
	if existence != resource.Exists {
		return failure.New(failure.PreconditionMissing, p.subject(name), existence, nil)
	}

	req, err := p.backend.PrepareDelete(ctx, name)
	if err != nil {
		return fmt.Errorf("prepare delete %s: %w", p.subject(name), err)
	}
	if err := req.Cancel(ctx); err != nil {
		return fmt.Errorf("cancel delete %s: %w", p.subject(name), err)
	}

	existence, err = p.backend.Lookup(ctx, name)
	if err != nil {
		return err
	}
	if existence != resource.Exists {
		return failure.New(failure.UnexpectedState, p.subject(name), existence, fmt.Errorf("resource disappeared after a cancelled delete"))
	}
	klog.FromContext(ctx).V(1).Info("Cancelled delete left resource in place", "kind", p.backend.Kind(), "name", name)
	return nil
}

func (p *Provisioner) pollOptions(timeout time.Duration, format string, args ...any) []poll.Option {
	return []poll.Option{
		poll.WithTimeout(timeout),
		poll.WithInterval(min(p.interval, timeout)),
		poll.WithClock(p.clock),
		poll.WithDescription(format, args...),
	}
}
