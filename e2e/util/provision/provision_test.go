package provision

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

func fakeClock(t *testing.T) *testingclock.FakeClock {
	t.Helper()
	fc := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			if fc.HasWaiters() {
				fc.Step(time.Second)
				continue
			}
			runtime.Gosched()
		}
	}()
	return fc
}

func TestEnsureCreatesAlpha(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()

	backend := NewMemoryBackend("managedclusterset")
	backend.CreateLag = 2
	p := New(backend, WithClock(fakeClock(t)))

	handle, err := p.Ensure(ctx, "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(handle.Created).To(gomega.BeTrue())
	g.Expect(handle.String()).To(gomega.Equal("managedclusterset/alpha"))
	g.Expect(backend.Creates).To(gomega.Equal(1))

	existence, err := backend.Lookup(ctx, "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(existence).To(gomega.Equal(resource.Exists))
}

func TestEnsureIsIdempotent(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()

	backend := NewMemoryBackend("managedclusterset")
	p := New(backend, WithClock(fakeClock(t)))

	first, err := p.Ensure(ctx, "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(first.Created).To(gomega.BeTrue())

	second, err := p.Ensure(ctx, "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(second.Created).To(gomega.BeFalse())
	g.Expect(second.Name).To(gomega.Equal("alpha"))
	g.Expect(backend.Creates).To(gomega.Equal(1))
}

func TestEnsureReusesPreexistingResource(t *testing.T) {
	g := gomega.NewWithT(t)

	backend := NewMemoryBackend("managedclusterset", "alpha")
	handle, err := New(backend).Ensure(context.Background(), "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(handle.Created).To(gomega.BeFalse())
	g.Expect(backend.Creates).To(gomega.BeZero())
}

func TestEnsureTimesOutWithoutAcknowledgement(t *testing.T) {
	g := gomega.NewWithT(t)

	backend := NewMemoryBackend("managedclusterset")
	backend.CreateLag = 1000
	p := New(backend, WithClock(fakeClock(t)))

	handle, err := p.Ensure(context.Background(), "alpha")
	g.Expect(handle.Created).To(gomega.BeTrue())
	g.Expect(errors.Is(err, failure.ErrProvisioningTimeout)).To(gomega.BeTrue())
	g.Expect(err.Error()).To(gomega.ContainSubstring("managedclusterset/alpha"))
}

func TestEnsureUsesCustomAcknowledgement(t *testing.T) {
	g := gomega.NewWithT(t)

	acks := 0
	backend := NewMemoryBackend("managedclusterset")
	p := New(backend, WithClock(fakeClock(t)), WithAcknowledgement(func(context.Context, string) (bool, error) {
		acks++
		return acks == 3, nil
	}))

	_, err := p.Ensure(context.Background(), "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(acks).To(gomega.Equal(3))
}

func TestDeleteWaitsUntilNotFound(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()

	backend := NewMemoryBackend("managedclusterset", "alpha")
	backend.DeleteLag = 3
	p := New(backend, WithClock(fakeClock(t)))

	g.Expect(p.Delete(ctx, "alpha")).To(gomega.Succeed())
	g.Expect(backend.Deletes).To(gomega.Equal(1))

	existence, err := backend.Lookup(ctx, "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(existence).To(gomega.Equal(resource.NotFound))
}

func TestDeleteOfAbsentResourceIsNoop(t *testing.T) {
	g := gomega.NewWithT(t)

	backend := NewMemoryBackend("managedclusterset")
	g.Expect(New(backend).Delete(context.Background(), "alpha")).To(gomega.Succeed())
	g.Expect(backend.Deletes).To(gomega.BeZero())
}

func TestDeleteTimesOutWhileStillPresent(t *testing.T) {
	g := gomega.NewWithT(t)

	backend := NewMemoryBackend("managedclusterset", "alpha")
	backend.DeleteLag = 1000
	p := New(backend, WithClock(fakeClock(t)))

	err := p.Delete(context.Background(), "alpha")
	g.Expect(errors.Is(err, failure.ErrTeardownTimeout)).To(gomega.BeTrue())
	g.Expect(err.Error()).To(gomega.ContainSubstring("last observed: Exists"))
}

func TestCancelDeleteKeepsAlpha(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()

	backend := NewMemoryBackend("managedclusterset", "alpha")
	p := New(backend)

	g.Expect(p.CancelDelete(ctx, "alpha")).To(gomega.Succeed())
	g.Expect(backend.Deletes).To(gomega.BeZero())

	existence, err := backend.Lookup(ctx, "alpha")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(existence).To(gomega.Equal(resource.Exists))
}

func TestCancelDeleteRequiresExistingResource(t *testing.T) {
	g := gomega.NewWithT(t)

	err := New(NewMemoryBackend("managedclusterset")).CancelDelete(context.Background(), "alpha")
	g.Expect(errors.Is(err, failure.ErrPreconditionMissing)).To(gomega.BeTrue())
}

type unknownBackend struct {
	*MemoryBackend
}

func (unknownBackend) Lookup(context.Context, string) (resource.Existence, error) {
	return resource.Unknown, nil
}

func TestEnsureRejectsUnknownState(t *testing.T) {
	g := gomega.NewWithT(t)

	backend := unknownBackend{NewMemoryBackend("managedclusterset")}
	_, err := New(backend).Ensure(context.Background(), "alpha")
	g.Expect(errors.Is(err, failure.ErrUnexpectedState)).To(gomega.BeTrue())
	g.Expect(backend.Creates).To(gomega.BeZero())
}

func TestEnsurePropagatesLookupFailure(t *testing.T) {
	g := gomega.NewWithT(t)

	backend := &failingBackend{MemoryBackend: NewMemoryBackend("managedclusterset")}
	_, err := New(backend).Ensure(context.Background(), "alpha")
	g.Expect(errors.Is(err, failure.ErrUnexpectedState)).To(gomega.BeTrue())
	g.Expect(err.Error()).To(gomega.ContainSubstring("last observed: 503"))
	g.Expect(backend.Creates).To(gomega.BeZero())
}

type failingBackend struct {
	*MemoryBackend
}

func (b *failingBackend) Lookup(_ context.Context, name string) (resource.Existence, error) {
	return resource.Unknown, failure.New(failure.UnexpectedState, b.Kind()+"/"+name, int32(503), errors.New("service unavailable"))
}
