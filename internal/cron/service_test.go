package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brickapparel/storefront-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	released int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsAllJobsAndCombinesFailures(t *testing.T) {
	ok := &testJob{name: "cart-expiry"}
	first := &testJob{name: "pending-payment-expiry", err: errors.New("db down")}
	second := &testJob{name: "outbox-retention", err: errors.New("timeout")}
	lock := &fakeLock{}
	service := newTestService(t, lock, first, ok, second)

	err := service.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	for _, want := range []string{"pending-payment-expiry: db down", "outbox-retention: timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
	for _, job := range []*testJob{ok, first, second} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}
	if lock.released != 1 || lock.held {
		t.Fatalf("expected lock released once, released=%d held=%v", lock.released, lock.held)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "cart-expiry"}
	service := newTestService(t, &fakeLock{held: true}, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
}

func TestRunOnceReportsLockErrors(t *testing.T) {
	job := &testJob{name: "cart-expiry"}
	service := newTestService(t, &fakeLock{err: errors.New("redis unavailable")}, job)

	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs, got %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without lock")
	}
}

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (f funcJob) Name() string { return f.name }

func (f funcJob) Run(ctx context.Context) error { return f.run(ctx) }

func TestRunOnceRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "cart-expiry"}
	boom := funcJob{name: "outbox-retention", run: func(context.Context) error { panic("nil map") }}
	lock := &fakeLock{}
	service := newTestService(t, lock, boom, after)

	err := service.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "outbox-retention: panic: nil map") {
		t.Fatalf("expected panic reported as error, got %v", err)
	}
	if after.runs != 1 {
		t.Fatal("job after the panic should still run")
	}
	if lock.released != 1 {
		t.Fatal("lock should be released after a panic")
	}
}

func TestJobsRunUnderTimeout(t *testing.T) {
	var deadline time.Time
	job := funcJob{name: "cart-expiry", run: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   NewRegistry(job),
		Lock:       &fakeLock{},
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	before := time.Now()
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if deadline.IsZero() || deadline.Sub(before) > time.Minute+time.Second {
		t.Fatalf("expected a one minute deadline, got %v", deadline)
	}
}

func TestRunOnceStopsWhenCancelled(t *testing.T) {
	job := &testJob{name: "cart-expiry"}
	service := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = service.RunOnce(ctx)
	if job.runs != 0 {
		t.Fatalf("expected no jobs after cancellation, ran %d", job.runs)
	}
}
