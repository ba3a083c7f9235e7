// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// stubService implements suture.Service for tree tests. It counts
// starts and optionally fails a number of times before settling into a
// blocking run.
type stubService struct {
	name       string
	startCount atomic.Int32
	failsLeft  atomic.Int32
}

func newStubService(name string, failures int) *stubService {
	s := &stubService{name: name}
	s.failsLeft.Store(int32(failures))
	return s
}

func (s *stubService) Serve(ctx context.Context) error {
	s.startCount.Add(1)
	if s.failsLeft.Add(-1) >= 0 {
		return errors.New("stub failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewTreeDefaults(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	if tree.Root() == nil {
		t.Error("Root() = nil")
	}
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %f, want 5.0", tree.config.FailureThreshold)
	}
	if tree.config.FailureDecay != 30.0 {
		t.Errorf("FailureDecay = %f, want 30.0", tree.config.FailureDecay)
	}
	if tree.config.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want 15s", tree.config.FailureBackoff)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", tree.config.ShutdownTimeout)
	}
}

func TestTreeRunsAllLayers(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  100 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	auditSvc := newStubService("stub-audit", 0)
	housekeepingSvc := newStubService("stub-housekeeping", 0)
	apiSvc := newStubService("stub-api", 0)
	tree.AddAuditService(auditSvc)
	tree.AddHousekeepingService(housekeepingSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- tree.Serve(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for auditSvc.startCount.Load() == 0 ||
		housekeepingSvc.startCount.Load() == 0 ||
		apiSvc.startCount.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("services not all started: audit=%d housekeeping=%d api=%d",
				auditSvc.startCount.Load(), housekeepingSvc.startCount.Load(),
				apiSvc.startCount.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("tree did not shut down in time")
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  50 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	// Fails twice, then runs until canceled.
	svc := newStubService("stub-flaky", 2)
	tree.AddHousekeepingService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for svc.startCount.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("start count = %d, want >= 3", svc.startCount.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("ServeBackground() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("tree did not shut down in time")
	}
}
