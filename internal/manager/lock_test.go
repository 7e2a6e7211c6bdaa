package manager_test

import (
	"errors"
	"testing"

	"procqueue/internal/manager"
	"procqueue/internal/testsupport"
)

func TestLockSeparatesOverlappingScopes(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	billing, err := manager.Lock(cfg, "billing")
	if err != nil {
		t.Fatalf("lock billing: %v", err)
	}
	if _, err := manager.Lock(cfg, ""); !errors.Is(err, manager.ErrLocked) {
		t.Fatalf("expected all-queues lock refused while billing runs, got %v", err)
	}
	if _, err := manager.Lock(cfg, "billing"); !errors.Is(err, manager.ErrLocked) {
		t.Fatalf("expected second billing lock refused, got %v", err)
	}
	reports, err := manager.Lock(cfg, "reports")
	if err != nil {
		t.Fatalf("expected disjoint queue to lock, got %v", err)
	}
	if err := reports.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := billing.Unlock(); err != nil {
		t.Fatal(err)
	}

	all, err := manager.Lock(cfg, "")
	if err != nil {
		t.Fatalf("lock all queues: %v", err)
	}
	defer all.Unlock() //nolint:errcheck
	if _, err := manager.Lock(cfg, "billing"); !errors.Is(err, manager.ErrLocked) {
		t.Fatalf("expected billing lock refused while all queues run, got %v", err)
	}
	running, err := manager.Probe(cfg, "reports")
	if err != nil || !running {
		t.Fatalf("expected reports to report running under all-queues manager, got %v (err %v)", running, err)
	}
}

func TestLockReleasesSharedLockWhenQueueTaken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	billing, err := manager.Lock(cfg, "billing")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Lock(cfg, "billing"); !errors.Is(err, manager.ErrLocked) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := billing.Unlock(); err != nil {
		t.Fatal(err)
	}

	all, err := manager.Lock(cfg, "")
	if err != nil {
		t.Fatalf("expected failed attempt to leave no shared lock behind, got %v", err)
	}
	_ = all.Unlock()
	if running, err := manager.Probe(cfg, ""); err != nil || running {
		t.Fatalf("expected nothing running, got %v (err %v)", running, err)
	}
}

func TestLockPathsDoNotCollideWithQueueNames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if cfg.LockPath("") == cfg.LockPath("all") {
		t.Fatalf("all-queues lock shares a path with queue %q", "all")
	}
}
