package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"procqueue/internal/config"
	"procqueue/internal/queue"
	"procqueue/internal/testsupport"
)

const testQueue = "cron"

func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func TestPublishInsertsDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := testsupport.Publish(t, store, cfg, testQueue, "mail", "42", nil)
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Hash != "mail_42" {
		t.Fatalf("unexpected hash %q", item.Hash)
	}
	if item.Attempts != cfg.Items.Attempts || item.MaxAttempts != cfg.Items.Attempts {
		t.Fatalf("expected attempts %d, got %d/%d", cfg.Items.Attempts, item.Attempts, item.MaxAttempts)
	}
	if item.Priority != cfg.Items.Priority {
		t.Fatalf("expected priority %d, got %d", cfg.Items.Priority, item.Priority)
	}
	if item.Running || item.Banned || item.Persist {
		t.Fatalf("unexpected flags on new item: %#v", item)
	}
	payload, err := queue.DecodePayload(item.Payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Task != "mail" || payload.Record != "42" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestPublishRejectsInvalidRequests(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name   string
		req    queue.PublishRequest
		queue  string
		mutate func(*queue.Settings)
	}{
		{name: "missing task", req: queue.PublishRequest{Record: "1"}, queue: testQueue},
		{name: "missing queue", req: queue.PublishRequest{Task: "t"}, queue: " "},
		{name: "zero attempts", req: queue.PublishRequest{Task: "t"}, queue: testQueue, mutate: func(s *queue.Settings) { s.Attempts = 0 }},
		{name: "priority range", req: queue.PublishRequest{Task: "t"}, queue: testQueue, mutate: func(s *queue.Settings) { s.Priority = 42 }},
		{name: "missing broker", req: queue.PublishRequest{Task: "t"}, queue: testQueue, mutate: func(s *queue.Settings) { s.Broker = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			req.Settings = queue.DefaultSettings(cfg.Items)
			if tc.mutate != nil {
				tc.mutate(&req.Settings)
			}
			_, err := store.Publish(ctx, req, tc.queue)
			if !errors.Is(err, queue.ErrInvalidItem) {
				t.Fatalf("expected ErrInvalidItem, got %v", err)
			}
		})
	}
}

func TestPublishConsultsBindingCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.SetBindingCheck(func(s queue.Settings) error {
		if s.Job != "default" {
			return fmt.Errorf("unknown job %q", s.Job)
		}
		return nil
	})

	settings := queue.DefaultSettings(cfg.Items)
	settings.Job = "mystery"
	_, err := store.Publish(context.Background(), queue.PublishRequest{Task: "t", Settings: settings}, testQueue)
	if !errors.Is(err, queue.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.Publish(t, store, cfg, testQueue, "mail", "1", nil)
	second := testsupport.Publish(t, store, cfg, testQueue, "mail", "1", nil)
	if first.ID != second.ID {
		t.Fatalf("expected upsert to keep id %d, got %d", first.ID, second.ID)
	}
	if second.Attempts > cfg.Items.Attempts {
		t.Fatalf("attempts grew above default: %d", second.Attempts)
	}

	items, err := store.List(ctx, queue.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected a single row, got %d", len(items))
	}
}

func TestPublishClampRule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.Publish(t, store, cfg, testQueue, "mail", "1", func(s *queue.Settings) { s.Attempts = 5 })
	leased, err := store.Lease(ctx, 1, testQueue)
	if err != nil || len(leased) != 1 {
		t.Fatalf("Lease: %v (%d items)", err, len(leased))
	}
	leased[0].Attempts = 3
	if err := store.Nack(ctx, leased[0]); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	// Same budget and different priority: stored settings are preserved.
	same := testsupport.Publish(t, store, cfg, testQueue, "mail", "1", func(s *queue.Settings) {
		s.Attempts = 5
		s.Priority = 1
	})
	if same.Attempts != 3 || same.Priority != item.Priority {
		t.Fatalf("expected preserved settings, got attempts=%d priority=%d", same.Attempts, same.Priority)
	}

	// A larger budget forces a reset.
	raised := testsupport.Publish(t, store, cfg, testQueue, "mail", "1", func(s *queue.Settings) {
		s.Attempts = 8
		s.Priority = 1
	})
	if raised.Attempts != 8 || raised.MaxAttempts != 8 || raised.Priority != 1 {
		t.Fatalf("expected reset to 8 attempts priority 1, got %d/%d priority %d", raised.Attempts, raised.MaxAttempts, raised.Priority)
	}

	// A smaller budget clamps stored attempts down.
	lowered := testsupport.Publish(t, store, cfg, testQueue, "mail", "1", func(s *queue.Settings) { s.Attempts = 2 })
	if lowered.Attempts != 2 {
		t.Fatalf("expected clamp to 2 attempts, got %d", lowered.Attempts)
	}
}

func TestPublishPersistentItemAlwaysResets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	req := queue.RefresherRequest(cfg.Items)
	item, err := store.Publish(ctx, req, testQueue)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !item.Persist {
		t.Fatal("expected refresher item to persist")
	}
	if err := store.Ban(ctx, item); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	again, err := store.Publish(ctx, req, testQueue)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if again.Banned || again.Attempts != cfg.Items.Attempts {
		t.Fatalf("expected persistent item reset, got banned=%v attempts=%d", again.Banned, again.Attempts)
	}
}

func TestLeaseOrdersByPriorityThenCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.SetClock(stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	testsupport.Publish(t, store, cfg, testQueue, "task", "old-low", func(s *queue.Settings) { s.Priority = 7 })
	testsupport.Publish(t, store, cfg, testQueue, "task", "old-high", func(s *queue.Settings) { s.Priority = 2 })
	testsupport.Publish(t, store, cfg, testQueue, "task", "new-high", func(s *queue.Settings) { s.Priority = 2 })
	testsupport.Publish(t, store, cfg, "other", "task", "elsewhere", func(s *queue.Settings) { s.Priority = 0 })

	items, err := store.Lease(ctx, 10, testQueue)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	var hashes []string
	for _, item := range items {
		hashes = append(hashes, item.Hash)
		if !item.Running || item.StartedAt.IsZero() {
			t.Fatalf("expected leased item marked running: %#v", item)
		}
	}
	want := []string{"task_old-high", "task_new-high", "task_old-low"}
	if fmt.Sprint(hashes) != fmt.Sprint(want) {
		t.Fatalf("unexpected lease order %v, want %v", hashes, want)
	}

	again, err := store.Lease(ctx, 10, testQueue)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected running items to be skipped, got %d", len(again))
	}
}

func TestLeaseRespectsLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		testsupport.Publish(t, store, cfg, testQueue, "task", fmt.Sprint(i), nil)
	}
	items, err := store.Lease(ctx, 2, testQueue)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items, err := store.Lease(ctx, 0, testQueue); err != nil || len(items) != 0 {
		t.Fatalf("expected no-op lease, got %d items err=%v", len(items), err)
	}
}

func TestConcurrentLeasesNeverOverlap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	other := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const total = 40
	for i := 0; i < total; i++ {
		testsupport.Publish(t, store, cfg, testQueue, "task", fmt.Sprint(i), nil)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
		errs = make(chan error, 8)
	)
	for i := 0; i < 8; i++ {
		s := store
		if i%2 == 1 {
			s = other
		}
		wg.Add(1)
		go func(s *queue.Store) {
			defer wg.Done()
			for {
				items, err := s.Lease(ctx, 3, testQueue)
				if err != nil {
					errs <- err
					return
				}
				if len(items) == 0 {
					return
				}
				mu.Lock()
				for _, item := range items {
					seen[item.Hash]++
				}
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Lease: %v", err)
	}
	if len(seen) != total {
		t.Fatalf("expected %d distinct items leased, got %d", total, len(seen))
	}
	for hash, count := range seen {
		if count != 1 {
			t.Fatalf("item %s leased %d times", hash, count)
		}
	}
}

func TestBannedItemsAreNeverLeased(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.Publish(t, store, cfg, testQueue, "task", "x", nil)
	if err := store.Ban(ctx, item); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	items, err := store.Lease(ctx, 5, "")
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected banned item skipped, got %d", len(items))
	}
}

func TestAckDeletesTransientItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Publish(t, store, cfg, testQueue, "task", "x", nil)
	items, err := store.Lease(ctx, 1, testQueue)
	if err != nil || len(items) != 1 {
		t.Fatalf("Lease: %v", err)
	}
	if err := store.Ack(ctx, items[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if _, err := store.GetByHash(ctx, "task_x"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ack, got %v", err)
	}
}

func TestAckPersistentItemRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Publish(ctx, queue.RefresherRequest(cfg.Items), testQueue); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	items, err := store.Lease(ctx, 1, testQueue)
	if err != nil || len(items) != 1 {
		t.Fatalf("Lease: %v", err)
	}
	items[0].Attempts = 3
	if err := store.Ack(ctx, items[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	stored, err := store.GetByHash(ctx, items[0].Hash)
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if stored.State() != queue.StatePending {
		t.Fatalf("expected pending, got %s", stored.State())
	}
	if stored.Attempts != cfg.Items.Attempts {
		t.Fatalf("expected attempts reset to %d, got %d", cfg.Items.Attempts, stored.Attempts)
	}
}

func TestPersistDelayPostponesNextLease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	store.SetPersistDelay(time.Minute)

	if _, err := store.Publish(ctx, queue.RefresherRequest(cfg.Items), testQueue); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	items, err := store.Lease(ctx, 1, testQueue)
	if err != nil || len(items) != 1 {
		t.Fatalf("Lease: %d items err=%v", len(items), err)
	}
	if err := store.Ack(ctx, items[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	if items, err := store.Lease(ctx, 1, testQueue); err != nil || len(items) != 0 {
		t.Fatalf("expected resting item skipped, got %d err=%v", len(items), err)
	}

	now = now.Add(2 * time.Minute)
	if items, err := store.Lease(ctx, 1, testQueue); err != nil || len(items) != 1 {
		t.Fatalf("expected item leasable after delay, got %d err=%v", len(items), err)
	}
}

func TestNackRequeuesWithAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Publish(t, store, cfg, testQueue, "task", "x", func(s *queue.Settings) { s.Attempts = 2 })
	items, err := store.Lease(ctx, 1, testQueue)
	if err != nil || len(items) != 1 {
		t.Fatalf("Lease: %v", err)
	}
	items[0].Attempts = 1
	if err := store.Nack(ctx, items[0]); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	stored, err := store.GetByHash(ctx, "task_x")
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if stored.Running || stored.Banned || stored.Attempts != 1 {
		t.Fatalf("unexpected state after nack: %#v", stored)
	}
	if again, err := store.Lease(ctx, 1, testQueue); err != nil || len(again) != 1 {
		t.Fatalf("expected nacked item leasable again, got %d err=%v", len(again), err)
	}
}

func TestNackWithExhaustedBudgetBans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Publish(t, store, cfg, testQueue, "task", "x", func(s *queue.Settings) { s.Attempts = 1 })
	items, err := store.Lease(ctx, 1, testQueue)
	if err != nil || len(items) != 1 {
		t.Fatalf("Lease: %v", err)
	}
	items[0].Attempts = 0
	if err := store.Nack(ctx, items[0]); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	stored, err := store.GetByHash(ctx, "task_x")
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if !stored.Banned || stored.Attempts != 0 {
		t.Fatalf("expected banned with zero attempts, got %#v", stored)
	}
}

func TestBanRunsHook(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var hooked []string
	store.SetBanHook(func(_ context.Context, item *queue.Item) error {
		hooked = append(hooked, item.Hash)
		if item.Hash == "task_bad" {
			return errors.New("boom")
		}
		return nil
	})

	good := testsupport.Publish(t, store, cfg, testQueue, "task", "good", nil)
	if err := store.Ban(ctx, good); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	bad := testsupport.Publish(t, store, cfg, testQueue, "task", "bad", nil)
	if err := store.Ban(ctx, bad); !errors.Is(err, queue.ErrHookFailed) {
		t.Fatalf("expected ErrHookFailed, got %v", err)
	}
	stored, err := store.GetByHash(ctx, "task_bad")
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if !stored.Banned {
		t.Fatal("expected ban persisted despite hook failure")
	}
	if len(hooked) != 2 {
		t.Fatalf("expected hook called twice, got %v", hooked)
	}
}

func TestChainBanHooksRunsAll(t *testing.T) {
	var calls []string
	first := errors.New("first")
	hook := queue.ChainBanHooks(
		func(context.Context, *queue.Item) error {
			calls = append(calls, "a")
			return first
		},
		nil,
		func(context.Context, *queue.Item) error {
			calls = append(calls, "b")
			return nil
		},
	)
	err := hook(context.Background(), &queue.Item{Hash: "task_x"})
	if !errors.Is(err, first) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if strings.Join(calls, ",") != "a,b" {
		t.Fatalf("expected both hooks called, got %v", calls)
	}
}

func TestRequeueOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	crashed := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return crashed })
	testsupport.Publish(t, store, cfg, testQueue, "task", "a", nil)
	testsupport.Publish(t, store, cfg, testQueue, "task", "b", nil)
	testsupport.Publish(t, store, cfg, "other", "task", "c", nil)
	if items, err := store.Lease(ctx, 10, ""); err != nil || len(items) != 3 {
		t.Fatalf("Lease: %d items err=%v", len(items), err)
	}

	boot := crashed.Add(time.Hour)
	store.SetClock(func() time.Time { return boot })
	count, err := store.RequeueOrphans(ctx, boot, testQueue)
	if err != nil {
		t.Fatalf("RequeueOrphans: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 orphans recovered, got %d", count)
	}

	items, err := store.Lease(ctx, 10, testQueue)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected recovered items leasable, got %d", len(items))
	}

	// Items leased after boot are not orphans.
	count, err = store.RequeueOrphans(ctx, boot, testQueue)
	if err != nil {
		t.Fatalf("RequeueOrphans: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected fresh leases untouched, got %d", count)
	}
}

func TestRetryRestoresBannedItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.Publish(t, store, cfg, testQueue, "task", "x", func(s *queue.Settings) { s.Attempts = 4 })
	if err := store.Ban(ctx, item); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	retried, err := store.Retry(ctx, item.Hash)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Banned || retried.Attempts != 4 {
		t.Fatalf("unexpected retried item %#v", retried)
	}
	if _, err := store.Retry(ctx, "missing_x"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatsAndRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Publish(t, store, cfg, testQueue, "task", "a", nil)
	testsupport.Publish(t, store, cfg, testQueue, "task", "b", nil)
	banned := testsupport.Publish(t, store, cfg, testQueue, "task", "c", nil)
	if err := store.Ban(ctx, banned); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if _, err := store.Lease(ctx, 1, testQueue); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	health, err := store.Health(ctx, testQueue)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Running != 1 || health.Banned != 1 {
		t.Fatalf("unexpected health %#v", health)
	}

	removed, err := store.Remove(ctx, "task_a", "task_b", "task_missing")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	banList, err := store.List(ctx, queue.Filter{State: queue.StateBanned})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(banList) != 1 || banList[0].Hash != "task_c" {
		t.Fatalf("unexpected banned list %#v", banList)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health %#v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns %v", health.MissingColumns)
	}
	if health.SchemaVersion != 2 {
		t.Fatalf("expected schema version 2, got %d", health.SchemaVersion)
	}
}

func TestOpenMigratesOlderSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, stmt := range []string{"DROP INDEX idx_queue_items_available", "PRAGMA user_version = 1"} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	db.Close()

	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	health, err := reopened.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if health.SchemaVersion != 2 {
		t.Fatalf("expected migrated schema version 2, got %d", health.SchemaVersion)
	}
}

func TestScheduleBookkeeping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	state, err := store.ScheduleState(ctx, "nightly")
	if err != nil {
		t.Fatalf("ScheduleState: %v", err)
	}
	if !state.NextRun.IsZero() || state.Disabled {
		t.Fatalf("expected empty state, got %#v", state)
	}

	next := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	if err := store.SetNextRun(ctx, "nightly", next, time.Time{}); err != nil {
		t.Fatalf("SetNextRun: %v", err)
	}
	if err := store.DisableSchedule(ctx, "nightly", "banned"); err != nil {
		t.Fatalf("DisableSchedule: %v", err)
	}
	state, err = store.ScheduleState(ctx, "nightly")
	if err != nil {
		t.Fatalf("ScheduleState: %v", err)
	}
	if !state.NextRun.Equal(next) || !state.Disabled || state.DisabledReason != "banned" {
		t.Fatalf("unexpected state %#v", state)
	}

	if err := store.EnableSchedule(ctx, "nightly"); err != nil {
		t.Fatalf("EnableSchedule: %v", err)
	}
	states, err := store.Schedules(ctx)
	if err != nil {
		t.Fatalf("Schedules: %v", err)
	}
	if len(states) != 1 || states[0].Disabled {
		t.Fatalf("unexpected schedules %#v", states)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
	db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestScheduleSettingsKeepsExplicitZeroPriority(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sched := config.Schedule{Name: "urgent", Spec: "@hourly", Task: "command"}

	if got := queue.ScheduleSettings(cfg.Items, sched).Priority; got != cfg.Items.Priority {
		t.Fatalf("expected unset priority to use default %d, got %d", cfg.Items.Priority, got)
	}
	zero := 0
	sched.Priority = &zero
	settings := queue.ScheduleSettings(cfg.Items, sched)
	if settings.Priority != 0 {
		t.Fatalf("expected priority 0 kept, got %d", settings.Priority)
	}
	if settings.Broker != queue.ScheduleBroker {
		t.Fatalf("expected schedule broker, got %q", settings.Broker)
	}
}
