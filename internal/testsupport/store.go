package testsupport

import (
	"context"
	"testing"

	"procqueue/internal/config"
	"procqueue/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Publish publishes an item with the config's default settings, optionally
// adjusted by mutate.
func Publish(t testing.TB, store *queue.Store, cfg *config.Config, queueName, task, record string, mutate func(*queue.Settings)) *queue.Item {
	t.Helper()

	settings := queue.DefaultSettings(cfg.Items)
	if mutate != nil {
		mutate(&settings)
	}
	item, err := store.Publish(context.Background(), queue.PublishRequest{
		Task:     task,
		Record:   record,
		Settings: settings,
	}, queueName)
	if err != nil {
		t.Fatalf("store.Publish: %v", err)
	}
	return item
}
