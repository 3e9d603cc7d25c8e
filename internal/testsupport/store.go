package testsupport

import (
	"context"
	"testing"

	"famforge/internal/config"
	"famforge/internal/queue"
)

// MustOpenStore opens the queue database of cfg and closes it when the test
// ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustPush appends families to list, failing the test on error.
func MustPush(t testing.TB, store *queue.Store, list queue.List, families ...string) {
	t.Helper()

	for _, id := range families {
		if _, err := store.PushTail(context.Background(), list, id); err != nil {
			t.Fatalf("push %s onto %s: %v", id, list, err)
		}
	}
}
