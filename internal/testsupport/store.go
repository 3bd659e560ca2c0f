package testsupport

import (
	"context"
	"testing"

	"fbicheck/internal/config"
	"fbicheck/internal/queue"
)

// MustOpenQueues opens both queue tiers for tests and registers cleanup.
func MustOpenQueues(t testing.TB, cfg *config.Config) *queue.Queues {
	t.Helper()

	queues, err := queue.OpenQueues(cfg)
	if err != nil {
		t.Fatalf("queue.OpenQueues: %v", err)
	}
	t.Cleanup(func() {
		queues.Close()
	})
	return queues
}

// MustPut enqueues paths into the given tier.
func MustPut(t testing.TB, queues *queue.Queues, tier queue.Tier, paths ...string) {
	t.Helper()

	if _, err := queues.For(tier).PutMany(context.Background(), paths); err != nil {
		t.Fatalf("PutMany(%s): %v", tier, err)
	}
}
