package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fbicheck/internal/queue"
	"fbicheck/internal/testsupport"
)

func openStore(t *testing.T, path string) *queue.Store {
	t.Helper()
	store, err := queue.Open(path)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutIsIdempotentWithinTier(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "priority"))
	ctx := context.Background()

	added, err := store.Put(ctx, "/badc/cmip5/")
	if err != nil || !added {
		t.Fatalf("first Put = %v, %v", added, err)
	}
	added, err = store.Put(ctx, "/badc/cmip5")
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if added {
		t.Fatal("expected duplicate path to be ignored")
	}
	if count, _ := store.Count(ctx); count != 1 {
		t.Fatalf("expected 1 task, got %d", count)
	}
	if _, err := store.Put(ctx, "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestGetReturnsOldestAndRedeliversUntilAck(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "bot"))
	ctx := context.Background()

	if n, err := store.PutMany(ctx, []string{"/a", "/b", "/a", ""}); err != nil || n != 2 {
		t.Fatalf("PutMany = %d, %v", n, err)
	}

	first, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first == nil || first.Path != "/a" || first.Status != queue.StatusInFlight || first.Attempts != 1 {
		t.Fatalf("unexpected first task: %+v", first)
	}

	again, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.ID != first.ID || again.Attempts != 2 {
		t.Fatalf("expected redelivery of unacked task, got %+v", again)
	}
	if count, _ := store.Count(ctx); count != 2 {
		t.Fatalf("count should include in-flight task, got %d", count)
	}

	if err := store.Ack(ctx, again); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := store.Ack(ctx, again); err != nil {
		t.Fatalf("second Ack should be a no-op: %v", err)
	}

	next, err := store.Get(ctx)
	if err != nil || next == nil || next.Path != "/b" {
		t.Fatalf("expected /b next, got %+v, %v", next, err)
	}
	if err := store.Ack(ctx, next); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	empty, err := store.Get(ctx)
	if err != nil || empty != nil {
		t.Fatalf("expected empty queue, got %+v, %v", empty, err)
	}
}

func TestUnackedTaskSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "priority")
	ctx := context.Background()

	store, err := queue.Open(path)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	if _, err := store.Put(ctx, "/neodc/modis"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	task, err := store.Get(ctx)
	if err != nil || task == nil {
		t.Fatalf("Get: %+v, %v", task, err)
	}
	// Simulate a crash between Get and Ack.
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openStore(t, path)
	stats, err := reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.InFlight != 1 {
		t.Fatalf("expected Open to leave task state alone, got %+v", stats)
	}
	recovered, err := reopened.RecoverInFlight(ctx)
	if err != nil || recovered != 1 {
		t.Fatalf("RecoverInFlight = %d, %v", recovered, err)
	}
	stats, err = reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 || stats.InFlight != 0 {
		t.Fatalf("expected in-flight task reset to pending, got %+v", stats)
	}

	redelivered, err := reopened.Get(ctx)
	if err != nil || redelivered == nil {
		t.Fatalf("Get after restart: %+v, %v", redelivered, err)
	}
	if redelivered.Path != "/neodc/modis" || redelivered.Attempts != 2 {
		t.Fatalf("unexpected redelivered task: %+v", redelivered)
	}
}

func TestListAndClear(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "bot"))
	ctx := context.Background()
	if _, err := store.PutMany(ctx, []string{"/x", "/y", "/z"}); err != nil {
		t.Fatalf("PutMany: %v", err)
	}

	tasks, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Path != "/x" || tasks[1].Path != "/y" {
		t.Fatalf("unexpected listing: %+v", tasks)
	}

	removed, err := store.Clear(ctx)
	if err != nil || removed != 3 {
		t.Fatalf("Clear = %d, %v", removed, err)
	}
	if count, _ := store.Count(ctx); count != 0 {
		t.Fatalf("expected empty queue after clear, got %d", count)
	}
}

func TestCheckHealth(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "priority"))
	ctx := context.Background()
	if _, err := store.Put(ctx, "/a"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 || health.TotalTasks != 1 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected health details: %+v", health)
	}
}

func TestQueuesDispatchByTier(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	queues := testsupport.MustOpenQueues(t, cfg)
	ctx := context.Background()

	testsupport.MustPut(t, queues, queue.TierManual, "/manual/one")
	testsupport.MustPut(t, queues, queue.TierCrawler, "/crawl/one", "/crawl/two")

	if queues.For(queue.TierManual).Path() != cfg.ManualQueuePath() {
		t.Fatalf("manual tier should use %s", cfg.ManualQueuePath())
	}
	if queues.For(queue.Tier("other")) != nil {
		t.Fatal("expected nil store for unknown tier")
	}

	depths, err := queues.Depths(ctx)
	if err != nil {
		t.Fatalf("Depths: %v", err)
	}
	if depths[queue.TierManual] != 1 || depths[queue.TierCrawler] != 2 {
		t.Fatalf("unexpected depths: %v", depths)
	}

	// The same path may sit in both tiers.
	if added, err := queues.Crawler.Put(ctx, "/manual/one"); err != nil || !added {
		t.Fatalf("expected cross-tier put to succeed, got %v, %v", added, err)
	}
}

func TestParseTier(t *testing.T) {
	for input, want := range map[string]queue.Tier{
		"manual":   queue.TierManual,
		"priority": queue.TierManual,
		"Crawler":  queue.TierCrawler,
		"bot":      queue.TierCrawler,
	} {
		got, err := queue.ParseTier(input)
		if err != nil || got != want {
			t.Fatalf("ParseTier(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := queue.ParseTier("all"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "priority")
	store, err := queue.Open(path)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	if err := queue.SetSchemaVersionForTest(store, 99); err != nil {
		t.Fatalf("set version: %v", err)
	}
	store.Close()

	if _, err := queue.Open(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
