package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"fbicheck/internal/config"
	"fbicheck/internal/crawler"
	"fbicheck/internal/daemon"
	"fbicheck/internal/queue"
	"fbicheck/internal/testsupport"
)

type blockingLoop struct {
	err    error
	status crawler.Status
}

func (l *blockingLoop) Run(ctx context.Context) error {
	if l.err != nil {
		return l.err
	}
	<-ctx.Done()
	return nil
}

func (l *blockingLoop) Status() crawler.Status {
	return l.status
}

func setup(t *testing.T) (*config.Config, *daemon.Lock, *queue.Queues) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	t.Cleanup(func() { _ = lock.Release() })
	return cfg, lock, testsupport.MustOpenQueues(t, cfg)
}

func TestDaemonStartStop(t *testing.T) {
	cfg, lock, queues := setup(t)
	d, err := daemon.New(lock, queues, &blockingLoop{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestAcquireLockRejectsSecondHolder(t *testing.T) {
	cfg, lock, _ := setup(t)

	if _, err := daemon.AcquireLock(cfg.LockPath()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("expected lock to be free after release: %v", err)
	}
	_ = again.Release()
}

func TestDaemonStartRecoversInFlightTasks(t *testing.T) {
	_, lock, queues := setup(t)
	ctx := context.Background()

	store := queues.For(queue.TierManual)
	if _, err := store.Put(ctx, "/archive/a"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}

	d, err := daemon.New(lock, queues, &blockingLoop{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 1 || stats.InFlight != 0 {
		t.Fatalf("expected task back in pending, got %+v", stats)
	}
}

func TestDaemonReportsLoopFailure(t *testing.T) {
	_, lock, queues := setup(t)
	boom := errors.New("index unavailable")
	d, err := daemon.New(lock, queues, &blockingLoop{err: boom}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	if !errors.Is(d.Err(), boom) {
		t.Fatalf("expected loop error, got %v", d.Err())
	}
}

func TestLogStatusWritesSnapshot(t *testing.T) {
	_, lock, queues := setup(t)
	ctx := context.Background()
	if _, err := queues.For(queue.TierCrawler).PutMany(ctx, []string{"/archive/a", "/archive/b"}); err != nil {
		t.Fatalf("PutMany: %v", err)
	}

	loop := &blockingLoop{status: crawler.Status{
		Running:   true,
		Processed: map[crawler.Outcome]int{crawler.OutcomeReconciled: 3, crawler.OutcomeExpanded: 1},
		LastPath:  "/archive/a",
		LastError: "index unavailable",
		Started:   time.Now().Add(-time.Minute),
	}}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	d, err := daemon.New(lock, queues, loop, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	d.LogStatus(ctx)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["event_type"] != "daemon_status" {
		t.Fatalf("unexpected event type %v", entry["event_type"])
	}
	if entry["reconciled"] != float64(3) || entry["expanded"] != float64(1) {
		t.Fatalf("unexpected outcome counts %v", entry)
	}
	if entry["crawler_depth"] != float64(2) || entry["manual_depth"] != float64(0) {
		t.Fatalf("unexpected queue depths %v", entry)
	}
	if entry["last_path"] != "/archive/a" || entry["last_error"] != "index unavailable" {
		t.Fatalf("unexpected last path/error %v", entry)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
