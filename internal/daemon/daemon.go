package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fbicheck/internal/crawler"
	"fbicheck/internal/logging"
	"fbicheck/internal/queue"
)

// ErrAlreadyRunning reports that another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another fbicheck daemon instance is already running")

// Lock is the single-instance lock on a queue directory. It must be held
// before the daemon writes its PID file or touches queue state.
type Lock struct {
	path string
	fl   *flock.Flock
}

// AcquireLock takes the lock at path without blocking.
func AcquireLock(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. Releasing twice is harmless.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Loop is the control loop the daemon supervises.
type Loop interface {
	Run(ctx context.Context) error
	Status() crawler.Status
}

// Daemon runs the coordinator loop on behalf of the lock holder.
type Daemon struct {
	lock   *Lock
	logger *slog.Logger
	queues *queue.Queues
	loop   Loop

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Coordinator  crawler.Status
	QueueDepths  map[queue.Tier]int
	LockFilePath string
}

// New constructs a daemon. The caller keeps ownership of lock and releases it
// after Close.
func New(lock *Lock, queues *queue.Queues, loop Loop, logger *slog.Logger) (*Daemon, error) {
	if lock == nil || queues == nil || loop == nil {
		return nil, errors.New("daemon requires a held lock, queues, and coordinator")
	}
	return &Daemon{
		lock:   lock,
		logger: logging.NewComponentLogger(logger, "daemon"),
		queues: queues,
		loop:   loop,
	}, nil
}

// Start requeues tasks a previous process left in flight and launches the
// coordinator loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	recovered, err := d.queues.RecoverInFlight(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight tasks: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("requeued tasks left in flight",
			logging.String(logging.FieldEventType, "tasks_recovered"),
			logging.Int64("count", recovered),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.runErr = nil
	d.running.Store(true)

	go func(done chan struct{}) {
		err := d.loop.Run(runCtx)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
		d.running.Store(false)
		close(done)
	}(d.done)

	d.logger.Info("fbicheck daemon started", logging.String("lock", d.lock.Path()))
	return nil
}

// Done is closed when the coordinator loop exits, either after Stop or on a
// fatal error. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error the loop exited with, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop cancels the loop and waits for the in-flight task to finish.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	d.logger.Info("fbicheck daemon stopped")
}

// Close stops the loop and closes the queues.
func (d *Daemon) Close() error {
	d.Stop()
	return d.queues.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	depths, err := d.queues.Depths(ctx)
	if err != nil {
		d.logger.Debug("queue depth unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		Coordinator:  d.loop.Status(),
		QueueDepths:  depths,
		LockFilePath: d.lock.Path(),
	}
}

// LogStatus writes a one-line progress snapshot.
func (d *Daemon) LogStatus(ctx context.Context) {
	status := d.Status(ctx)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "daemon_status"),
		logging.Bool("running", status.Running),
		logging.Int("manual_depth", status.QueueDepths[queue.TierManual]),
		logging.Int("crawler_depth", status.QueueDepths[queue.TierCrawler]),
		logging.Int("reconciled", status.Coordinator.Processed[crawler.OutcomeReconciled]),
		logging.Int("skipped", status.Coordinator.Processed[crawler.OutcomeSkipped]),
		logging.Int("expanded", status.Coordinator.Processed[crawler.OutcomeExpanded]),
	}
	if !status.Coordinator.Started.IsZero() {
		attrs = append(attrs, logging.Duration("uptime", time.Since(status.Coordinator.Started).Round(time.Second)))
	}
	if status.Coordinator.LastPath != "" {
		attrs = append(attrs, logging.String("last_path", status.Coordinator.LastPath))
	}
	if status.Coordinator.LastError != "" {
		attrs = append(attrs, logging.String("last_error", status.Coordinator.LastError))
	}
	d.logger.Info("daemon status", logging.Args(attrs...)...)
}
