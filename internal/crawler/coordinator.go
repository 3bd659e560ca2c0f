package crawler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"fbicheck/internal/broker"
	"fbicheck/internal/config"
	"fbicheck/internal/logging"
	"fbicheck/internal/metrics"
	"fbicheck/internal/queue"
	"fbicheck/internal/reconcile"
	"fbicheck/internal/services"
	"fbicheck/internal/spot"
	"fbicheck/internal/walker"
)

// enqueueBatch bounds how many walked directories are buffered before PutMany.
const enqueueBatch = 500

// Outcome describes what one Step did.
type Outcome string

const (
	OutcomeReconciled Outcome = "reconciled"
	// OutcomeSkipped means a task was acked without reconciling.
	OutcomeSkipped  Outcome = "skipped"
	OutcomeExpanded Outcome = "expanded"
	OutcomeIdle     Outcome = "idle"
)

// Reconciler is the part of reconcile.Reconciler the coordinator drives.
type Reconciler interface {
	Reconcile(ctx context.Context, dir string) (reconcile.Summary, error)
}

// SpotSource yields catalog spots to crawl.
type SpotSource interface {
	Next(ctx context.Context) (spot.Spot, error)
}

// Options tunes the control loop.
type Options struct {
	// CrawlEnabled expands catalog spots when both queues are empty.
	CrawlEnabled bool
	// SkipSymlinkedTasks acks tasks whose path is no longer a real directory.
	SkipSymlinkedTasks bool
	IdleInterval       time.Duration
	WalkerOptions      []walker.Option
}

// OptionsFromConfig maps the [crawler] and [storage] sections. dev disables
// spot crawling regardless of configuration.
func OptionsFromConfig(cfg *config.Config, dev bool) Options {
	return Options{
		CrawlEnabled:       cfg.Crawler.Enabled && !dev,
		SkipSymlinkedTasks: cfg.Crawler.SkipSymlinkedTasks,
		IdleInterval:       cfg.CrawlerIdleInterval(),
		WalkerOptions: []walker.Option{
			walker.WithStoragePrefix(cfg.Storage.LinkPrefix),
			walker.WithExclude(cfg.Crawler.Exclude...),
		},
	}
}

// Status is a snapshot of coordinator progress.
type Status struct {
	Running   bool
	Processed map[Outcome]int
	LastPath  string
	LastError string
	Started   time.Time
}

// Coordinator drains the manual queue, then the crawler queue, and refills the
// crawler queue from the spot catalog when both are empty. One task is in
// flight at a time.
type Coordinator struct {
	queues     *queue.Queues
	reconciler Reconciler
	spots      SpotSource
	publisher  broker.Publisher
	opts       Options
	logger     *slog.Logger

	mu     sync.Mutex
	status Status
}

// New builds a coordinator. spots may be nil when crawling is disabled.
func New(queues *queue.Queues, reconciler Reconciler, spots SpotSource, publisher broker.Publisher, opts Options, logger *slog.Logger) *Coordinator {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 5 * time.Second
	}
	return &Coordinator{
		queues:     queues,
		reconciler: reconciler,
		spots:      spots,
		publisher:  publisher,
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "crawler"),
		status:     Status{Processed: make(map[Outcome]int)},
	}
}

// Run loops until ctx is cancelled or a fatal error occurs. Cancellation
// returns nil. Broker failures reconnect and retry; invalid paths are skipped.
func (c *Coordinator) Run(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)

	c.logger.Info("coordinator started",
		logging.Bool("crawl_enabled", c.opts.CrawlEnabled),
		logging.Bool("skip_symlinked_tasks", c.opts.SkipSymlinkedTasks),
	)
	for {
		if ctx.Err() != nil {
			c.logger.Info("coordinator stopping")
			return nil
		}

		_, err := c.Step(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			// Interrupted mid-iteration; the unacked task is redelivered.
			c.logger.Info("coordinator stopping", logging.Error(err))
			return nil
		}
		c.recordError(err)

		switch services.Classify(err) {
		case services.DispositionReconnect:
			logging.WarnWithContext(c.logger, "broker connection lost; reconnecting", "broker_connection_lost",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check RabbitMQ availability"),
				logging.String(logging.FieldImpact, "the current task is retried after reconnecting"),
			)
			if rerr := c.publisher.Reconnect(ctx); rerr != nil {
				if ctx.Err() != nil {
					return nil
				}
				logging.ErrorWithContext(c.logger, "broker reconnect failed", "broker_reconnect_exhausted",
					logging.Error(rerr),
					logging.String(logging.FieldErrorHint, "check broker.url and credentials, then restart the daemon"),
				)
				return rerr
			}
			c.logger.Info("broker reconnected")
		case services.DispositionSkip:
			logging.WarnWithContext(c.logger, "invalid path skipped", "path_skipped",
				logging.Error(err),
				logging.String(logging.FieldImpact, "path is not reconciled"),
			)
		default:
			logging.ErrorWithContext(c.logger, "coordinator stopped on error", "coordinator_fatal",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, fatalHint(err)),
			)
			return err
		}
	}
}

// Step performs one iteration of the control loop.
func (c *Coordinator) Step(ctx context.Context) (Outcome, error) {
	depths, err := c.queues.Depths(ctx)
	if err != nil {
		return OutcomeIdle, services.Wrap(services.ErrQueueUnavailable, "crawler", "queue depth", "", err)
	}
	metrics.ObserveQueueDepths(depths)

	switch {
	case depths[queue.TierManual] > 0:
		return c.process(ctx, queue.TierManual)
	case depths[queue.TierCrawler] > 0:
		return c.process(ctx, queue.TierCrawler)
	case c.opts.CrawlEnabled && c.spots != nil:
		return c.expand(ctx)
	default:
		select {
		case <-ctx.Done():
			return OutcomeIdle, ctx.Err()
		case <-time.After(c.opts.IdleInterval):
			return OutcomeIdle, nil
		}
	}
}

// Status returns a copy of the current progress counters.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.status
	snapshot.Processed = make(map[Outcome]int, len(c.status.Processed))
	for k, v := range c.status.Processed {
		snapshot.Processed[k] = v
	}
	return snapshot
}

func (c *Coordinator) process(ctx context.Context, tier queue.Tier) (Outcome, error) {
	store := c.queues.For(tier)
	task, err := store.Get(ctx)
	if err != nil {
		return OutcomeIdle, services.Wrap(services.ErrQueueUnavailable, "crawler", "dequeue", string(tier), err)
	}
	if task == nil {
		return OutcomeIdle, nil
	}

	ctx = services.WithTier(ctx, string(tier))
	ctx = services.WithTaskPath(ctx, task.Path)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, c.logger)
	c.setLastPath(task.Path)

	if c.opts.SkipSymlinkedTasks && !isRealDir(task.Path) {
		logger.Info("task path is no longer a real directory; acking without reconcile",
			logging.Int("attempts", task.Attempts),
		)
		return c.finish(ctx, store, task, tier, OutcomeSkipped)
	}

	logger.Debug("reconciling task", logging.Int("attempts", task.Attempts))
	summary, err := c.reconciler.Reconcile(ctx, task.Path)
	if err != nil {
		if services.Classify(err) == services.DispositionSkip {
			logging.WarnWithContext(logger, "task path invalid; acking", "task_path_invalid",
				logging.Error(err),
				logging.String(logging.FieldImpact, "directory is dropped from the queue"),
			)
			return c.finish(ctx, store, task, tier, OutcomeSkipped)
		}
		metrics.TasksProcessed.WithLabelValues(string(tier), "failed").Inc()
		return OutcomeReconciled, err
	}
	if summary.Unlisted {
		logger.Info("directory could not be listed; acking without events")
	}
	logger.Info("task reconciled", logging.Int("events", summary.Total()))
	return c.finish(ctx, store, task, tier, OutcomeReconciled)
}

func (c *Coordinator) finish(ctx context.Context, store *queue.Store, task *queue.Task, tier queue.Tier, outcome Outcome) (Outcome, error) {
	if err := store.Ack(ctx, task); err != nil {
		return outcome, services.Wrap(services.ErrQueueUnavailable, "crawler", "ack", task.Path, err)
	}
	metrics.TasksProcessed.WithLabelValues(string(tier), string(outcome)).Inc()
	c.recordOutcome(outcome)
	return outcome, nil
}

// expand walks the next spot and enqueues every directory below it.
func (c *Coordinator) expand(ctx context.Context) (Outcome, error) {
	sp, err := c.spots.Next(ctx)
	if err != nil {
		return OutcomeIdle, err
	}
	ctx = services.WithSpotID(ctx, sp.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, c.logger)
	c.setLastPath(sp.Path)

	w, err := walker.Walk(sp.Path, 0, append(c.opts.WalkerOptions, walker.WithLogger(logger))...)
	if err != nil {
		logging.WarnWithContext(logger, "spot root cannot be walked; skipping", "spot_invalid",
			logging.String(logging.FieldPath, sp.Path),
			logging.Int("line", sp.Line),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the catalog entry or the mount"),
			logging.String(logging.FieldImpact, "spot is not crawled this cycle"),
		)
		c.recordOutcome(OutcomeExpanded)
		return OutcomeExpanded, nil
	}

	store := c.queues.For(queue.TierCrawler)
	batch := make([]string, 0, enqueueBatch)
	walked, added := 0, 0
	flush := func() error {
		n, err := store.PutMany(ctx, batch)
		if err != nil {
			return services.Wrap(services.ErrQueueUnavailable, "crawler", "enqueue", sp.Path, err)
		}
		added += n
		batch = batch[:0]
		return nil
	}
	for entry := range w.All() {
		walked++
		batch = append(batch, entry.Dir)
		if len(batch) == enqueueBatch {
			if err := flush(); err != nil {
				return OutcomeExpanded, err
			}
		}
	}
	if err := flush(); err != nil {
		return OutcomeExpanded, err
	}
	metrics.DirectoriesEnqueued.WithLabelValues(string(queue.TierCrawler)).Add(float64(added))
	logger.Info("spot expanded",
		logging.String(logging.FieldPath, sp.Path),
		logging.Int("directories", walked),
		logging.Int("enqueued", added),
	)
	c.recordOutcome(OutcomeExpanded)
	return OutcomeExpanded, nil
}

// isRealDir reports whether path exists and is a directory, not a symlink.
func isRealDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

func fatalHint(err error) string {
	switch {
	case errors.Is(err, services.ErrIndexUnavailable):
		return "check Elasticsearch availability; the task is redelivered on restart"
	case errors.Is(err, services.ErrCatalogFetch):
		return "check catalog.url; crawling resumes once the catalog downloads"
	case errors.Is(err, services.ErrQueueUnavailable):
		return "check the queue directory and its databases"
	default:
		return "check logs for details"
	}
}

func (c *Coordinator) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Running = running
	if running {
		c.status.Started = time.Now()
	}
}

func (c *Coordinator) setLastPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastPath = path
}

func (c *Coordinator) recordOutcome(outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Processed[outcome]++
}

func (c *Coordinator) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastError = err.Error()
}
