package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"fbicheck/internal/broker"
	"fbicheck/internal/config"
	"fbicheck/internal/crawler"
	"fbicheck/internal/daemon"
	"fbicheck/internal/index"
	"fbicheck/internal/logging"
	"fbicheck/internal/metrics"
	"fbicheck/internal/preflight"
	"fbicheck/internal/queue"
	"fbicheck/internal/reconcile"
	"fbicheck/internal/services"
	"fbicheck/internal/spot"
)

// statusLogInterval spaces the periodic progress snapshots in the log.
const statusLogInterval = 5 * time.Minute

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Dev disables autonomous spot crawling; only manually submitted
	// directories are reconciled.
	Dev bool

	// Overrides used when the real backends are unavailable, mainly in tests.
	Publisher broker.Publisher
	Index     index.Querier
	Fetcher   spot.Fetcher
	Logger    *slog.Logger
}

// Run starts the fbicheck daemon and blocks until a signal arrives or the
// coordinator stops on a fatal error.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.ValidateDaemon(); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "validate", "invalid daemon configuration", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewFromConfig(cfg, opts.LogLevel, opts.Development)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	runID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		logging.ErrorWithContext(logger, "daemon lock unavailable", "daemon_lock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other instance or remove a stale "+cfg.LockPath()),
		)
		return err
	}
	defer lock.Release()

	offline := opts.Index != nil || opts.Publisher != nil
	crawl := cfg.Crawler.Enabled && !opts.Dev
	logger.Info("fbicheck daemon starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.Bool("crawler_enabled", crawl),
		logging.String("queue_dir", cfg.Paths.QueueDir),
		logging.String("exchange", cfg.Broker.Exchange),
	)
	for _, result := range preflight.Failed(preflight.RunAll(signalCtx, cfg, offline)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "the daemon may stop on its first task"),
		)
	}

	pidPath := filepath.Join(cfg.Paths.QueueDir, "fbicheck.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	queues, err := queue.OpenQueues(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return services.Wrap(services.ErrQueueUnavailable, "daemon", "open queues", "queue databases unavailable", err)
	}

	publisher := opts.Publisher
	if publisher == nil {
		brokerOpts, err := broker.OptionsFromConfig(cfg)
		if err != nil {
			queues.Close()
			return err
		}
		amqp, err := broker.Dial(brokerOpts, logger)
		if err != nil {
			queues.Close()
			return err
		}
		publisher = amqp
	}
	defer publisher.Close()

	querier := opts.Index
	if querier == nil {
		client, err := index.New(index.OptionsFromConfig(cfg), logger)
		if err != nil {
			queues.Close()
			return err
		}
		querier = client
	}

	coordOpts := crawler.OptionsFromConfig(cfg, opts.Dev)
	var spots crawler.SpotSource
	if coordOpts.CrawlEnabled {
		fetcher := opts.Fetcher
		if fetcher == nil {
			fetcher = spot.NewHTTPFetcher(cfg.Catalog.URL, cfg.Catalog.RetryCount, cfg.CatalogRetryInterval(), cfg.CatalogTimeout())
		}
		spots = spot.NewTracker(cfg.SpotCatalogPath(), cfg.SpotProgressPath(), fetcher, logger)
	}

	reconciler := reconcile.New(querier, publisher,
		reconcile.WithRoutingKey(cfg.Broker.RoutingKey),
		reconcile.WithWalkerOptions(coordOpts.WalkerOptions...),
		reconcile.WithLogger(logger),
	)
	coordinator := crawler.New(queues, reconciler, spots, publisher, coordOpts, logger)

	d, err := daemon.New(lock, queues, coordinator, logger)
	if err != nil {
		queues.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if cfg.Metrics.Listen != "" {
		srv, err := metrics.Listen(cfg.Metrics.Listen, cfg.Metrics.Path, logger)
		if err != nil {
			logging.WarnWithContext(logger, "metrics endpoint unavailable", "metrics_listen_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.listen"),
			)
		} else {
			go func() {
				if err := srv.Serve(signalCtx); err != nil {
					logger.Warn("metrics server stopped", logging.Error(err))
				}
			}()
		}
	}

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the queue databases with fbicheck queue health"),
		)
		return err
	}

	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.LogStatus(signalCtx)
		case <-signalCtx.Done():
			logger.Info("fbicheck daemon shutting down")
			d.Stop()
			d.LogStatus(context.Background())
			return nil
		case <-d.Done():
			d.LogStatus(context.Background())
			if err := d.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
