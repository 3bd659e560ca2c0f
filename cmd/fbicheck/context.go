package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"fbicheck/internal/config"
	"fbicheck/internal/index"
	"fbicheck/internal/logging"
	"fbicheck/internal/queue"
	"fbicheck/internal/walker"
)

// newIndexClient is swapped out by tests that have no Elasticsearch cluster.
var newIndexClient = func(cfg *config.Config, logger *slog.Logger) (index.Querier, error) {
	return index.New(index.OptionsFromConfig(cfg), logger)
}

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// commandLogger writes human-oriented records to the command's stderr.
func (c *commandContext) commandLogger(cmd *cobra.Command) *slog.Logger {
	cfg, _ := c.ensureConfig()
	level := c.logLevel()
	if level == "" && cfg != nil {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: "console",
		Output: writerOrDiscard(cmd.ErrOrStderr()),
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) withQueues(fn func(*queue.Queues) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	queues, err := queue.OpenQueues(cfg)
	if err != nil {
		return err
	}
	defer queues.Close()
	return fn(queues)
}

func (c *commandContext) walkerOptions(logger *slog.Logger) []walker.Option {
	cfg, _ := c.ensureConfig()
	if cfg == nil {
		return nil
	}
	return []walker.Option{
		walker.WithStoragePrefix(cfg.Storage.LinkPrefix),
		walker.WithExclude(cfg.Crawler.Exclude...),
		walker.WithLogger(logger),
	}
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
