package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local state directories.
type Paths struct {
	QueueDir string `toml:"queue_dir"`
	LogDir   string `toml:"log_dir"`
}

// Storage describes the archive filesystem being crawled.
type Storage struct {
	// LinkPrefix identifies genuine external storage mounts. Directory
	// symlinks are only traversed when their target starts with it.
	LinkPrefix string `toml:"link_prefix"`
}

// Catalog contains configuration for the external spot catalog.
type Catalog struct {
	URL                  string `toml:"url"`
	RetryCount           int    `toml:"retry_count"`
	RetryIntervalSeconds int    `toml:"retry_interval_seconds"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
}

// Broker contains RabbitMQ connection and publishing settings.
type Broker struct {
	URL                      string `toml:"url"`
	User                     string `toml:"user"`
	Password                 string `toml:"password"`
	VHost                    string `toml:"vhost"`
	Exchange                 string `toml:"exchange"`
	ExchangeType             string `toml:"exchange_type"`
	ExchangeDurable          bool   `toml:"exchange_durable"`
	RoutingKey               string `toml:"routing_key"`
	HeartbeatSeconds         int    `toml:"heartbeat_seconds"`
	MessageFormat            string `toml:"message_format"`
	ReconnectAttempts        int    `toml:"reconnect_attempts"`
	ReconnectIntervalSeconds int    `toml:"reconnect_interval_seconds"`
}

// Index contains Elasticsearch connection and query settings.
type Index struct {
	Addresses      []string `toml:"addresses"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	APIKey         string   `toml:"api_key"`
	FilesIndex     string   `toml:"files_index"`
	DirsIndex      string   `toml:"dirs_index"`
	ScrollSeconds  int      `toml:"scroll_seconds"`
	PageSize       int      `toml:"page_size"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Crawler contains configuration for the coordinator loop.
type Crawler struct {
	Enabled             bool     `toml:"enabled"`
	SkipSymlinkedTasks  bool     `toml:"skip_symlinked_tasks"`
	IdleIntervalSeconds int      `toml:"idle_interval_seconds"`
	Exclude             []string `toml:"exclude"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string `toml:"format"`
	Level          string `toml:"level"`
	FileMaxSizeMB  int    `toml:"file_max_size_mb"`
	FileMaxBackups int    `toml:"file_max_backups"`
	FileMaxAgeDays int    `toml:"file_max_age_days"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Listen string `toml:"listen"`
	Path   string `toml:"path"`
}

// Config encapsulates all configuration values for fbicheck.
//
// Configuration sections by subsystem:
//   - Paths: queue databases, spot cursor and log files
//   - Storage: archive mount layout used by the walker
//   - Catalog: spot catalog download
//   - Broker: RabbitMQ change-event publishing
//   - Index: Elasticsearch queries
//   - Crawler: coordinator loop behaviour
//   - Logging: log format, level and file rotation
//   - Metrics: Prometheus listener
type Config struct {
	Paths   Paths   `toml:"paths"`
	Storage Storage `toml:"storage"`
	Catalog Catalog `toml:"catalog"`
	Broker  Broker  `toml:"broker"`
	Index   Index   `toml:"index"`
	Crawler Crawler `toml:"crawler"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fbicheck.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.QueueDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ManualQueuePath is the database file backing operator submissions.
func (c *Config) ManualQueuePath() string {
	return filepath.Join(c.Paths.QueueDir, "priority")
}

// CrawlerQueuePath is the database file backing crawler-discovered work.
func (c *Config) CrawlerQueuePath() string {
	return filepath.Join(c.Paths.QueueDir, "bot")
}

// SpotCatalogPath is the local cache of the downloaded spot catalog.
func (c *Config) SpotCatalogPath() string {
	return filepath.Join(c.Paths.QueueDir, "spot_file.txt")
}

// SpotProgressPath holds the persisted catalog cursor.
func (c *Config) SpotProgressPath() string {
	return filepath.Join(c.Paths.QueueDir, "spot_progress.txt")
}

// LockPath is the single-instance lock taken by the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.QueueDir, "fbicheck.lock")
}

// LogFilePath is the rotating daemon log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "fbicheck.log")
}

// BrokerHeartbeat returns the AMQP heartbeat interval.
func (c *Config) BrokerHeartbeat() time.Duration {
	return time.Duration(c.Broker.HeartbeatSeconds) * time.Second
}

// BrokerReconnectInterval returns the delay between reconnect attempts.
func (c *Config) BrokerReconnectInterval() time.Duration {
	return time.Duration(c.Broker.ReconnectIntervalSeconds) * time.Second
}

// IndexScroll returns the scroll keep-alive used for index queries.
func (c *Config) IndexScroll() time.Duration {
	return time.Duration(c.Index.ScrollSeconds) * time.Second
}

// IndexTimeout returns the per-request index timeout.
func (c *Config) IndexTimeout() time.Duration {
	return time.Duration(c.Index.TimeoutSeconds) * time.Second
}

// CatalogTimeout returns the catalog download timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// CatalogRetryInterval returns the delay between catalog download retries.
func (c *Config) CatalogRetryInterval() time.Duration {
	return time.Duration(c.Catalog.RetryIntervalSeconds) * time.Second
}

// CrawlerIdleInterval returns how long the coordinator sleeps when there is no work.
func (c *Config) CrawlerIdleInterval() time.Duration {
	return time.Duration(c.Crawler.IdleIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
