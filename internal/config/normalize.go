package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeCatalog()
	c.normalizeBroker()
	c.normalizeIndex()
	c.normalizeCrawler()
	c.normalizeLogging()
	c.normalizeMetrics()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.QueueDir) == "" {
		c.Paths.QueueDir = defaultQueueDir
	}
	if c.Paths.QueueDir, err = expandPath(c.Paths.QueueDir); err != nil {
		return fmt.Errorf("paths.queue_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	prefix := strings.TrimSpace(c.Storage.LinkPrefix)
	if prefix == "" {
		prefix = defaultLinkPrefix
	}
	c.Storage.LinkPrefix = filepath.Clean(prefix)
}

func (c *Config) normalizeCatalog() {
	c.Catalog.URL = strings.TrimSpace(c.Catalog.URL)
	if c.Catalog.RetryCount < 0 {
		c.Catalog.RetryCount = 0
	}
	if c.Catalog.RetryIntervalSeconds <= 0 {
		c.Catalog.RetryIntervalSeconds = defaultCatalogRetryInterval
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		c.Catalog.TimeoutSeconds = defaultCatalogTimeout
	}
}

func (c *Config) normalizeBroker() {
	c.Broker.URL = strings.TrimSpace(c.Broker.URL)
	if c.Broker.URL == "" {
		c.Broker.URL = defaultBrokerURL
	}
	c.Broker.User = strings.TrimSpace(c.Broker.User)
	if c.Broker.Password == "" {
		if value, ok := os.LookupEnv("FBICHECK_BROKER_PASSWORD"); ok {
			c.Broker.Password = value
		}
	}
	c.Broker.VHost = strings.TrimSpace(c.Broker.VHost)
	c.Broker.Exchange = strings.TrimSpace(c.Broker.Exchange)
	c.Broker.ExchangeType = strings.ToLower(strings.TrimSpace(c.Broker.ExchangeType))
	if c.Broker.ExchangeType == "" {
		c.Broker.ExchangeType = defaultExchangeType
	}
	c.Broker.RoutingKey = strings.TrimSpace(c.Broker.RoutingKey)
	if c.Broker.HeartbeatSeconds <= 0 {
		c.Broker.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	c.Broker.MessageFormat = strings.ToLower(strings.TrimSpace(c.Broker.MessageFormat))
	if c.Broker.MessageFormat == "" {
		c.Broker.MessageFormat = defaultMessageFormat
	}
	if c.Broker.ReconnectAttempts <= 0 {
		c.Broker.ReconnectAttempts = defaultReconnectAttempts
	}
	if c.Broker.ReconnectIntervalSeconds <= 0 {
		c.Broker.ReconnectIntervalSeconds = defaultReconnectIntervalSeconds
	}
}

func (c *Config) normalizeIndex() {
	addresses := make([]string, 0, len(c.Index.Addresses))
	seen := make(map[string]struct{}, len(c.Index.Addresses))
	for _, addr := range c.Index.Addresses {
		trimmed := strings.TrimRight(strings.TrimSpace(addr), "/")
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		addresses = append(addresses, trimmed)
	}
	if len(addresses) == 0 {
		addresses = []string{defaultIndexAddress}
	}
	c.Index.Addresses = addresses

	c.Index.Username = strings.TrimSpace(c.Index.Username)
	if c.Index.Password == "" {
		if value, ok := os.LookupEnv("FBICHECK_INDEX_PASSWORD"); ok {
			c.Index.Password = value
		}
	}
	c.Index.APIKey = strings.TrimSpace(c.Index.APIKey)
	if c.Index.APIKey == "" {
		if value, ok := os.LookupEnv("FBICHECK_INDEX_API_KEY"); ok {
			c.Index.APIKey = strings.TrimSpace(value)
		}
	}
	c.Index.FilesIndex = strings.TrimSpace(c.Index.FilesIndex)
	if c.Index.FilesIndex == "" {
		c.Index.FilesIndex = defaultFilesIndex
	}
	c.Index.DirsIndex = strings.TrimSpace(c.Index.DirsIndex)
	if c.Index.DirsIndex == "" {
		c.Index.DirsIndex = defaultDirsIndex
	}
	if c.Index.ScrollSeconds <= 0 {
		c.Index.ScrollSeconds = defaultScrollSeconds
	}
	if c.Index.PageSize <= 0 {
		c.Index.PageSize = defaultPageSize
	}
	if c.Index.TimeoutSeconds <= 0 {
		c.Index.TimeoutSeconds = defaultIndexTimeout
	}
}

func (c *Config) normalizeCrawler() {
	if c.Crawler.IdleIntervalSeconds <= 0 {
		c.Crawler.IdleIntervalSeconds = defaultIdleIntervalSeconds
	}
	patterns := make([]string, 0, len(c.Crawler.Exclude))
	for _, pattern := range c.Crawler.Exclude {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Crawler.Exclude = patterns
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.FileMaxSizeMB <= 0 {
		c.Logging.FileMaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.FileMaxBackups < 0 {
		c.Logging.FileMaxBackups = 0
	}
	if c.Logging.FileMaxAgeDays < 0 {
		c.Logging.FileMaxAgeDays = 0
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
}
