package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate ensures the configuration is usable by every command.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateIndex(); err != nil {
		return err
	}
	if err := c.validateCrawler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateDaemon applies the extra requirements of the long-running crawler:
// a broker exchange to publish to and, when crawling is enabled, a catalog URL.
func (c *Config) ValidateDaemon() error {
	if err := c.ValidatePublishing(); err != nil {
		return err
	}
	if c.Crawler.Enabled && c.Catalog.URL == "" {
		return errors.New("catalog.url must be set when crawler.enabled is true")
	}
	if c.Catalog.URL != "" {
		parsed, err := url.Parse(c.Catalog.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("catalog.url %q is not a valid absolute URL", c.Catalog.URL)
		}
	}
	return nil
}

// ValidatePublishing checks the settings needed to publish change events.
func (c *Config) ValidatePublishing() error {
	if c.Broker.Exchange == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("broker.exchange must be set. Edit %s (create with 'fbicheck config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !filepath.IsAbs(c.Storage.LinkPrefix) {
		return fmt.Errorf("storage.link_prefix must be an absolute path, got %q", c.Storage.LinkPrefix)
	}
	return nil
}

func (c *Config) validateBroker() error {
	switch c.Broker.MessageFormat {
	case MessageFormatJSON, MessageFormatText:
	default:
		return fmt.Errorf("broker.message_format must be %q or %q, got %q", MessageFormatJSON, MessageFormatText, c.Broker.MessageFormat)
	}
	switch c.Broker.ExchangeType {
	case "fanout", "direct", "topic", "headers":
	default:
		return fmt.Errorf("broker.exchange_type %q is not a known AMQP exchange type", c.Broker.ExchangeType)
	}
	if !strings.HasPrefix(c.Broker.URL, "amqp://") && !strings.HasPrefix(c.Broker.URL, "amqps://") {
		return fmt.Errorf("broker.url must use the amqp:// or amqps:// scheme, got %q", c.Broker.URL)
	}
	return nil
}

func (c *Config) validateIndex() error {
	for _, addr := range c.Index.Addresses {
		parsed, err := url.Parse(addr)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("index.addresses entry %q is not a valid URL", addr)
		}
	}
	if c.Index.FilesIndex == c.Index.DirsIndex {
		return errors.New("index.files_index and index.dirs_index must differ")
	}
	return nil
}

func (c *Config) validateCrawler() error {
	for _, pattern := range c.Crawler.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("crawler.exclude pattern %q is invalid", pattern)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}
