package testsupport

import (
	"path/filepath"
	"testing"

	"fbicheck/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Publishing and crawling settings are filled so ValidateDaemon passes.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.QueueDir = filepath.Join(base, "queue")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Broker.Exchange = "fbi_test"
	cfgVal.Catalog.URL = "http://127.0.0.1:0/spots.txt"
	cfgVal.Catalog.RetryCount = 0
	cfgVal.Crawler.IdleIntervalSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCatalogURL points the spot tracker at a test server.
func WithCatalogURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.URL = url
	}
}

// WithCrawlerDisabled turns off spot crawling, as --dev does.
func WithCrawlerDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Crawler.Enabled = false
	}
}

// WithLinkPrefix overrides the storage prefix used for symlink traversal.
func WithLinkPrefix(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.LinkPrefix = prefix
	}
}

// WithExclude sets crawler exclude globs.
func WithExclude(patterns ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Crawler.Exclude = append([]string(nil), patterns...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.QueueDir)
}
