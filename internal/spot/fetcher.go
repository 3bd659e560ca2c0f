package spot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/imroc/req/v3"
)

// Fetcher downloads the spot catalog to dest. Implementations must leave dest
// untouched on failure.
type Fetcher interface {
	Fetch(ctx context.Context, dest string) error
}

// HTTPFetcher downloads the catalog from a fixed URL.
type HTTPFetcher struct {
	url    string
	client *req.Client
}

// NewHTTPFetcher builds a fetcher that retries failed downloads retryCount
// times, waiting retryInterval between attempts.
func NewHTTPFetcher(url string, retryCount int, retryInterval, timeout time.Duration) *HTTPFetcher {
	client := req.C().
		SetUserAgent("fbicheck").
		SetTimeout(timeout).
		SetCommonRetryCount(retryCount).
		SetCommonRetryFixedInterval(retryInterval).
		SetCommonRetryCondition(func(resp *req.Response, err error) bool {
			return err != nil || resp.GetStatusCode() >= 500
		})
	return &HTTPFetcher{url: url, client: client}
}

// Fetch writes the catalog to a temporary file beside dest and renames it into place.
func (f *HTTPFetcher) Fetch(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	tempPath := dest + ".tmp"
	resp, err := f.client.R().
		SetContext(ctx).
		SetOutputFile(tempPath).
		Get(f.url)
	if err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("download %s: %w", f.url, err)
	}
	if resp.IsErrorState() {
		_ = os.Remove(tempPath)
		return fmt.Errorf("download %s: unexpected status %d", f.url, resp.GetStatusCode())
	}
	if err := os.Rename(tempPath, dest); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace catalog file: %w", err)
	}
	return nil
}
