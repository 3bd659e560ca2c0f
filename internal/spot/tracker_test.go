package spot_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fbicheck/internal/services"
	"fbicheck/internal/spot"
)

type staticFetcher struct {
	contents []string
	calls    int
	err      error
}

func (f *staticFetcher) Fetch(_ context.Context, dest string) error {
	if f.err != nil {
		return f.err
	}
	content := f.contents[min(f.calls, len(f.contents)-1)]
	f.calls++
	return os.WriteFile(dest, []byte(content), 0o644)
}

func newTracker(t *testing.T, fetcher spot.Fetcher) (*spot.Tracker, string) {
	t.Helper()
	dir := t.TempDir()
	return spot.NewTracker(filepath.Join(dir, "spot_file.txt"), filepath.Join(dir, "spot_progress.txt"), fetcher, nil), dir
}

func readCursor(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "spot_progress.txt"))
	if err != nil {
		t.Fatalf("read cursor: %v", err)
	}
	return string(data)
}

func TestNextSpotDownloadsMissingCatalogAndPersistsCursor(t *testing.T) {
	fetcher := &staticFetcher{contents: []string{"spot-1 /badc/cmip5\nspot-2 /neodc/modis\n"}}
	tracker, dir := newTracker(t, fetcher)
	ctx := context.Background()

	path, err := tracker.NextSpot(ctx)
	if err != nil || path != "/badc/cmip5" {
		t.Fatalf("first NextSpot = %q, %v", path, err)
	}
	if got := readCursor(t, dir); got != "1" {
		t.Fatalf("cursor after first spot = %q", got)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one download, got %d", fetcher.calls)
	}

	// A fresh tracker over the same files resumes from the persisted cursor.
	resumed := spot.NewTracker(filepath.Join(dir, "spot_file.txt"), filepath.Join(dir, "spot_progress.txt"), fetcher, nil)
	next, err := resumed.Next(ctx)
	if err != nil {
		t.Fatalf("resumed Next: %v", err)
	}
	if next.ID != "spot-2" || next.Path != "/neodc/modis" || next.Line != 2 {
		t.Fatalf("unexpected resumed spot: %+v", next)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected cached catalog to be reused, got %d downloads", fetcher.calls)
	}
}

func TestNextSpotSkipsBlankLines(t *testing.T) {
	fetcher := &staticFetcher{contents: []string{"a /one\n\n   \nb /two\n"}}
	tracker, dir := newTracker(t, fetcher)
	ctx := context.Background()

	if path, _ := tracker.NextSpot(ctx); path != "/one" {
		t.Fatalf("expected /one, got %q", path)
	}
	if path, _ := tracker.NextSpot(ctx); path != "/two" {
		t.Fatalf("expected blank lines skipped, got %q", path)
	}
	if got := readCursor(t, dir); got != "4" {
		t.Fatalf("cursor should count skipped lines, got %q", got)
	}
}

func TestNextSpotReadsLongLines(t *testing.T) {
	longPath := "/badc/" + strings.Repeat("x", 70*1024)
	fetcher := &staticFetcher{contents: []string{"a " + longPath + "\r\nb /two"}}
	tracker, dir := newTracker(t, fetcher)
	ctx := context.Background()

	path, err := tracker.NextSpot(ctx)
	if err != nil {
		t.Fatalf("NextSpot on long line: %v", err)
	}
	if path != longPath {
		t.Fatalf("long path truncated to %d bytes", len(path))
	}
	if path, err := tracker.NextSpot(ctx); err != nil || path != "/two" {
		t.Fatalf("expected unterminated last line, got %q, %v", path, err)
	}
	if got := readCursor(t, dir); got != "2" {
		t.Fatalf("cursor after second spot = %q", got)
	}
}

func TestNextSpotRollsOverAtEndOfCatalog(t *testing.T) {
	fetcher := &staticFetcher{contents: []string{
		"a /one\nb /two\n",
		"c /three\nd /four\n",
	}}
	tracker, dir := newTracker(t, fetcher)
	ctx := context.Background()

	for _, want := range []string{"/one", "/two", "/three", "/four"} {
		path, err := tracker.NextSpot(ctx)
		if err != nil {
			t.Fatalf("NextSpot: %v", err)
		}
		if path != want {
			t.Fatalf("NextSpot = %q, want %q", path, want)
		}
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected catalog refresh at end, got %d downloads", fetcher.calls)
	}
	if got := readCursor(t, dir); got != "2" {
		t.Fatalf("cursor after rollover = %q", got)
	}
}

func TestNextSpotEmptyCatalogAfterRollover(t *testing.T) {
	fetcher := &staticFetcher{contents: []string{"\n\n"}}
	tracker, _ := newTracker(t, fetcher)

	_, err := tracker.NextSpot(context.Background())
	if !errors.Is(err, services.ErrCatalogFetch) {
		t.Fatalf("expected ErrCatalogFetch for empty catalog, got %v", err)
	}
}

func TestNextSpotMalformedLine(t *testing.T) {
	fetcher := &staticFetcher{contents: []string{"only-one-field\n"}}
	tracker, _ := newTracker(t, fetcher)

	_, err := tracker.NextSpot(context.Background())
	if !errors.Is(err, services.ErrCatalogFetch) || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected descriptive catalog error, got %v", err)
	}
}

func TestNextSpotDownloadFailure(t *testing.T) {
	fetcher := &staticFetcher{err: errors.New("connection refused")}
	tracker, dir := newTracker(t, fetcher)

	_, err := tracker.NextSpot(context.Background())
	if !errors.Is(err, services.ErrCatalogFetch) {
		t.Fatalf("expected ErrCatalogFetch, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "spot_file.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("catalog should not exist after failed download, stat err %v", statErr)
	}
}

func TestStatusAndReset(t *testing.T) {
	fetcher := &staticFetcher{contents: []string{"a /one\nb /two\nc /three\n"}}
	tracker, _ := newTracker(t, fetcher)
	ctx := context.Background()

	status, err := tracker.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.CatalogExists || status.Cursor != 0 {
		t.Fatalf("unexpected initial status: %+v", status)
	}

	for range 2 {
		if _, err := tracker.NextSpot(ctx); err != nil {
			t.Fatalf("NextSpot: %v", err)
		}
	}
	status, err = tracker.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.CatalogExists || status.Cursor != 2 || status.CatalogLines != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if err := tracker.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if path, _ := tracker.NextSpot(ctx); path != "/one" {
		t.Fatalf("expected first spot after reset, got %q", path)
	}
}

func TestCorruptCursorRestartsFromTop(t *testing.T) {
	fetcher := &staticFetcher{contents: []string{"a /one\nb /two\n"}}
	tracker, dir := newTracker(t, fetcher)
	if err := os.WriteFile(filepath.Join(dir, "spot_file.txt"), []byte("a /one\nb /two\n"), 0o644); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "spot_progress.txt"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	if path, err := tracker.NextSpot(context.Background()); err != nil || path != "/one" {
		t.Fatalf("NextSpot = %q, %v", path, err)
	}
}

func TestHTTPFetcherDownloadsAtomically(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("spot-1 /badc/cmip5\n"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "spot_file.txt")
	fetcher := spot.NewHTTPFetcher(server.URL, 2, 10*time.Millisecond, 5*time.Second)
	if err := fetcher.Fetch(context.Background(), dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read catalog: %v", err)
	}
	if string(data) != "spot-1 /badc/cmip5\n" {
		t.Fatalf("unexpected catalog content %q", data)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d requests", hits.Load())
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be gone, stat err %v", err)
	}
}

func TestHTTPFetcherErrorStatusLeavesCatalogUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "spot_file.txt")
	if err := os.WriteFile(dest, []byte("old /catalog\n"), 0o644); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	fetcher := spot.NewHTTPFetcher(server.URL, 0, time.Millisecond, 5*time.Second)
	err := fetcher.Fetch(context.Background(), dest)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "old /catalog\n" {
		t.Fatalf("catalog was modified: %q", data)
	}
}
