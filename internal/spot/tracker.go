package spot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fbicheck/internal/logging"
	"fbicheck/internal/metrics"
	"fbicheck/internal/services"
)

// Spot is one catalog line: a storage root and its identifier.
type Spot struct {
	ID   string
	Path string
	// Line is the 1-based catalog offset the spot was read from.
	Line int
}

// Status describes the tracker's on-disk state.
type Status struct {
	CatalogPath    string
	CursorPath     string
	Cursor         int
	CatalogLines   int
	CatalogModTime time.Time
	CatalogExists  bool
}

// Tracker hands out catalog spots in order, persisting its position so a
// restart resumes where the previous process stopped.
type Tracker struct {
	catalogPath string
	cursorPath  string
	fetcher     Fetcher
	logger      *slog.Logger
}

// NewTracker creates a tracker over the given catalog cache and cursor files.
func NewTracker(catalogPath, cursorPath string, fetcher Fetcher, logger *slog.Logger) *Tracker {
	return &Tracker{
		catalogPath: catalogPath,
		cursorPath:  cursorPath,
		fetcher:     fetcher,
		logger:      logging.NewComponentLogger(logger, "spot"),
	}
}

// NextSpot returns the path of the next spot to crawl.
func (t *Tracker) NextSpot(ctx context.Context) (string, error) {
	spot, err := t.Next(ctx)
	if err != nil {
		return "", err
	}
	return spot.Path, nil
}

// Next advances the cursor and returns the spot under it. Blank lines are
// skipped. Reaching the end of the catalog downloads a fresh copy and starts
// again from the first line.
func (t *Tracker) Next(ctx context.Context) (Spot, error) {
	if _, err := os.Stat(t.catalogPath); errors.Is(err, fs.ErrNotExist) {
		if err := t.refresh(ctx); err != nil {
			return Spot{}, err
		}
	}

	rolledOver := false
	for {
		if err := ctx.Err(); err != nil {
			return Spot{}, err
		}
		cursor, err := t.advance()
		if err != nil {
			return Spot{}, err
		}

		line, ok, err := readLine(t.catalogPath, cursor)
		if err != nil {
			return Spot{}, services.Wrap(services.ErrCatalogFetch, "spot", "read catalog", t.catalogPath, err)
		}
		if !ok {
			if rolledOver {
				return Spot{}, services.Wrap(services.ErrCatalogFetch, "spot", "read catalog", "catalog has no spots", nil)
			}
			t.logger.Info("spot catalog exhausted; downloading fresh copy", logging.Int("cursor", cursor-1))
			if err := t.refresh(ctx); err != nil {
				return Spot{}, err
			}
			rolledOver = true
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return Spot{}, services.Wrap(services.ErrCatalogFetch, "spot", "parse line",
				fmt.Sprintf("line %d: want \"spot_id path\", got %q", cursor, line), nil)
		}
		metrics.SpotsAdvanced.Inc()
		spot := Spot{ID: fields[0], Path: fields[1], Line: cursor}
		t.logger.Debug("spot selected",
			logging.String(logging.FieldSpotID, spot.ID),
			logging.String(logging.FieldPath, spot.Path),
			logging.Int("line", cursor),
		)
		return spot, nil
	}
}

// Status reports the cursor and catalog state without modifying either.
func (t *Tracker) Status() (Status, error) {
	cursor, err := t.readCursor()
	if err != nil {
		return Status{}, err
	}
	status := Status{
		CatalogPath: t.catalogPath,
		CursorPath:  t.cursorPath,
		Cursor:      cursor,
	}
	info, err := os.Stat(t.catalogPath)
	if errors.Is(err, fs.ErrNotExist) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("stat catalog: %w", err)
	}
	status.CatalogExists = true
	status.CatalogModTime = info.ModTime()
	lines, err := countLines(t.catalogPath)
	if err != nil {
		return status, fmt.Errorf("count catalog lines: %w", err)
	}
	status.CatalogLines = lines
	return status, nil
}

// Reset rewinds the cursor so the next call returns the first spot.
func (t *Tracker) Reset() error {
	return t.writeCursor(0)
}

func (t *Tracker) refresh(ctx context.Context) error {
	if t.fetcher == nil {
		return services.Wrap(services.ErrCatalogFetch, "spot", "download", "no catalog fetcher configured", nil)
	}
	if err := t.fetcher.Fetch(ctx, t.catalogPath); err != nil {
		metrics.CatalogDownloads.WithLabelValues("failure").Inc()
		return services.Wrap(services.ErrCatalogFetch, "spot", "download", "", err)
	}
	metrics.CatalogDownloads.WithLabelValues("success").Inc()
	t.logger.Info("spot catalog downloaded", logging.String(logging.FieldPath, t.catalogPath))
	return t.writeCursor(0)
}

func (t *Tracker) advance() (int, error) {
	cursor, err := t.readCursor()
	if err != nil {
		return 0, err
	}
	cursor++
	if err := t.writeCursor(cursor); err != nil {
		return 0, err
	}
	return cursor, nil
}

func (t *Tracker) readCursor() (int, error) {
	data, err := os.ReadFile(t.cursorPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read spot cursor: %w", err)
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || value < 0 {
		logging.WarnWithContext(t.logger, "spot cursor unreadable; restarting from the first spot", "spot_cursor_corrupt",
			logging.String(logging.FieldPath, t.cursorPath),
			logging.String("content", strings.TrimSpace(string(data))),
			logging.String(logging.FieldErrorHint, "run 'fbicheck spot reset' to silence this warning"),
			logging.String(logging.FieldImpact, "crawl order restarts at the top of the catalog"),
		)
		return 0, nil
	}
	return value, nil
}

func (t *Tracker) writeCursor(value int) error {
	if err := os.MkdirAll(filepath.Dir(t.cursorPath), 0o755); err != nil {
		return fmt.Errorf("create cursor directory: %w", err)
	}
	tempPath := t.cursorPath + ".tmp"
	if err := os.WriteFile(tempPath, []byte(strconv.Itoa(value)), 0o644); err != nil {
		return fmt.Errorf("write spot cursor: %w", err)
	}
	if err := os.Rename(tempPath, t.cursorPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace spot cursor: %w", err)
	}
	return nil
}

// readLine returns the 1-based line n. ok is false past the end of the file.
func readLine(path string, n int) (string, bool, error) {
	var (
		line  string
		found bool
	)
	err := eachLine(path, func(i int, text string) bool {
		if i == n {
			line, found = text, true
			return false
		}
		return true
	})
	return line, found, err
}

func countLines(path string) (int, error) {
	count := 0
	err := eachLine(path, func(int, string) bool {
		count++
		return true
	})
	return count, err
}

// eachLine calls fn with every line of path, numbered from 1, until fn returns
// false. Lines have no length limit; a final line without a newline counts.
func eachLine(path string, fn func(n int, line string) bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for n := 1; ; n++ {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if line == "" && err != nil {
			return nil
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if !fn(n, line) || err != nil {
			return nil
		}
	}
}
