package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fbicheck/internal/config"
	"fbicheck/internal/logging"
	"fbicheck/internal/services"
)

func TestNewJSONConsoleShapesRecords(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("queued directory", logging.String(logging.FieldPath, "/badc/cmip5"))
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one record, got %d: %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["level"] != "info" {
		t.Fatalf("expected lower-case level, got %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record["path"] != "/badc/cmip5" {
		t.Fatalf("unexpected path attr: %v", record["path"])
	}
	if _, ok := record["source"]; ok {
		t.Fatal("expected no source for info-level logger")
	}
}

func TestConsoleLoggerWritesPlainTextWhenNotTTY(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("walking", logging.Int("depth", 2))

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI colour codes, got %q", out)
	}
	if !strings.Contains(out, "walking") || !strings.Contains(out, "depth=2") {
		t.Fatalf("unexpected console output %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesRotatingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg, "warn", false)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("broker reconnecting")

	content, err := os.ReadFile(cfg.LogFilePath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "dropped") {
		t.Fatalf("expected level override to suppress info, got %q", content)
	}
	if !strings.Contains(string(content), "broker reconnecting") {
		t.Fatalf("expected warning in log file, got %q", content)
	}
}

func TestWithContextAddsTaskFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithTier(context.Background(), "crawler")
	ctx = services.WithTaskPath(ctx, "/neodc/sentinel1a")
	ctx = services.WithRequestID(ctx, "abc")
	logging.WithContext(ctx, base).Info("task started")

	for _, want := range []string{`"tier":"crawler"`, `"path":"/neodc/sentinel1a"`, `"correlation_id":"abc"`} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %s in %q", want, buf.String())
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "spot path missing", "spot_path_missing",
		logging.String(logging.FieldImpact, "spot skipped"))

	out := buf.String()
	for _, want := range []string{`"event_type":"spot_path_missing"`, `"error_hint":"check logs for details"`, `"impact":"spot skipped"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
	if strings.Count(out, `"impact"`) != 1 {
		t.Fatalf("expected caller impact to replace default, got %q", out)
	}
}

func TestComponentLoggerOnNil(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "walker")
	logger.Info("discarded")
}
