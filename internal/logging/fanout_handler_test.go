package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every sink is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single sink to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsSinkLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoSink := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugSink := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(infoSink, debugSink)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout to accept debug when one sink does")
	}

	logger := slog.New(h)
	logger.Debug("walk detail")
	if infoBuf.Len() != 0 {
		t.Fatal("info sink should not receive debug records")
	}
	if debugBuf.Len() == 0 {
		t.Fatal("debug sink should receive debug records")
	}
}

func TestFanoutHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := TeeHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	logger := slog.New(h).With(slog.String("tier", "manual")).WithGroup("task")
	logger.Info("reconciled", slog.String("path", "/badc"))

	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		for _, want := range []string{`"tier":"manual"`, `"task":{"path":"/badc"}`} {
			if !bytes.Contains(buf.Bytes(), []byte(want)) {
				t.Fatalf("sink %d missing %s in %s", i, want, buf.String())
			}
		}
	}
}
