package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPath marks a directory argument that cannot be walked: missing, not a
	// directory, the filesystem root, or otherwise unsuitable.
	ErrPath = errors.New("invalid path")
	// ErrTransientBroker marks a lost or closed broker connection.
	ErrTransientBroker = errors.New("broker connection lost")
	// ErrFilesystemAccess marks a read failure while inspecting the archive.
	ErrFilesystemAccess = errors.New("filesystem access error")
	// ErrIndexUnavailable marks a failed or malformed search index query.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrCatalogFetch marks a failed spot catalog download.
	ErrCatalogFetch = errors.New("catalog fetch failed")
	// ErrConfiguration marks unusable settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrQueueUnavailable marks a queue database that cannot be read or written.
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// Disposition tells the coordinator what to do with a failed task.
type Disposition string

const (
	// DispositionReconnect re-establishes the broker link and retries the task.
	DispositionReconnect Disposition = "reconnect"
	// DispositionSkip logs the failure and moves on without stopping the loop.
	DispositionSkip Disposition = "skip"
	// DispositionFatal stops the loop.
	DispositionFatal Disposition = "fatal"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrFilesystemAccess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error raised while processing work to the coordinator's
// recovery action.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return DispositionSkip
	case errors.Is(err, ErrTransientBroker):
		return DispositionReconnect
	case errors.Is(err, ErrPath):
		return DispositionSkip
	default:
		return DispositionFatal
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
