// Package logging assembles structured slog loggers and helpers used across
// fbicheck.
//
// Console output goes through tint (coloured when attached to a terminal) or a
// JSON handler; the daemon additionally writes JSON records to a rotating file.
// Context helpers tag log lines with the queue tier, task path, spot ID, and
// correlation ID stamped by the coordinator.
package logging
