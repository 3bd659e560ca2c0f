// Package services defines shared utilities consumed by the crawler, the
// reconciler, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp queue tiers, task directories, spot IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify which turns
//     a failure into the coordinator's recovery action (reconnect, skip, stop).
package services
