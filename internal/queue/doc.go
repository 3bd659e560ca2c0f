// Package queue persists directories awaiting reconciliation in SQLite.
//
// Each tier (manual submissions and crawler discoveries) lives in its own
// database file so operators can inspect or clear one without touching the
// other. A Store is a FIFO with at-least-once delivery: Get marks the head
// task in flight without removing it, and only Ack deletes it. Tasks left in
// flight by a crashed process are reset to pending by RecoverInFlight, which
// only the daemon calls once it holds the instance lock.
//
// Paths are unique within a tier, so re-submitting a queued directory is a
// no-op. Schema changes bump the version in schema.go.
package queue
