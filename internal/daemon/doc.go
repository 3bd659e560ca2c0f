// Package daemon coordinates the long-running fbicheck process.
//
// AcquireLock takes a flock-based lock so only one instance drains a queue
// directory at a time; the holder then builds a Daemon, which recovers tasks
// a crashed predecessor left in flight and runs the crawler coordinator in the
// background. Start returns once the loop is running; Done and Err report when
// and why it stopped. Stop cancels the loop between tasks, so an in-flight
// reconciliation completes or stays unacked for redelivery.
package daemon
