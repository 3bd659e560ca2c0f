// Package crawler runs the reconciliation control loop.
//
// Each Step takes one task from the manual queue, or failing that from the
// crawler queue, reconciles it and acks it. When both queues are empty the
// next catalog spot is walked and its directories fill the crawler queue.
// Run repeats Step, reconnecting the broker on transient failures and
// stopping on anything it cannot recover from. Unacked tasks are redelivered
// after a restart.
package crawler
