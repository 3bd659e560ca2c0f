// Command fbicheck keeps the archive's Elasticsearch file index consistent
// with the filesystem.
//
// The daemon subcommand drains the manual and crawler queues, reconciling one
// directory at a time and publishing change events to RabbitMQ. The remaining
// subcommands feed and inspect that process: submit enqueues directories,
// queue and spot report state, check reconciles a single directory on demand,
// and rescan re-announces files wholesale.
package main
