// Package preflight provides readiness checks for the directories and
// services fbicheck depends on.
//
// The daemon runs RunAll at startup and logs failures as warnings; a missing
// storage prefix only limits symlink traversal, and unreachable services are
// retried by the components themselves. The CLI "config validate" command
// prints the same results.
package preflight
