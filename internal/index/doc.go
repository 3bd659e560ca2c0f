// Package index reads what the search index believes is on disk.
//
// Querier is the narrow view the reconciler needs. Client implements it
// against Elasticsearch: the files index is matched on info.directory and the
// directories index on a path prefix bounded to one level of depth. Failures
// carry services.ErrIndexUnavailable.
package index
