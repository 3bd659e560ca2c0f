// Package reconcile compares one directory on disk with the search index.
//
// Files present on disk but not indexed produce DEPOSIT events and indexed
// files missing from disk produce REMOVE, unless the directory holds the
// 00FILES_ON_TAPE sentinel. Subdirectories (and the directory itself) follow
// the same rule with MKDIR and RMDIR. New paths that are symlinks are
// announced as SYMLINK, and a 00README notice is always re-announced.
package reconcile
