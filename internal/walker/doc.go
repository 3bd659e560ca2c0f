// Package walker lists archive directories depth first without recursion.
//
// Directory symlinks are only followed when their link target starts with the
// storage prefix, which keeps the traversal on real mounts and away from
// links that loop back into the archive.
package walker
