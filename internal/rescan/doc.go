// Package rescan re-announces files under a directory as DEPOSIT events so
// downstream indexers process them again, independent of index state.
package rescan
