// Package spot tracks the crawler's position in the externally maintained
// spot catalog.
//
// The catalog is a plain-text list of "spot_id path" lines cached under the
// queue directory. The cursor is a single integer in its own file, rewritten
// atomically after every advance, so a restarted daemon continues from the
// next spot instead of starting over.
package spot
