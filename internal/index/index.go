package index

import (
	"context"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Kind distinguishes file records from directory records.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Record is one indexed path.
type Record struct {
	Path string
	Kind Kind
}

// Querier answers what the index believes lives in a directory.
type Querier interface {
	// Files returns the file records whose parent directory is dir.
	Files(ctx context.Context, dir string) ([]Record, error)
	// Dirs returns directory records under the dir prefix whose depth is
	// within one level of dir.
	Dirs(ctx context.Context, dir string) ([]Record, error)
}

// Depth is the segment count of dir, so "/a/b" has depth 3. The directories
// index stores the slash count instead, which makes [Depth-1, Depth] cover dir
// and its direct children.
func Depth(dir string) int {
	return len(strings.Split(dir, "/"))
}

// Paths collects record paths into a set.
func Paths(records []Record) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSetWithSize[string](len(records))
	for _, rec := range records {
		set.Add(rec.Path)
	}
	return set
}

// WithinOneLevel reports whether candidate is dir itself or one of its direct
// children. A prefix query for "/a/b" also matches "/a/bc"; this filters those out.
func WithinOneLevel(dir, candidate string) bool {
	dir = path.Clean(dir)
	candidate = path.Clean(candidate)
	return candidate == dir || path.Dir(candidate) == dir
}
