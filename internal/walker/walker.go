package walker

import (
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"fbicheck/internal/logging"
	"fbicheck/internal/services"
)

// DefaultStoragePrefix is the mount prefix that makes a directory symlink safe to follow.
const DefaultStoragePrefix = "/datacentre"

// Entry is the listing of one visited directory. Names are relative to Dir.
type Entry struct {
	Dir   string
	Depth int
	// Dirs holds real subdirectories and directory symlinks that point into
	// storage. These are the children the walker descends into.
	Dirs []string
	// Files holds regular files and symlinks to non-directories. Broken links
	// are left out, as they name nothing to archive.
	Files []string
	// Links holds directory symlinks that point outside storage. They are
	// listed but never descended.
	Links []string
}

// Path joins name onto the entry directory.
func (e Entry) Path(name string) string {
	return filepath.Join(e.Dir, name)
}

// Option configures a Walker.
type Option func(*Walker)

// WithStoragePrefix overrides DefaultStoragePrefix.
func WithStoragePrefix(prefix string) Option {
	return func(w *Walker) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			w.prefix = prefix
		}
	}
}

// WithExclude skips directories whose absolute path matches any doublestar pattern.
func WithExclude(patterns ...string) Option {
	return func(w *Walker) {
		w.exclude = append(w.exclude, patterns...)
	}
}

// WithLogger sets the logger used for unreadable directory warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

type frame struct {
	path  string
	depth int
}

// Walker is a lazy preorder traversal backed by an explicit stack.
type Walker struct {
	maxDepth int
	prefix   string
	exclude  []string
	logger   *slog.Logger
	stack    []frame
}

// Walk validates root and prepares a traversal. maxDepth 0 means unlimited;
// maxDepth 1 yields only root itself.
func Walk(root string, maxDepth int, opts ...Option) (*Walker, error) {
	abs, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	w := &Walker{
		maxDepth: maxDepth,
		prefix:   DefaultStoragePrefix,
		logger:   logging.NewNop(),
		stack:    []frame{{path: abs, depth: 0}},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ValidateRoot cleans root into an absolute path and rejects the filesystem
// root, missing paths, and non-directories.
func ValidateRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", services.Wrap(services.ErrPath, "walker", "validate", "empty path", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", services.Wrap(services.ErrPath, "walker", "validate", root, err)
	}
	if abs == string(filepath.Separator) {
		return "", services.Wrap(services.ErrPath, "walker", "validate", "refusing to walk the filesystem root", nil)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", services.Wrap(services.ErrPath, "walker", "validate", abs, err)
	}
	if !info.IsDir() {
		return "", services.Wrap(services.ErrPath, "walker", "validate", abs+" is not a directory", nil)
	}
	return abs, nil
}

// Next returns the next directory in preorder. The second result is false once
// the traversal is exhausted.
func (w *Walker) Next() (Entry, bool) {
	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]

		if w.excluded(top.path) {
			w.logger.Debug("directory excluded", logging.String(logging.FieldPath, top.path))
			continue
		}

		entry, err := w.list(top)
		if err != nil {
			logging.WarnWithContext(w.logger, "directory unreadable; subtree skipped", "walker_read_failed",
				logging.String(logging.FieldPath, top.path),
				logging.Error(services.Wrap(services.ErrFilesystemAccess, "walker", "read dir", top.path, err)),
				logging.String(logging.FieldErrorHint, "check permissions and mount state of the directory"),
				logging.String(logging.FieldImpact, "directory and its subtree are not reconciled this pass"),
			)
			continue
		}

		if w.maxDepth == 0 || top.depth+1 < w.maxDepth {
			// Reverse push keeps children in listing order when popped.
			for i := len(entry.Dirs) - 1; i >= 0; i-- {
				w.stack = append(w.stack, frame{path: entry.Path(entry.Dirs[i]), depth: top.depth + 1})
			}
		}
		return entry, true
	}
	return Entry{}, false
}

// All adapts Next to a range-over-func sequence.
func (w *Walker) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for {
			entry, ok := w.Next()
			if !ok || !yield(entry) {
				return
			}
		}
	}
}

func (w *Walker) list(f frame) (Entry, error) {
	items, err := os.ReadDir(f.path)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Dir: f.path, Depth: f.depth}
	for _, item := range items {
		name := item.Name()
		switch {
		case item.Type()&os.ModeSymlink != 0:
			w.classifyLink(&entry, name)
		case item.IsDir():
			entry.Dirs = append(entry.Dirs, name)
		default:
			entry.Files = append(entry.Files, name)
		}
	}
	return entry, nil
}

func (w *Walker) classifyLink(entry *Entry, name string) {
	full := entry.Path(name)
	target, err := os.Stat(full)
	if err != nil {
		w.logger.Debug("broken symlink omitted", logging.String(logging.FieldPath, full), logging.Error(err))
		return
	}
	if !target.IsDir() {
		entry.Files = append(entry.Files, name)
		return
	}
	dest, err := os.Readlink(full)
	if err == nil && strings.HasPrefix(dest, w.prefix) {
		entry.Dirs = append(entry.Dirs, name)
		return
	}
	entry.Links = append(entry.Links, name)
}

func (w *Walker) excluded(path string) bool {
	for _, pattern := range w.exclude {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
