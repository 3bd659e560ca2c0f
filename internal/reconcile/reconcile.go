package reconcile

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/text/unicode/norm"

	"fbicheck/internal/broker"
	"fbicheck/internal/events"
	"fbicheck/internal/index"
	"fbicheck/internal/logging"
	"fbicheck/internal/metrics"
	"fbicheck/internal/services"
	"fbicheck/internal/walker"
)

const (
	// TapeSentinel marks a directory whose files are partly offline.
	TapeSentinel = "00FILES_ON_TAPE"
	// NoticeFile is always announced downstream when present.
	NoticeFile = "00README"
)

// Summary counts the events emitted for one directory.
type Summary struct {
	Directory string
	Counts    map[events.Action]int
	// Unlisted is set when the directory could not be read, so nothing was
	// compared or emitted.
	Unlisted bool
}

// Total is the number of events emitted.
func (s Summary) Total() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRoutingKey overrides the publisher's default routing key.
func WithRoutingKey(key string) Option {
	return func(r *Reconciler) { r.routingKey = key }
}

// WithWalkerOptions passes storage prefix and exclude settings to the listing.
func WithWalkerOptions(opts ...walker.Option) Option {
	return func(r *Reconciler) { r.walkOpts = append(r.walkOpts, opts...) }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logging.NewComponentLogger(logger, "reconcile") }
}

// Reconciler diffs one live directory listing against the index and publishes
// the corrective events.
type Reconciler struct {
	index      index.Querier
	publisher  broker.Publisher
	routingKey string
	walkOpts   []walker.Option
	logger     *slog.Logger
}

// New builds a Reconciler.
func New(querier index.Querier, publisher broker.Publisher, opts ...Option) *Reconciler {
	r := &Reconciler{
		index:     querier,
		publisher: publisher,
		logger:    logging.NewComponentLogger(nil, "reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// listing is the live state of one directory keyed by NFC form. Values are
// the on-disk spelling.
type listing struct {
	dir   string
	files map[string]string
	dirs  map[string]string
	names []string
}

// Reconcile compares dir with the index and publishes DEPOSIT, REMOVE, MKDIR,
// RMDIR, SYMLINK, and 00README events. Publisher errors are returned
// unchanged so transient broker failures keep their marker.
func (r *Reconciler) Reconcile(ctx context.Context, dir string) (Summary, error) {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	logger := logging.WithContext(ctx, r.logger)

	w, err := walker.Walk(dir, 1, append(r.walkOpts, walker.WithLogger(logger))...)
	if err != nil {
		return Summary{Directory: dir}, err
	}
	entry, ok := w.Next()
	if !ok {
		// Unreadable or excluded. Comparing an empty listing would remove
		// every indexed entry, so report nothing.
		return Summary{Directory: dir, Unlisted: true}, nil
	}
	live := newListing(entry)
	summary := Summary{Directory: live.dir, Counts: make(map[events.Action]int)}

	fileRecords, err := r.index.Files(ctx, live.dir)
	if err != nil {
		return summary, services.Wrap(services.ErrIndexUnavailable, "reconcile", "query files", live.dir, err)
	}
	dirRecords, err := r.index.Dirs(ctx, live.dir)
	if err != nil {
		return summary, services.Wrap(services.ErrIndexUnavailable, "reconcile", "query dirs", live.dir, err)
	}

	indexedFiles := normalizedSet(fileRecords, nil)
	indexedDirs := normalizedSet(dirRecords, func(p string) bool {
		return index.WithinOneLevel(live.dir, p)
	})

	fileAdds, fileDeletes := diff(keys(live.files), keys(indexedFiles))
	if tapeSuppressesDeletes(live.names) {
		// The sentinel is a control file, not archive content.
		fileDeletes.Clear()
		fileAdds.Remove(normalize(entry.Path(TapeSentinel)))
		logger.Debug("tape sentinel present; file removals suppressed", logging.String(logging.FieldPath, live.dir))
	}
	dirAdds, dirDeletes := diff(keys(live.dirs), keys(indexedDirs))

	logger.Info("directory compared",
		logging.String(logging.FieldPath, live.dir),
		logging.Int("files_add", fileAdds.Cardinality()),
		logging.Int("files_remove", fileDeletes.Cardinality()),
		logging.Int("dirs_add", dirAdds.Cardinality()),
		logging.Int("dirs_remove", dirDeletes.Cardinality()),
	)

	emit := func(action events.Action, path string) error {
		ev := events.New(action, path)
		if action == events.ActionDeposit {
			if info, err := os.Lstat(path); err == nil {
				ev.Size = info.Size()
			}
		}
		if err := r.publisher.Publish(ctx, ev, r.routingKey); err != nil {
			return err
		}
		summary.Counts[action]++
		logger.Debug("event published",
			logging.String("action", string(action)),
			logging.String(logging.FieldPath, path),
		)
		return nil
	}

	for _, key := range sorted(fileAdds) {
		path := live.files[key]
		if err := emit(addAction(path, events.ActionDeposit), path); err != nil {
			return summary, err
		}
	}
	for _, key := range sorted(fileDeletes) {
		if err := emit(events.ActionRemove, indexedFiles[key]); err != nil {
			return summary, err
		}
	}
	for _, key := range sorted(dirAdds) {
		path := live.dirs[key]
		if err := emit(addAction(path, events.ActionMkdir), path); err != nil {
			return summary, err
		}
	}
	for _, key := range sorted(dirDeletes) {
		if err := emit(events.ActionRmdir, indexedDirs[key]); err != nil {
			return summary, err
		}
	}
	if slices.Contains(live.names, NoticeFile) {
		if err := emit(events.ActionReadme, entry.Path(NoticeFile)); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// tapeSuppressesDeletes reports whether the tape sentinel is present. The index
// legitimately holds files that are on tape and absent from disk, so no file
// may be removed from a directory carrying the sentinel.
func tapeSuppressesDeletes(names []string) bool {
	return slices.Contains(names, TapeSentinel)
}

// diff returns live-indexed and indexed-live.
func diff(live, indexed mapset.Set[string]) (adds, deletes mapset.Set[string]) {
	return live.Difference(indexed), indexed.Difference(live)
}

func addAction(path string, regular events.Action) events.Action {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return events.ActionSymlink
	}
	return regular
}

func newListing(entry walker.Entry) listing {
	l := listing{
		dir:   filepath.Clean(entry.Dir),
		files: make(map[string]string, len(entry.Files)),
		dirs:  make(map[string]string, len(entry.Dirs)+len(entry.Links)+1),
		names: entry.Files,
	}
	for _, name := range entry.Files {
		p := entry.Path(name)
		l.files[normalize(p)] = p
	}
	l.dirs[normalize(l.dir)] = l.dir
	for _, name := range slices.Concat(entry.Dirs, entry.Links) {
		p := entry.Path(name)
		l.dirs[normalize(p)] = p
	}
	return l
}

// normalizedSet maps NFC keys to the indexed spelling, dropping records keep rejects.
func normalizedSet(records []index.Record, keep func(string) bool) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		p := filepath.Clean(rec.Path)
		if keep != nil && !keep(p) {
			continue
		}
		out[normalize(p)] = p
	}
	return out
}

func normalize(path string) string {
	return norm.NFC.String(filepath.Clean(path))
}

func keys(m map[string]string) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSetWithSize[string](len(m))
	for k := range m {
		set.Add(k)
	}
	return set
}

func sorted(set mapset.Set[string]) []string {
	out := set.ToSlice()
	slices.Sort(out)
	return out
}
