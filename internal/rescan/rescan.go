package rescan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"

	"fbicheck/internal/broker"
	"fbicheck/internal/events"
	"fbicheck/internal/logging"
	"fbicheck/internal/services"
	"fbicheck/internal/walker"
)

// Options selects which files a rescan announces.
type Options struct {
	// Recursive descends the whole tree; otherwise only root's files are listed.
	Recursive bool
	// Extension keeps files ending in "."+Extension. Empty disables the filter.
	Extension string
	// FileRegex must match from the start of the file name.
	FileRegex string
	// DatasetsJSON treats root as a directory of dataset manifests: every
	// *.json file below it lists dataset directories under "datasets", and
	// matching files anywhere below those datasets are collected.
	DatasetsJSON  bool
	WalkerOptions []walker.Option
	Logger        *slog.Logger
}

// Summary reports what was published.
type Summary struct {
	Deposits int
	Symlinks int
}

// Pattern combines the name regex and extension into one anchored expression.
func Pattern(fileRegex, extension string) (*regexp.Regexp, error) {
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	var expr string
	switch {
	case fileRegex != "" && extension != "":
		expr = fmt.Sprintf(`^(?:%s)\.%s$`, fileRegex, regexp.QuoteMeta(extension))
	case extension != "":
		expr = fmt.Sprintf(`^.+?\.%s$`, regexp.QuoteMeta(extension))
	case fileRegex != "":
		expr = "^(?:" + fileRegex + ")"
	default:
		expr = "^.+"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("file regex %q with extension %q: %w", fileRegex, extension, err)
	}
	return re, nil
}

// Collect lists matching, non-hidden files below root in sorted order.
// The filesystem root is refused.
func Collect(root string, opts Options) ([]string, error) {
	re, err := Pattern(opts.FileRegex, opts.Extension)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "rescan", "pattern", "", err)
	}
	if opts.DatasetsJSON {
		return collectDatasets(root, re, logging.NewComponentLogger(opts.Logger, "rescan"))
	}
	maxDepth := 1
	if opts.Recursive {
		maxDepth = 0
	}
	walkOpts := append(slices.Clone(opts.WalkerOptions), walker.WithLogger(opts.Logger))
	w, err := walker.Walk(root, maxDepth, walkOpts...)
	if err != nil {
		return nil, err
	}

	found := mapset.NewThreadUnsafeSet[string]()
	for entry := range w.All() {
		for _, name := range entry.Files {
			if strings.HasPrefix(name, ".") || !re.MatchString(name) {
				continue
			}
			found.Add(entry.Path(name))
		}
	}
	paths := found.ToSlice()
	slices.Sort(paths)
	return paths, nil
}

type manifest struct {
	Datasets json.RawMessage `json:"datasets"`
}

func collectDatasets(root string, re *regexp.Regexp, logger *slog.Logger) ([]string, error) {
	abs, err := walker.ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	manifests, err := doublestar.Glob(os.DirFS(abs), "**/*.json", doublestar.WithFilesOnly())
	if err != nil {
		return nil, services.Wrap(services.ErrFilesystemAccess, "rescan", "glob manifests", abs, err)
	}
	slices.Sort(manifests)

	found := mapset.NewThreadUnsafeSet[string]()
	for i, rel := range manifests {
		file := filepath.Join(abs, filepath.FromSlash(rel))
		datasets, ok := readManifest(file, logger)
		if !ok {
			continue
		}
		before := found.Cardinality()
		for _, dataset := range datasets {
			if !filepath.IsAbs(dataset) {
				dataset = filepath.Join(filepath.Dir(file), dataset)
			}
			collectDataset(filepath.Clean(dataset), re, found, logger)
		}
		logger.Info("dataset manifest processed",
			logging.String(logging.FieldPath, file),
			logging.Int("manifest", i+1),
			logging.Int("manifests", len(manifests)),
			logging.Int("datasets", len(datasets)),
			logging.Int("files", found.Cardinality()-before),
		)
	}
	paths := found.ToSlice()
	slices.Sort(paths)
	return paths, nil
}

// readManifest returns the "datasets" list of a manifest. Manifests that are
// unreadable or lack the list are logged and skipped.
func readManifest(file string, logger *slog.Logger) ([]string, bool) {
	data, err := os.ReadFile(file)
	if err != nil {
		logging.WarnWithContext(logger, "dataset manifest unreadable", "rescan_manifest_skipped",
			logging.String(logging.FieldPath, file), logging.Error(err))
		return nil, false
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		logging.WarnWithContext(logger, "dataset manifest is not valid JSON", "rescan_manifest_skipped",
			logging.String(logging.FieldPath, file), logging.Error(err))
		return nil, false
	}
	if len(m.Datasets) == 0 {
		logging.WarnWithContext(logger, "dataset manifest has no datasets attribute", "rescan_manifest_skipped",
			logging.String(logging.FieldPath, file))
		return nil, false
	}
	var datasets []string
	if err := json.Unmarshal(m.Datasets, &datasets); err != nil {
		logging.WarnWithContext(logger, "dataset manifest datasets is not a list of paths", "rescan_manifest_skipped",
			logging.String(logging.FieldPath, file), logging.Error(err))
		return nil, false
	}
	return datasets, true
}

func collectDataset(dataset string, re *regexp.Regexp, found mapset.Set[string], logger *slog.Logger) {
	if dataset == string(filepath.Separator) {
		logging.WarnWithContext(logger, "dataset at the filesystem root skipped", "rescan_dataset_skipped",
			logging.String(logging.FieldPath, dataset))
		return
	}
	if info, err := os.Stat(dataset); err != nil || !info.IsDir() {
		logging.WarnWithContext(logger, "dataset is not a directory", "rescan_dataset_skipped",
			logging.String(logging.FieldPath, dataset))
		return
	}
	matches, err := doublestar.Glob(os.DirFS(dataset), "**/*.*", doublestar.WithFilesOnly())
	if err != nil {
		logging.WarnWithContext(logger, "dataset unreadable", "rescan_dataset_skipped",
			logging.String(logging.FieldPath, dataset), logging.Error(err))
		return
	}
	for _, rel := range matches {
		if hiddenPath(rel) || !re.MatchString(path.Base(rel)) {
			continue
		}
		found.Add(filepath.Join(dataset, filepath.FromSlash(rel)))
	}
}

func hiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Publish sends DEPOSIT for each path, or SYMLINK when the path is a link.
func Publish(ctx context.Context, pub broker.Publisher, paths []string, routingKey string, logger *slog.Logger) (Summary, error) {
	logger = logging.NewComponentLogger(logger, "rescan")
	var summary Summary
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		action := events.ActionDeposit
		if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
			action = events.ActionSymlink
		}
		if err := pub.Publish(ctx, events.New(action, path), routingKey); err != nil {
			return summary, err
		}
		if action == events.ActionSymlink {
			summary.Symlinks++
		} else {
			summary.Deposits++
		}
		logger.Debug("rescan event published",
			logging.String("action", string(action)),
			logging.String(logging.FieldPath, path),
		)
	}
	logger.Info("rescan published",
		logging.Int("deposits", summary.Deposits),
		logging.Int("symlinks", summary.Symlinks),
	)
	return summary, nil
}
