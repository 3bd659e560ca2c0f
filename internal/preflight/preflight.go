package preflight

import (
	"context"

	"fbicheck/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Network checks are skipped when offline is set.
func RunAll(ctx context.Context, cfg *config.Config, offline bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Queue directory", cfg.Paths.QueueDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckReadableDirectory("Storage prefix", cfg.Storage.LinkPrefix),
	}
	if offline {
		return results
	}

	results = append(results, CheckIndex(ctx, cfg.Index))
	if cfg.Crawler.Enabled {
		results = append(results, CheckCatalog(ctx, cfg.Catalog.URL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
