package assetd

import (
	"errors"
	"io/fs"
	"os"
)

// CleanupResult lists what a best-effort cleanup removed and what it could
// not. Callers log Failed; they never abort on it.
type CleanupResult struct {
	Removed []string
	Failed  map[string]error
}

func (r CleanupResult) OK() bool { return len(r.Failed) == 0 }

// Err joins the per-path failures, or returns nil.
func (r CleanupResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, err := range r.Failed {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// cleanupPaths removes each path recursively. Paths that are already gone
// count as removed.
func cleanupPaths(paths ...string) CleanupResult {
	res := CleanupResult{Failed: map[string]error{}}
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := os.RemoveAll(p)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.Failed[p] = err
			continue
		}
		res.Removed = append(res.Removed, p)
	}
	return res
}

// PurgeDiskCache deletes the persistent byte cache of cfg.
func PurgeDiskCache(cfg Config) CleanupResult {
	return cleanupPaths(cfg.Storage.Disk.Path)
}
