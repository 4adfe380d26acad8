package assetd

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPathRejected means the extension is not allowed for the namespace
	// the request path lives in.
	ErrPathRejected = errors.New("path rejected")

	// ErrAssetMissing covers missing files and reads that failed after the
	// existence check.
	ErrAssetMissing = errors.New("asset missing")

	ErrContentTypeUnresolvable = errors.New("no MIME type")
)

// CacheEntry is what the byte caches store. Absent records a confirmed
// miss so repeated requests for a bad path skip the disk probe.
type CacheEntry struct {
	Body    []byte
	ModTime int64 // unix nanoseconds of the source file
	Absent  bool
}

func (e CacheEntry) modTime() time.Time {
	if e.ModTime == 0 {
		return time.Time{}
	}
	return time.Unix(0, e.ModTime)
}

// SiteSettings are the site-wide switches consulted on every request.
type SiteSettings struct {
	Debug        bool
	CacheEnabled bool
}

// CacheActive reports whether the byte cache may be consulted. Debug mode
// always reads through so edits show up immediately.
func (s SiteSettings) CacheActive() bool {
	return !s.Debug && s.CacheEnabled
}

type assetRequest struct {
	Path   string
	Accept string
}

type resolvedAsset struct {
	PhysicalPath string
	ContentType  string
	LastModified time.Time
	MaxAge       time.Duration
}

var errMemoizedAbsent = fmt.Errorf("cached as absent: %w", ErrAssetMissing)

// missing folds any stat or read failure into ErrAssetMissing.
func missing(name string, err error) error {
	return fmt.Errorf("%s: %w: %v", name, ErrAssetMissing, err)
}
