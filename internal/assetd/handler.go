package assetd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// Deps are the collaborators an asset handler needs. Nothing is looked up
// from package state, so handlers can be built in isolation for tests. Zero
// fields get working defaults; the default Mapper serves from the working
// directory with no vault.
type Deps struct {
	FS          FileSystem
	Cache       ByteCache
	Mapper      PathMapper
	Mimes       *MimeTable
	Buster      CacheBuster
	Site        SiteSettings
	Policy      StaticCachePolicy
	Log         *slog.Logger
	VaultPrefix string

	stats *statsCollector
}

type handlerKind int

const (
	kindStyle handlerKind = iota
	kindImage
)

func (k handlerKind) String() string {
	if k == kindImage {
		return "webp"
	}
	return "css"
}

func (k handlerKind) cacheKey(physical string) string {
	return k.String() + ":" + physical
}

type assetHandler struct {
	Deps
	kind handlerKind
}

// NewStyleHandler serves style sheets. Paths under the vault prefix are
// limited to .css, .less and .scss, other paths to extensions the MIME table
// types as text/css. Missing files are memoized as absent when the byte
// cache is active.
func NewStyleHandler(d Deps) http.Handler {
	return newAssetHandler(d, kindStyle)
}

// NewImageHandler serves .png/.jpg/.jpeg files, substituting a generated
// .webp-gen sibling when the client accepts image/webp.
func NewImageHandler(d Deps) http.Handler {
	return newAssetHandler(d, kindImage)
}

func newAssetHandler(d Deps, kind handlerKind) *assetHandler {
	if d.Cache == nil {
		d.Cache = nopCache{}
	}
	if d.Mimes == nil {
		d.Mimes = NewMimeTable()
	}
	if d.FS == nil {
		d.FS = NewOSFileSystem()
	}
	if d.Mapper == nil {
		d.Mapper = NewRootMapper(".", "", d.VaultPrefix, false)
	}
	if d.Buster == nil {
		d.Buster = NewCacheBuster("", "")
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	d.Log = d.Log.With("handler", kind.String())
	return &assetHandler{Deps: d, kind: kind}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	req := assetRequest{Path: r.URL.Path, Accept: r.Header.Get("Accept")}

	if err := h.checkPath(req.Path); err != nil {
		h.notFound(w, req, err)
		return
	}
	physical, mapErr := h.Mapper.MapPath(req.Path)

	etag := etagFor(h.Buster)
	if notModified(r.Header.Get("If-None-Match"), etag) {
		var ra resolvedAsset
		if mapErr == nil {
			ra = h.describe(ctx, req, physical)
		} else {
			ra = h.describeUnmapped(req.Path)
		}
		h.writeHeaders(w, ra, etag)
		w.WriteHeader(http.StatusNotModified)
		h.observeStatus(http.StatusNotModified)
		return
	}

	if mapErr != nil {
		h.notFound(w, req, mapErr)
		return
	}

	ra, body, err := h.load(ctx, req, physical)
	if err != nil {
		h.notFound(w, req, err)
		return
	}

	h.writeHeaders(w, ra, etag)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		h.Log.Debug("write body", "path", req.Path, "error", err)
		return
	}
	if h.stats != nil {
		h.stats.Observe(len(body))
	}
}

func (h *assetHandler) checkPath(p string) error {
	if h.kind == kindImage {
		return checkImagePath(p)
	}
	return checkStylePath(p, h.VaultPrefix, h.Mimes)
}

// load resolves the asset and returns its bytes, from the byte cache when
// it is active and from the filesystem otherwise.
func (h *assetHandler) load(ctx context.Context, req assetRequest, physical string) (resolvedAsset, []byte, error) {
	if h.kind == kindImage {
		return h.loadImage(ctx, req, physical)
	}
	return h.loadStyle(ctx, physical)
}

func (h *assetHandler) loadStyle(ctx context.Context, physical string) (resolvedAsset, []byte, error) {
	ra := h.styleAsset(physical)
	key := h.kind.cacheKey(physical)
	active := h.Site.CacheActive()

	if active {
		if ent, ok := h.Cache.Get(ctx, key); ok {
			if ent.Absent {
				return ra, nil, errMemoizedAbsent
			}
			ra.LastModified = ent.modTime()
			return ra, ent.Body, nil
		}
	}

	st, err := h.FS.Stat(ctx, physical)
	if err != nil {
		h.memoizeAbsent(ctx, key, active)
		return ra, nil, missing(physical, err)
	}
	body, err := h.FS.ReadFile(ctx, physical)
	if err != nil {
		h.memoizeAbsent(ctx, key, active)
		return ra, nil, missing(physical, err)
	}
	ra.LastModified = st.ModTime

	if active {
		h.Cache.Put(ctx, key, CacheEntry{Body: body, ModTime: st.ModTime.UnixNano()})
	}
	return ra, body, nil
}

func (h *assetHandler) memoizeAbsent(ctx context.Context, key string, active bool) {
	if active {
		h.Cache.Put(ctx, key, CacheEntry{Absent: true})
	}
}

func (h *assetHandler) loadImage(ctx context.Context, req assetRequest, physical string) (resolvedAsset, []byte, error) {
	ra, err := selectImage(ctx, h.FS, h.Mimes, physical, req.Accept)
	if err != nil {
		return ra, nil, err
	}
	key := h.kind.cacheKey(ra.PhysicalPath)
	active := h.Site.CacheActive()

	if active {
		if ent, ok := h.Cache.Get(ctx, key); ok && !ent.Absent {
			return ra, ent.Body, nil
		}
	}

	body, err := h.FS.ReadFile(ctx, ra.PhysicalPath)
	if err != nil {
		return ra, nil, missing(ra.PhysicalPath, err)
	}
	if active {
		h.Cache.Put(ctx, key, CacheEntry{Body: body, ModTime: ra.LastModified.UnixNano()})
	}
	return ra, body, nil
}

// describe fills in the headers of a 304 response. It never fails: a
// matching ETag wins even when the file is gone.
func (h *assetHandler) describe(ctx context.Context, req assetRequest, physical string) resolvedAsset {
	if h.kind == kindImage {
		ra, err := selectImage(ctx, h.FS, h.Mimes, physical, req.Accept)
		if err == nil {
			return ra
		}
		ra = resolvedAsset{PhysicalPath: physical}
		if e, ok := h.Mimes.Lookup(extOf(physical)); ok {
			ra.ContentType = e.ContentType
			ra.MaxAge = e.MaxAge
		}
		return ra
	}

	ra := h.styleAsset(physical)
	if h.Site.CacheActive() {
		if ent, ok := h.Cache.Get(ctx, h.kind.cacheKey(physical)); ok && !ent.Absent {
			ra.LastModified = ent.modTime()
			return ra
		}
	}
	if st, ok := exists(ctx, h.FS, physical); ok {
		ra.LastModified = st.ModTime
	}
	return ra
}

// describeUnmapped covers a matching ETag for a path with no physical
// location: only the extension is known.
func (h *assetHandler) describeUnmapped(urlPath string) resolvedAsset {
	var ra resolvedAsset
	if h.kind == kindStyle {
		ra.ContentType = "text/css"
	}
	if e, ok := h.Mimes.Lookup(extOf(urlPath)); ok {
		ra.ContentType = e.ContentType
		ra.MaxAge = e.MaxAge
	}
	return ra
}

func (h *assetHandler) styleAsset(physical string) resolvedAsset {
	ra := resolvedAsset{PhysicalPath: physical, ContentType: "text/css"}
	if e, ok := h.Mimes.Lookup(extOf(physical)); ok {
		ra.ContentType = e.ContentType
		ra.MaxAge = e.MaxAge
	}
	return ra
}

func (h *assetHandler) writeHeaders(w http.ResponseWriter, ra resolvedAsset, etag string) {
	hdr := w.Header()
	if ra.ContentType != "" {
		hdr.Set("Content-Type", ra.ContentType)
	}
	if !ra.LastModified.IsZero() {
		hdr.Set("Last-Modified", ra.LastModified.UTC().Format(http.TimeFormat))
	}
	h.Policy.Apply(hdr, ra.MaxAge)
	hdr.Set("ETag", etag)
	if h.kind == kindImage {
		hdr.Add("Vary", "Accept")
	}
}

func (h *assetHandler) notFound(w http.ResponseWriter, req assetRequest, err error) {
	switch {
	case errors.Is(err, ErrPathRejected):
		h.Log.Debug("Not Found", "path", req.Path, "reason", err)
	default:
		h.Log.Error("asset not found", "path", req.Path, "reason", err)
	}
	w.WriteHeader(http.StatusNotFound)
	h.observeStatus(http.StatusNotFound)
}

func (h *assetHandler) observeStatus(status int) {
	if h.stats != nil {
		h.stats.ObserveStatus(status)
	}
}
