package assetd

import (
	"fmt"
	"net/http"
	"time"
)

// StaticCachePolicy sets the browser caching headers for static assets.
type StaticCachePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// Apply writes Cache-Control and Expires. A non-zero override replaces the
// policy max-age for this response.
func (p StaticCachePolicy) Apply(h http.Header, override time.Duration) {
	maxAge := p.MaxAge
	if override > 0 {
		maxAge = override
	}
	if maxAge <= 0 {
		h.Set("Cache-Control", "no-cache")
		return
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	secs := int64(maxAge / time.Second)
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", secs))
	h.Set("Expires", now().Add(maxAge).UTC().Format(http.TimeFormat))
}
