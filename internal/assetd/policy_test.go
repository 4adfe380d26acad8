package assetd

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStaticCachePolicy(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := StaticCachePolicy{MaxAge: 24 * time.Hour, Now: func() time.Time { return now }}

	h := http.Header{}
	p.Apply(h, 0)
	assert.Equal(t, "public, max-age=86400", h.Get("Cache-Control"))
	assert.Equal(t, "Sun, 02 Jun 2024 00:00:00 GMT", h.Get("Expires"))

	h = http.Header{}
	p.Apply(h, 90*time.Second)
	assert.Equal(t, "public, max-age=90", h.Get("Cache-Control"))

	h = http.Header{}
	StaticCachePolicy{}.Apply(h, 0)
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Empty(t, h.Get("Expires"))
}
