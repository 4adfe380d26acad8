package assetd

import (
	"fmt"
	"hash/crc32"
	"os"
	"strings"
)

// CacheBuster yields the deployment token used as the ETag of every asset.
// The token must not change while the process runs.
type CacheBuster interface {
	Token() string
}

type staticBuster string

func (b staticBuster) Token() string { return string(b) }

// NewCacheBuster returns the configured token, or derives one from the
// version and the executable's modification time so a redeploy of the
// binary produces a new value.
func NewCacheBuster(configured, version string) CacheBuster {
	configured = strings.TrimSpace(configured)
	if configured != "" {
		return staticBuster(configured)
	}
	seed := version
	if exe, err := os.Executable(); err == nil {
		if st, err := os.Stat(exe); err == nil {
			seed = fmt.Sprintf("%s|%d", seed, st.ModTime().UnixNano())
		}
	}
	return staticBuster(fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(seed))))
}

func etagFor(b CacheBuster) string {
	return `"` + b.Token() + `"`
}

// notModified reports whether If-None-Match carries the current ETag. A weak
// prefix on the client token is ignored; the comparison is exact otherwise.
func notModified(ifNoneMatch, etag string) bool {
	inm := strings.TrimSpace(ifNoneMatch)
	if inm == "" {
		return false
	}
	inm = strings.TrimPrefix(inm, "W/")
	return inm == etag
}
