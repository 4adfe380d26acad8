package assetd

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// PathMapper translates a request path into the physical name understood
// by the FileSystem. Distinct clean paths must map to distinct names.
type PathMapper interface {
	MapPath(urlPath string) (string, error)
}

type rootMapper struct {
	webRoot     string
	vaultRoot   string
	vaultPrefix string
	slashOnly   bool
}

// NewRootMapper maps vault paths under vaultRoot (prefix stripped) and
// everything else under webRoot. slashOnly selects slash joining for object
// stores instead of the OS separator.
func NewRootMapper(webRoot, vaultRoot, vaultPrefix string, slashOnly bool) PathMapper {
	return &rootMapper{
		webRoot:     webRoot,
		vaultRoot:   vaultRoot,
		vaultPrefix: vaultPrefix,
		slashOnly:   slashOnly,
	}
}

func (m *rootMapper) MapPath(urlPath string) (string, error) {
	clean := path.Clean("/" + urlPath)
	if rest, ok := trimVault(clean, m.vaultPrefix); ok {
		if m.vaultRoot == "" {
			return "", fmt.Errorf("vault is not configured: %w", ErrAssetMissing)
		}
		return m.join(m.vaultRoot, rest), nil
	}
	return m.join(m.webRoot, clean), nil
}

func (m *rootMapper) join(root, clean string) string {
	if m.slashOnly {
		return path.Join(root, clean)
	}
	return filepath.Join(root, filepath.FromSlash(clean))
}

// trimVault reports whether p lies under the vault namespace and returns the
// remainder with a leading slash.
func trimVault(p, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	if !strings.HasPrefix(p+"/", prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(p, strings.TrimSuffix(prefix, "/"))
	if rest == "" {
		rest = "/"
	}
	return rest, true
}

var (
	vaultExtensions = map[string]bool{".css": true, ".less": true, ".scss": true}
	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}
)

func extOf(p string) string {
	return strings.ToLower(path.Ext(p))
}

// checkStylePath enforces the vault extension whitelist, and outside the
// vault admits only extensions the MIME table maps to text/css.
func checkStylePath(urlPath, vaultPrefix string, mimes *MimeTable) error {
	clean := path.Clean("/" + urlPath)
	ext := extOf(clean)
	if _, ok := trimVault(clean, vaultPrefix); ok {
		if !vaultExtensions[ext] {
			return fmt.Errorf("%s: extension not allowed in vault: %w", urlPath, ErrPathRejected)
		}
		return nil
	}
	if e, ok := mimes.Lookup(ext); !ok || e.ContentType != "text/css" {
		return fmt.Errorf("%s: not a style sheet: %w", urlPath, ErrPathRejected)
	}
	return nil
}

func checkImagePath(urlPath string) error {
	if !imageExtensions[extOf(urlPath)] {
		return fmt.Errorf("%s: not a png or jpeg: %w", urlPath, ErrPathRejected)
	}
	return nil
}

const webpVariantExt = ".webp-gen"

// acceptsWebP looks for an exact image/webp media range. Wildcards are not
// taken as consent.
func acceptsWebP(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt := part
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		if strings.EqualFold(strings.TrimSpace(mt), "image/webp") {
			return true
		}
	}
	return false
}

func webpVariantPath(p string) string {
	ext := path.Ext(p)
	return p[:len(p)-len(ext)] + webpVariantExt
}

// selectImage picks the generated webp sibling when the client accepts it
// and it exists, and the original otherwise.
func selectImage(ctx context.Context, fsys FileSystem, mimes *MimeTable, physical, accept string) (resolvedAsset, error) {
	if acceptsWebP(accept) {
		variant := webpVariantPath(physical)
		if st, ok := exists(ctx, fsys, variant); ok {
			ra := resolvedAsset{
				PhysicalPath: variant,
				ContentType:  "image/webp",
				LastModified: st.ModTime,
			}
			if e, ok := mimes.Lookup(webpVariantExt); ok {
				ra.MaxAge = e.MaxAge
			}
			return ra, nil
		}
	}

	st, ok := exists(ctx, fsys, physical)
	if !ok {
		return resolvedAsset{}, fmt.Errorf("%s: %w", physical, ErrAssetMissing)
	}
	e, ok := mimes.Lookup(extOf(physical))
	if !ok {
		return resolvedAsset{}, fmt.Errorf("%s: %w", physical, ErrContentTypeUnresolvable)
	}
	return resolvedAsset{
		PhysicalPath: physical,
		ContentType:  e.ContentType,
		LastModified: st.ModTime,
		MaxAge:       e.MaxAge,
	}, nil
}
