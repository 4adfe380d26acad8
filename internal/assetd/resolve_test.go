package assetd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootMapper(t *testing.T) {
	m := NewRootMapper("/srv/www", "/srv/vault", "/_vault/", true)

	tests := []struct {
		in   string
		want string
	}{
		{"/styles/site.css", "/srv/www/styles/site.css"},
		{"styles/site.css", "/srv/www/styles/site.css"},
		{"/styles/../../etc/passwd", "/srv/www/etc/passwd"},
		{"/_vault/theme/main.less", "/srv/vault/theme/main.less"},
		{"/_vault/../_vault/x.css", "/srv/vault/x.css"},
		{"/_vaultx/a.css", "/srv/www/_vaultx/a.css"},
	}
	for _, tt := range tests {
		got, err := m.MapPath(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRootMapperOSPaths(t *testing.T) {
	root := t.TempDir()
	m := NewRootMapper(root, "", "/_vault/", false)

	got, err := m.MapPath("/styles/a.css")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "styles", "a.css"), got)

	_, err = m.MapPath("/_vault/a.css")
	assert.True(t, errors.Is(err, ErrAssetMissing), "vault without a root is missing")
}

func TestCheckStylePath(t *testing.T) {
	mimes := NewMimeTable()
	allowed := []string{"/_vault/a.css", "/_vault/b/c.LESS", "/_vault/d.scss", "/styles/y.css", "/styles/z.less"}
	for _, p := range allowed {
		assert.NoError(t, checkStylePath(p, "/_vault/", mimes), p)
	}
	rejected := []string{"/_vault/a.js", "/_vault/a", "/_vault/../_vault/a.txt", "/styles/x.map", "/styles/app.yaml", "/styles/a.png"}
	for _, p := range rejected {
		assert.ErrorIs(t, checkStylePath(p, "/_vault/", mimes), ErrPathRejected, p)
	}
}

func TestCheckImagePath(t *testing.T) {
	for _, p := range []string{"/a.png", "/b.JPG", "/c/d.jpeg"} {
		assert.NoError(t, checkImagePath(p), p)
	}
	for _, p := range []string{"/a.gif", "/a.webp", "/a", "/a.png.txt"} {
		assert.ErrorIs(t, checkImagePath(p), ErrPathRejected, p)
	}
}

func TestAcceptsWebP(t *testing.T) {
	assert.True(t, acceptsWebP("image/webp"))
	assert.True(t, acceptsWebP("text/html, image/webp;q=0.9"))
	assert.True(t, acceptsWebP("IMAGE/WEBP"))
	assert.False(t, acceptsWebP(""))
	assert.False(t, acceptsWebP("image/*"))
	assert.False(t, acceptsWebP("*/*"))
	assert.False(t, acceptsWebP("image/webpx"))
}

func TestWebPVariantPath(t *testing.T) {
	assert.Equal(t, "/a/photo.webp-gen", webpVariantPath("/a/photo.jpg"))
	assert.Equal(t, "/a/photo.webp-gen", webpVariantPath("/a/photo.jpeg"))
	assert.Equal(t, "/a/my.photo.webp-gen", webpVariantPath("/a/my.photo.png"))
}

func TestSelectImage(t *testing.T) {
	fsys := newMemFS()
	fsys.add("/i/a.png", "A", testModTime)
	fsys.add("/i/b.webp-gen", "B", testModTime)
	mimes := NewMimeTable()
	ctx := context.Background()

	ra, err := selectImage(ctx, fsys, mimes, "/i/a.png", "image/webp")
	require.NoError(t, err)
	assert.Equal(t, "/i/a.png", ra.PhysicalPath)
	assert.Equal(t, "image/png", ra.ContentType)

	// The variant alone is enough when the client takes webp.
	ra, err = selectImage(ctx, fsys, mimes, "/i/b.jpg", "image/webp")
	require.NoError(t, err)
	assert.Equal(t, "/i/b.webp-gen", ra.PhysicalPath)
	assert.Equal(t, "image/webp", ra.ContentType)

	_, err = selectImage(ctx, fsys, mimes, "/i/b.jpg", "")
	assert.ErrorIs(t, err, ErrAssetMissing)
}
