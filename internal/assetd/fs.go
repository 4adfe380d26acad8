package assetd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// FileSystem is the storage the handlers read assets from. Missing files are
// reported with an error matching fs.ErrNotExist.
type FileSystem interface {
	Stat(ctx context.Context, name string) (FileInfo, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

type FileInfo struct {
	Size    int64
	ModTime time.Time
}

type osFS struct{}

// NewOSFileSystem reads assets from the local disk. Names are absolute
// physical paths produced by a PathMapper.
func NewOSFileSystem() FileSystem { return osFS{} }

func (osFS) Stat(ctx context.Context, name string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	st, err := os.Stat(name)
	if err != nil {
		return FileInfo{}, err
	}
	if st.IsDir() {
		return FileInfo{}, fmt.Errorf("%s is a directory: %w", name, fs.ErrNotExist)
	}
	return FileInfo{Size: st.Size(), ModTime: st.ModTime()}, nil
}

func (osFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}

func exists(ctx context.Context, fsys FileSystem, name string) (FileInfo, bool) {
	st, err := fsys.Stat(ctx, name)
	if err != nil {
		return FileInfo{}, false
	}
	return st, true
}
