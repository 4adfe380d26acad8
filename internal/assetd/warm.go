package assetd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type WarmResult struct {
	Stored  int
	Skipped int
	Bytes   int64
}

type warmItem struct {
	key  string
	path string
}

// Warm reads every servable asset under the configured roots into the
// persistent byte cache, so a fresh process starts with hot entries. It
// needs exclusive access to the cache directory.
func Warm(ctx context.Context, cfg Config, log *slog.Logger, progress io.Writer) (WarmResult, error) {
	if cfg.Assets.Source != SourceDisk {
		return WarmResult{}, fmt.Errorf("warm: only the %q source can be walked", SourceDisk)
	}
	if !cfg.SiteSettings().CacheActive() {
		return WarmResult{}, fmt.Errorf("warm: byte cache is not active for this site")
	}

	var items []warmItem
	for _, root := range []string{cfg.Assets.WebRoot, cfg.Assets.VaultRoot} {
		if root == "" {
			continue
		}
		found, err := collectWarmItems(root, root == cfg.Assets.VaultRoot)
		if err != nil {
			return WarmResult{}, err
		}
		items = append(items, found...)
	}

	buster := NewCacheBuster(cfg.Site.CacheBuster, cfg.Site.Version)
	disk, err := openDiskCache(cfg.Storage.Disk.Path, cfg.diskMax, buster.Token())
	if err != nil {
		return WarmResult{}, err
	}
	defer disk.close()

	p := mpb.NewWithContext(ctx, mpb.WithOutput(progress), mpb.WithWidth(48))
	bar := p.AddBar(int64(len(items)),
		mpb.PrependDecorators(
			decor.Name("warming"),
			decor.CountersNoUnit(" %d/%d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	fsys := NewOSFileSystem()
	var res WarmResult
	for _, it := range items {
		if ctx.Err() != nil {
			bar.Abort(false)
			break
		}
		st, err := fsys.Stat(ctx, it.path)
		if err != nil {
			res.Skipped++
			bar.Increment()
			continue
		}
		body, err := fsys.ReadFile(ctx, it.path)
		if err != nil {
			log.Warn("warm: read failed", "path", it.path, "error", err)
			res.Skipped++
			bar.Increment()
			continue
		}
		disk.PutAsync(it.key, CacheEntry{Body: body, ModTime: st.ModTime.UnixNano()})
		res.Stored++
		res.Bytes += int64(len(body))
		bar.Increment()
	}
	p.Wait()

	return res, ctx.Err()
}

func collectWarmItems(root string, vault bool) ([]warmItem, error) {
	var out []warmItem
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := extOf(p)
		switch {
		case vaultExtensions[ext]:
			out = append(out, warmItem{key: kindStyle.cacheKey(p), path: p})
		case vault:
			// only style sheets are reachable through the vault
		case imageExtensions[ext], ext == webpVariantExt:
			out = append(out, warmItem{key: kindImage.cacheKey(p), path: p})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}
