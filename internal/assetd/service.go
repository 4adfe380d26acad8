package assetd

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

type Service struct {
	cfg Config
	log *slog.Logger

	buster CacheBuster
	fs     FileSystem
	mapper PathMapper
	mimes  *MimeTable

	ram   *ramCache
	disk  *diskCache
	cache ByteCache

	stats *statsCollector

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type ServiceOption func(*Service)

// WithFileSystem replaces the asset source chosen by the config.
func WithFileSystem(fsys FileSystem) ServiceOption {
	return func(s *Service) {
		s.fs = fsys
	}
}

func WithCacheBuster(b CacheBuster) ServiceOption {
	return func(s *Service) {
		s.buster = b
	}
}

func NewService(cfg Config, log *slog.Logger, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		log:    log,
		mimes:  NewMimeTable(mimeEntriesFromConfig(cfg.Mime)...),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buster == nil {
		s.buster = NewCacheBuster(cfg.Site.CacheBuster, cfg.Site.Version)
	}

	slashOnly := cfg.Assets.Source == SourceS3
	s.mapper = NewRootMapper(cfg.Assets.WebRoot, cfg.Assets.VaultRoot, cfg.Assets.VaultPrefix, slashOnly)
	if s.fs == nil {
		fsys, err := newConfiguredFileSystem(cfg)
		if err != nil {
			return nil, err
		}
		s.fs = fsys
	}

	site := cfg.SiteSettings()
	if site.CacheActive() {
		if err := s.openCaches(); err != nil {
			return nil, err
		}
	} else {
		s.cache = nopCache{}
		log.Info("byte cache disabled", "debug", site.Debug, "cacheEnabled", site.CacheEnabled)
	}

	if every := cfg.StatsEvery(); every > 0 {
		s.stats = newStatsCollector()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLoop(every)
		}()
	}

	return s, nil
}

func newConfiguredFileSystem(cfg Config) (FileSystem, error) {
	if cfg.Assets.Source != SourceS3 {
		return NewOSFileSystem(), nil
	}
	client, err := newS3Client(cfg.Assets.S3.Region, cfg.Assets.S3.Endpoint)
	if err != nil {
		return nil, err
	}
	return NewS3FileSystem(client, cfg.Assets.S3.Bucket, cfg.Assets.S3.Prefix), nil
}

func (s *Service) openCaches() error {
	disk, err := openDiskCache(s.cfg.Storage.Disk.Path, s.cfg.diskMax, s.buster.Token())
	if err != nil {
		// An unreadable store is only a cache: wipe it and start over once.
		s.log.Warn("disk cache unusable, recreating", "path", s.cfg.Storage.Disk.Path, "error", err)
		if res := cleanupPaths(s.cfg.Storage.Disk.Path); !res.OK() {
			s.log.Warn("disk cache cleanup incomplete", "error", res.Err())
		}
		disk, err = openDiskCache(s.cfg.Storage.Disk.Path, s.cfg.diskMax, s.buster.Token())
		if err != nil {
			return err
		}
	}
	s.disk = disk
	s.ram = newRAMCache(s.cfg.ramMax)
	s.cache = newTieredCache(s.ram, s.disk, newRateLimitedLogger(s.log, time.Minute))
	return nil
}

func (s *Service) Close() {
	close(s.stopCh)
	s.wg.Wait()
	if s.disk != nil {
		s.disk.close()
	}
}

func (s *Service) deps() Deps {
	return Deps{
		FS:          s.fs,
		Cache:       s.cache,
		Mapper:      s.mapper,
		Mimes:       s.mimes,
		Buster:      s.buster,
		Site:        s.cfg.SiteSettings(),
		Policy:      StaticCachePolicy{MaxAge: s.cfg.maxAge},
		Log:         s.log,
		VaultPrefix: s.cfg.Assets.VaultPrefix,
		stats:       s.stats,
	}
}

// Handler mounts the style and image handlers on their configured prefixes.
func (s *Service) Handler() http.Handler {
	d := s.deps()
	styles := NewStyleHandler(d)
	images := NewImageHandler(d)

	mux := http.NewServeMux()
	for _, p := range s.cfg.Routes.Styles {
		mux.Handle(p, styles)
		s.log.Debug("mounted style handler", "prefix", p)
	}
	for _, p := range s.cfg.Routes.Images {
		mux.Handle(p, images)
		s.log.Debug("mounted image handler", "prefix", p)
	}
	return mux
}

func (s *Service) CacheBuster() string { return s.buster.Token() }

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.logStats()
		}
	}
}

func (s *Service) logStats() {
	ss := s.stats.Snapshot()
	args := []any{
		"served", ss.Served,
		"notModified", ss.NotModified,
		"notFound", ss.NotFound,
		"body", fmt.Sprintf("%s/%s/%s", humanize.IBytes(ss.MinBytes), humanize.IBytes(ss.AvgBytes), humanize.IBytes(ss.MaxBytes)),
	}
	if tc, ok := s.cache.(*tieredCache); ok {
		args = append(args,
			"keys", tc.cachedKeysCount(),
			"ram", humanize.IBytes(uint64(s.ram.TotalSize())),
			"disk", humanize.IBytes(uint64(s.disk.TotalSize())),
		)
	}
	if rss, ok := processRSSBytes(); ok {
		args = append(args, "rss", humanize.IBytes(rss))
	}
	s.log.Info("stats", args...)
}
