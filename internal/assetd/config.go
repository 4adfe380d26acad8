package assetd

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage struct {
		RAM struct {
			Max string `yaml:"max"`
		} `yaml:"ram"`
		Disk struct {
			Max  string `yaml:"max"`
			Path string `yaml:"path"`
		} `yaml:"disk"`
	} `yaml:"storage"`

	Server struct {
		Port int  `yaml:"port"`
		H2C  bool `yaml:"h2c"`
	} `yaml:"server"`

	Site struct {
		Debug        bool   `yaml:"debug"`
		CacheEnabled *bool  `yaml:"cacheEnabled"`
		CacheBuster  string `yaml:"cacheBuster"`
		Version      string `yaml:"version"`
	} `yaml:"site"`

	Assets struct {
		Source      string `yaml:"source"`
		WebRoot     string `yaml:"webRoot"`
		VaultRoot   string `yaml:"vaultRoot"`
		VaultPrefix string `yaml:"vaultPrefix"`
		S3          struct {
			Bucket   string `yaml:"bucket"`
			Prefix   string `yaml:"prefix"`
			Region   string `yaml:"region"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"s3"`
	} `yaml:"assets"`

	Routes struct {
		Styles []string `yaml:"styles"`
		Images []string `yaml:"images"`
	} `yaml:"routes"`

	CacheControl struct {
		MaxAge string `yaml:"maxAge"`
	} `yaml:"cacheControl"`

	Logging struct {
		Level      string `yaml:"level"`
		StatsEvery string `yaml:"statsEvery"`
	} `yaml:"logging"`

	Mime []MimeRule `yaml:"mime"`

	// compiled
	ramMax        int64
	diskMax       int64
	maxAge        time.Duration
	statsEveryDur time.Duration
}

type MimeRule struct {
	Extension   string `yaml:"extension"`
	ContentType string `yaml:"contentType"`
	MaxAge      string `yaml:"maxAge"`

	maxAgeDur time.Duration
}

const (
	SourceDisk = "disk"
	SourceS3   = "s3"
)

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) compile() error {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Site.CacheEnabled == nil {
		enabled := true
		cfg.Site.CacheEnabled = &enabled
	}

	if cfg.Assets.Source == "" {
		cfg.Assets.Source = SourceDisk
	}
	switch cfg.Assets.Source {
	case SourceDisk:
		if cfg.Assets.WebRoot == "" {
			return fmt.Errorf("assets.webRoot is required")
		}
	case SourceS3:
		if cfg.Assets.S3.Bucket == "" {
			return fmt.Errorf("assets.s3.bucket is required")
		}
		// Object keys are derived from physical paths, so the roots act as
		// key prefixes inside the bucket.
		if cfg.Assets.WebRoot == "" {
			cfg.Assets.WebRoot = "/public"
		}
		if cfg.Assets.VaultRoot == "" {
			cfg.Assets.VaultRoot = "/vault"
		}
	default:
		return fmt.Errorf("assets.source: unknown source %q", cfg.Assets.Source)
	}
	if cfg.Assets.VaultPrefix == "" {
		cfg.Assets.VaultPrefix = "/_vault/"
	}
	p, err := normalizePrefix(cfg.Assets.VaultPrefix)
	if err != nil {
		return fmt.Errorf("assets.vaultPrefix: %w", err)
	}
	cfg.Assets.VaultPrefix = p

	if len(cfg.Routes.Styles) == 0 {
		cfg.Routes.Styles = []string{"/styles/", cfg.Assets.VaultPrefix}
	}
	if len(cfg.Routes.Images) == 0 {
		cfg.Routes.Images = []string{"/images/"}
	}
	for i, r := range cfg.Routes.Styles {
		p, err := normalizePrefix(r)
		if err != nil {
			return fmt.Errorf("routes.styles[%d]: %w", i, err)
		}
		cfg.Routes.Styles[i] = p
	}
	for i, r := range cfg.Routes.Images {
		p, err := normalizePrefix(r)
		if err != nil {
			return fmt.Errorf("routes.images[%d]: %w", i, err)
		}
		cfg.Routes.Images[i] = p
	}

	if cfg.Storage.RAM.Max == "" {
		cfg.Storage.RAM.Max = "64MB"
	}
	if cfg.Storage.Disk.Max == "" {
		cfg.Storage.Disk.Max = "512MB"
	}
	if cfg.Storage.Disk.Path == "" {
		cfg.Storage.Disk.Path = "./data/leveldb"
	}
	ramMax, err := humanize.ParseBytes(cfg.Storage.RAM.Max)
	if err != nil {
		return fmt.Errorf("storage.ram.max: %w", err)
	}
	diskMax, err := humanize.ParseBytes(cfg.Storage.Disk.Max)
	if err != nil {
		return fmt.Errorf("storage.disk.max: %w", err)
	}
	cfg.ramMax = int64(ramMax)
	cfg.diskMax = int64(diskMax)

	if cfg.CacheControl.MaxAge == "" {
		cfg.CacheControl.MaxAge = "8760h"
	}
	d, err := time.ParseDuration(cfg.CacheControl.MaxAge)
	if err != nil {
		return fmt.Errorf("cacheControl.maxAge: %w", err)
	}
	cfg.maxAge = d

	if cfg.Logging.StatsEvery != "" {
		d, err := time.ParseDuration(cfg.Logging.StatsEvery)
		if err != nil {
			return fmt.Errorf("logging.statsEvery: %w", err)
		}
		cfg.statsEveryDur = d
	}

	for i := range cfg.Mime {
		m := &cfg.Mime[i]
		if !strings.HasPrefix(m.Extension, ".") || m.ContentType == "" {
			return fmt.Errorf("mime[%d]: extension must start with '.' and contentType is required", i)
		}
		if m.MaxAge != "" {
			d, err := time.ParseDuration(m.MaxAge)
			if err != nil {
				return fmt.Errorf("mime[%d].maxAge: %w", i, err)
			}
			m.maxAgeDur = d
		}
	}

	return nil
}

func normalizePrefix(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("invalid prefix %q", p)
	}
	p = path.Clean(p)
	if p != "/" {
		p += "/"
	}
	return p, nil
}

// SiteSettings returns the per-site switches handed to the handlers.
func (cfg Config) SiteSettings() SiteSettings {
	return SiteSettings{
		Debug:        cfg.Site.Debug,
		CacheEnabled: cfg.Site.CacheEnabled != nil && *cfg.Site.CacheEnabled,
	}
}

func (cfg Config) StatsEvery() time.Duration { return cfg.statsEveryDur }
