package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"assetd/internal/assetd"
	"assetd/internal/logger"
)

var version = "dev"

type globals struct {
	Config string `short:"c" default:"${config_file}" help:"Path to assetd.yaml."`
	Debug  bool   `short:"d" help:"Enable debug logging."`
}

type serveCmd struct{}

type warmCmd struct {
	Quiet bool `short:"q" help:"Hide the progress bar."`
}

type purgeCmd struct{}

type cli struct {
	globals

	Version kong.VersionFlag `short:"v" help:"Print version and exit."`
	Serve   serveCmd         `cmd:"" default:"1" help:"Serve style and image assets."`
	Warm    warmCmd          `cmd:"" help:"Prime the persistent byte cache from the asset roots."`
	Purge   purgeCmd         `cmd:"" help:"Delete the persistent byte cache."`
}

func loadConfig(g *globals) (assetd.Config, *slog.Logger, error) {
	cfg, err := assetd.LoadConfig(g.Config)
	if err != nil {
		return assetd.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level := logger.ParseLevel(cfg.Logging.Level)
	if g.Debug {
		level = logger.LevelDebug
	}
	return cfg, logger.New(logger.WithName("assetd"), logger.WithLevel(level)), nil
}

func (serveCmd) Run(g *globals) error {
	cfg, log, err := loadConfig(g)
	if err != nil {
		return err
	}

	svc, err := assetd.NewService(cfg, log)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer svc.Close()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	h := svc.Handler()
	if cfg.Server.H2C {
		h = h2c.NewHandler(h, &http2.Server{})
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("assetd listening", "addr", addr, "cacheBuster", svc.CacheBuster(), "h2c", cfg.Server.H2C)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// svc.Close runs after this; handlers still in flight then miss the
	// disk cache and read the filesystem.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown timed out, closing connections", "error", err)
		_ = srv.Close()
		return err
	}
	return nil
}

func (c warmCmd) Run(g *globals) error {
	cfg, log, err := loadConfig(g)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var progress io.Writer = os.Stderr
	if c.Quiet {
		progress = io.Discard
	}
	res, err := assetd.Warm(ctx, cfg, log, progress)
	if err != nil {
		return err
	}
	log.Info("warm complete", "stored", res.Stored, "skipped", res.Skipped, "bytes", humanize.IBytes(uint64(res.Bytes)))
	return nil
}

func (purgeCmd) Run(g *globals) error {
	cfg, log, err := loadConfig(g)
	if err != nil {
		return err
	}
	res := assetd.PurgeDiskCache(cfg)
	for p, err := range res.Failed {
		log.Warn("purge: could not remove", "path", p, "error", err)
	}
	log.Info("purge complete", "removed", len(res.Removed), "failed", len(res.Failed))
	return nil
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}

func main() {
	var c cli
	kctx := kong.Parse(
		&c,
		kong.Vars{
			"version":     version,
			"config_file": getenvDefault("ASSETD_CONFIG", "/assetd.yaml"),
		},
		kong.Name("assetd"),
		kong.Description("Conditional-GET server for style sheets and images."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	kctx.FatalIfErrorf(kctx.Run(&c.globals))
}
