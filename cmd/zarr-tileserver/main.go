package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	zarr "github.com/qri-io/zarr-loader"
	"github.com/qri-io/zarr-loader/internal/config"
	"github.com/qri-io/zarr-loader/internal/logger"
	"github.com/qri-io/zarr-loader/internal/metrics"
	"github.com/qri-io/zarr-loader/loader"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "zarr-tileserver",
	}, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		zl.Error().Err(err).Msg("store setup failed")
		return 1
	}
	defer closeStore()

	src, err := openSource(ctx, store, cfg)
	if err != nil {
		zl.Error().Err(err).Str("path", cfg.ArrayPath).Msg("opening array failed")
		return 1
	}

	mp := metrics.Init(metrics.BuildInfo{
		Version:   Version,
		Revision:  os.Getenv("BUILD_REVISION"),
		BuildDate: os.Getenv("BUILD_DATE"),
	})

	opts := []loader.Option{
		loader.WithScale(cfg.Scale),
		loader.WithLogger(zl.With().Str("array", cfg.ArrayPath).Logger()),
		loader.WithObserver(metrics.NewRetrieval(mp.Registerer())),
	}
	if o := cfg.RGBOverride(); o != nil {
		opts = append(opts, loader.WithRGB(*o))
	}
	ld, err := loader.New(src, opts...)
	if err != nil {
		zl.Error().Err(err).Msg("loader setup failed")
		return 1
	}

	md := ld.Metadata()
	zl.Info().
		Str("addr", cfg.Addr).
		Str("version", Version).
		Str("store", store.Type()).
		Int("width", md.ImageWidth).
		Int("height", md.ImageHeight).
		Int("levels", ld.NumLevels()).
		Bool("rgb", ld.IsRGB()).
		Msg("starting zarr-tileserver")

	s := &server{ld: ld, log: &zl, timeout: cfg.RequestTimeout}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(s, mp.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zl.Info().Msg("signal received, shutting down")
	case err := <-errCh:
		zl.Error().Err(err).Msg("server error")
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	zl.Info().Msg("server stopped")
	return 0
}

func openStore(cfg config.Config) (zarr.Store, func(), error) {
	switch cfg.Store {
	case "local":
		s, err := zarr.NewLocalStore(cfg.StoreDir)
		return s, func() {}, err
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return zarr.NewRedisStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openSource(ctx context.Context, store zarr.Store, cfg config.Config) (loader.Source, error) {
	if !cfg.Multiscale {
		a, err := zarr.Open(ctx, store, cfg.ArrayPath)
		if err != nil {
			return nil, err
		}
		return loader.Single{Array: a}, nil
	}

	arrays, err := zarr.OpenMultiscale(ctx, store, cfg.ArrayPath)
	if err != nil {
		return nil, err
	}
	levels := make([]loader.Array, len(arrays))
	for i, a := range arrays {
		levels[i] = a
	}
	return loader.Pyramid{Levels: levels}, nil
}
