// Command server runs the multi-hazard H3 risk-tile service: it assembles
// the dataset adapters, both cell-result caches, the in-memory tile cache,
// the orchestrator, and the HTTP surface, then serves until signalled to
// stop.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sottomarino/geolens-europa/internal/adapters/factory"
	"github.com/sottomarino/geolens-europa/internal/cache/pgstore"
	"github.com/sottomarino/geolens-europa/internal/cache/redisstore"
	cachev2 "github.com/sottomarino/geolens-europa/internal/cache/v2"
	"github.com/sottomarino/geolens-europa/internal/cellcache"
	"github.com/sottomarino/geolens-europa/internal/core/config"
	"github.com/sottomarino/geolens-europa/internal/core/health"
	"github.com/sottomarino/geolens-europa/internal/core/observability"
	"github.com/sottomarino/geolens-europa/internal/core/router"
	"github.com/sottomarino/geolens-europa/internal/core/server"
	mylog "github.com/sottomarino/geolens-europa/internal/logger"
	h3mapper "github.com/sottomarino/geolens-europa/internal/mapper/h3"
	"github.com/sottomarino/geolens-europa/internal/orchestrator"
	"github.com/sottomarino/geolens-europa/internal/risk"
	"github.com/sottomarino/geolens-europa/internal/tilecache"
	"github.com/sottomarino/geolens-europa/pkg/invalidation/kafka"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.FromEnv()

	zl := mylog.Build(mylog.Config{Level: cfg.LogLevel, Console: true, Component: "server"}, os.Stdout)
	logger := mylog.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.Init(prometheus.DefaultRegisterer, true)

	if err := os.MkdirAll(cfg.CacheDataDir, 0o755); err != nil {
		logger.Error("create cache data dir", "dir", cfg.CacheDataDir, "error", err)
		os.Exit(1)
	}

	// DB_DSN takes priority over REDIS_ADDR when both are set: Postgres
	// survives a mirror restart, Redis does not.
	var mirror *cachev2.Store
	if cfg.DBDSN != "" {
		cli, err := pgstore.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Warn("postgres mirror unavailable, continuing disk-only", "error", err)
		} else {
			mirror = cachev2.NewPostgresStore(cli, cfg.CacheTTLDefault)
			defer cli.Close()
		}
	} else if cfg.RedisAddr != "" {
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis mirror unavailable, continuing disk-only", "error", err)
		} else {
			mirror = cachev2.NewRedisStore(cli, cfg.CacheTTLDefault)
			defer cli.Close()
		}
	}

	v1 := cellcache.NewV1Store(filepath.Join(cfg.CacheDataDir, "h3_cache.json"), logger)
	v2 := cellcache.NewV2Store(filepath.Join(cfg.CacheDataDir, "h3_cache_v2.json"), logger, mirror, cfg.CacheTTLDefault)

	flushCtx, stopFlush := context.WithCancel(ctx)
	defer stopFlush()
	go v1.Run(flushCtx, cfg.CacheFlushInterval)
	go v2.Run(flushCtx, cfg.CacheFlushInterval)

	tiles := tilecache.New(cfg.TileCacheBudgetMB, cfg.TileCacheTTL, logger)
	go tiles.Run(flushCtx, cfg.TileCacheSweep)

	adapterSet, err := factory.Build(ctx, factory.Config{
		UseRealData:        cfg.UseRealData,
		RawDataDir:         cfg.RawDataDir,
		AdapterMaxRetries:  cfg.AdapterMaxRetries,
		AdapterBaseDelay:   cfg.AdapterBaseDelay,
		ElevationS3Bucket:  cfg.ElevationS3Bucket,
		ElevationS3Region:  cfg.ElevationS3Region,
		ElsusS3Bucket:      cfg.ElsusS3Bucket,
		PGAS3Bucket:        cfg.PGAS3Bucket,
		LandCoverS3Bucket:  cfg.LandCoverS3Bucket,
		AWSAccessKeyID:     cfg.AWSAccessKeyID,
		AWSSecretAccessKey: cfg.AWSSecretAccessKey,
		NASAPrecipURL:      cfg.NASAPrecipURL,
		PrecipTimeout:      cfg.PrecipTimeout,
		PrecipChunkSize:    cfg.PrecipChunkSize,
		PrecipMaxRetries:   cfg.PrecipMaxRetries,
	})
	if err != nil {
		logger.Error("build dataset adapters", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(adapterSet, v2, v1, orchestrator.DefaultChunkSize, risk.DefaultConfig(), logger)
	handler := router.New(logger, orch, v1, v2, tiles)

	invCfg := kafka.FromEnv()
	var runner *kafka.Runner
	if invCfg.Enabled {
		runner = kafka.New(invCfg, v2, v1, h3mapper.New(), kafka.Options{
			Logger:   logger,
			ResRange: []int{cfg.H3ResMin, cfg.H3Res, cfg.H3ResMax},
			Tiles:    tiles,
		})
		if err := runner.Start(ctx); err != nil {
			logger.Error("start invalidation runner", "error", err)
			os.Exit(1)
		}
		defer runner.Stop()
	}

	var readiness health.ReadinessReporter
	if runner != nil {
		readiness = runner
	}

	logger.Info("server starting", "addr", cfg.Addr, "useRealData", cfg.UseRealData)
	if err := server.Run(ctx, cfg, logger, handler, readiness, adapterSet); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	flushAll(logger, v1, v2)
	logger.Info("server stopped")
}

func flushAll(logger *slog.Logger, v1 *cellcache.V1Store, v2 *cellcache.V2Store) {
	if err := v1.Flush(); err != nil {
		logger.Warn("final v1 flush failed", "error", err)
	}
	if err := v2.Flush(); err != nil {
		logger.Warn("final v2 flush failed", "error", err)
	}
}
