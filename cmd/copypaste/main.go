package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/KazeTachinuu/copy-paste/cfg"
	"github.com/KazeTachinuu/copy-paste/metrics"
	"github.com/KazeTachinuu/copy-paste/svc/api"
	"github.com/KazeTachinuu/copy-paste/svc/cache"
	"github.com/KazeTachinuu/copy-paste/svc/db"
	"github.com/KazeTachinuu/copy-paste/svc/lim"
	"github.com/KazeTachinuu/copy-paste/svc/svc"
	"github.com/KazeTachinuu/copy-paste/svc/util"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Str("backend", c.Backend).Msg("starting copy-paste API")
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var kv db.KV
	var rdb *db.Redis
	var sqlDB *db.SQLite
	switch c.Backend {
	case "redis":
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to connect to redis")
			os.Exit(1)
		}
		kv = rdb
		util.Info().Msg("redis backend connected")
	case "sqlite":
		sqlDB, err = db.NewSQLite(c.DatabasePath)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to open sqlite database")
			os.Exit(1)
		}
		kv = sqlDB
		util.Info().Str("path", c.DatabasePath).Msg("sqlite backend initialized")
	default:
		kv = db.NewMemory()
		util.Info().Msg("in-memory backend initialized")
	}
	defer kv.Close()

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}

	store, err := svc.NewStore(kv, lruCache, c)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize store")
		os.Exit(1)
	}
	util.Info().Int("live", store.Count()).Msg("store initialized")

	gov := lim.New(c.Rate, rdb)
	defer gov.Stop()
	util.Info().
		Int("global_capacity", c.Rate.GlobalCapacity).
		Float64("global_refill", c.Rate.GlobalRefillPerSec).
		Int("client_max", c.Rate.ClientMax).
		Dur("client_window", c.Rate.ClientWindow).
		Msg("rate governor initialized")

	server := api.NewServer(c, store, gov, kv)

	if err := store.StartSweeper(ctx, c.SweepInterval); err != nil {
		util.Error().Err(err).Msg("failed to start sweeper")
	}

	var quitWAL chan struct{}
	if sqlDB != nil {
		quitWAL = make(chan struct{})
		go db.StartWALMaintenance(sqlDB.DB(), quitWAL)
		util.Info().Msg("WAL maintenance worker started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-gctx.Done():
			return gctx.Err()
		}
		util.Info().Msg("shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if quitWAL != nil {
		close(quitWAL)
	}
	cancel()
	if err != nil && err != context.Canceled {
		util.Error().Err(err).Msg("server exited with error")
	}
	util.Info().Msg("shutdown complete")
}
