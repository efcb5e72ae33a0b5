// Package main provides the clustering pipeline entry point for clusterd.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/newsmesh/clusterd/internal/cluster"
	"github.com/newsmesh/clusterd/internal/config"
	"github.com/newsmesh/clusterd/internal/db/gorm"
	"github.com/newsmesh/clusterd/internal/lock"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	pass := flag.Int("pass", 0, "Scheduled pass number, used for threshold decay")
	limit := flag.Int("limit", 0, "Override batch limit for this run")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *limit > 0 {
		cfg.BatchLimit = *limit
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Interrupt received, finishing current article")
		cancel()
	}()

	store, err := gorm.NewStore(gorm.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	runLock, err := lock.New(cfg.LockPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare run lock")
	}

	threshold, mergeThreshold := cfg.Thresholds(*pass)

	driver := cluster.NewDriver(gorm.NewRepository(store), runLock, cluster.Options{
		Threshold:       threshold,
		MergeThreshold:  mergeThreshold,
		EmbeddingDim:    cfg.EmbeddingDim,
		BatchLimit:      cfg.BatchLimit,
		StalenessWindow: cfg.StalenessWindow.Std(),
		Retry:           cluster.DefaultRetryPolicy(),
	})

	summary, err := driver.Run(ctx)
	if err != nil {
		if errors.Is(err, cluster.ErrPipelineBusy) {
			log.Warn().Msg("Another clustering run is in progress, exiting")
			os.Exit(2)
		}
		if errors.Is(err, context.Canceled) && summary != nil {
			log.Warn().Int("processed", summary.Processed).Msg("Run interrupted, state is consistent")
			os.Exit(0)
		}
		log.Fatal().Err(err).Msg("Clustering run failed")
	}

	log.Info().
		Str("version", Version).
		Int("processed", summary.Processed).
		Int("joined", summary.Joined).
		Int("created", summary.Created).
		Int("pending", summary.Pending).
		Int("skipped", summary.Skipped).
		Msg("Done")
}
