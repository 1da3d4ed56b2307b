package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groanlab/groanboard/internal/batch"
	corecfg "github.com/groanlab/groanboard/internal/core/config"
	"github.com/groanlab/groanboard/internal/core/stats"
	"github.com/groanlab/groanboard/internal/core/storage/postgres"
	"github.com/groanlab/groanboard/internal/dashboard"
	"github.com/groanlab/groanboard/internal/ingestion"
	"github.com/groanlab/groanboard/internal/migrations"
	"github.com/groanlab/groanboard/internal/server"
	"github.com/groanlab/groanboard/internal/stream"
	"github.com/groanlab/groanboard/internal/summarycache"
)

func main() {
	configPath := flag.String("config", "groanboard.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	summaryTTL, err := cfg.Summary.CacheTTL()
	if err != nil {
		slog.Error("Invalid summary TTL", "value", cfg.Summary.TTL, "error", err)
		os.Exit(1)
	}
	refreshInterval, err := cfg.Summary.RefreshEvery()
	if err != nil {
		slog.Error("Invalid summary refresh interval", "value", cfg.Summary.RefreshInterval, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage (PostgreSQL)
	eventStore, err := postgres.NewEventAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer eventStore.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(eventStore.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	rollupStore := postgres.NewRollupAdapter(eventStore.DB())

	// 3. Initialize Author Resolution
	authors := stats.NewAuthorResolver()
	if cfg.Authors.AliasesPath != "" {
		authors, err = stats.NewAuthorResolverFromFile(cfg.Authors.AliasesPath)
		if err != nil {
			slog.Error("Failed to load author aliases", "path", cfg.Authors.AliasesPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded author aliases", "path", cfg.Authors.AliasesPath)
	}

	// 4. Initialize Aggregation Paths
	aggregator := stream.NewAggregator(rollupStore, authors)
	summarizer := batch.NewSummarizer(eventStore, authors)
	summaryCache := summarycache.New(cfg.Summary.CachePath, summaryTTL, summarizer)

	// 5. Initialize Ingestion (submission + change feed)
	ingestionSvc := ingestion.NewService(eventStore, aggregator, cfg.Server.MaxBodySizeMB)

	// 6. Initialize Dashboard (read API)
	dashboardSvc := dashboard.NewService(rollupStore, eventStore, authors)
	dashboardHandler := dashboard.NewHandler(dashboardSvc, summaryCache)

	// 7. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), eventStore.DB(), cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	dashboardHandler.RegisterRoutes(srv.Engine)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background summary refresh keeps the cache warm so reads rarely pay
	// for a full recompute.
	if refreshInterval > 0 {
		go refreshSummaryLoop(ctx, summaryCache, refreshInterval)
	} else {
		slog.Info("Summary refresh loop disabled by config")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func refreshSummaryLoop(ctx context.Context, cache *summarycache.Cache, interval time.Duration) {
	slog.Info("Summary refresh loop started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Summary refresh loop stopped")
			return
		case <-ticker.C:
			if _, err := cache.Refresh(ctx); err != nil {
				slog.Error("Background summary refresh failed", "error", err)
			}
		}
	}
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
