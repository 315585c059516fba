package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/pklocator/internal/adapters/http"
	natsadapter "github.com/samirrijal/pklocator/internal/adapters/nats"
	"github.com/samirrijal/pklocator/internal/adapters/valkey"
	"github.com/samirrijal/pklocator/internal/app"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/config"
	"github.com/samirrijal/pklocator/internal/pkg/logging"
	"github.com/samirrijal/pklocator/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("pklocator-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Dataset
	ds, err := app.OpenDataset(ctx, cfg)
	if err != nil {
		log.Fatalf("dataset: %v", err)
	}
	defer ds.Close()

	deps := &http.Dependencies{}
	if ds.DB != nil {
		deps.DB = ds.DB
		go ds.DB.ReportPoolStats(ctx, 15*time.Second)
	}

	// Shared point cache
	var cache ports.CacheService
	vk, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vk.Close()
		cache = vk
		deps.Cache = vk
	}

	// Snapshot publisher
	var publisher ports.SnapshotPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
		deps.NATS = natsConn
	}

	// Engine
	locator, err := app.NewLocator(ctx, cfg, ds, cache, publisher)
	if err != nil {
		log.Fatalf("locator: %v", err)
	}
	slog.Info("line index loaded",
		"lines", locator.Index().Len(),
		"corrections", locator.Corrections().Len(),
		"source", cfg.Locator.DataSource,
	)
	deps.Locator = locator

	// Fiber
	fapp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "PK Locator API",
	})
	fapp.Use(recover.New())
	fapp.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match, X-Request-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(fapp, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := fapp.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := fapp.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
