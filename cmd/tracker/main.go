package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	mqttadapter "github.com/samirrijal/pklocator/internal/adapters/mqtt"
	natsadapter "github.com/samirrijal/pklocator/internal/adapters/nats"
	"github.com/samirrijal/pklocator/internal/adapters/replay"
	"github.com/samirrijal/pklocator/internal/adapters/valkey"
	"github.com/samirrijal/pklocator/internal/app"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/core/usecases"
	"github.com/samirrijal/pklocator/internal/pkg/config"
	"github.com/samirrijal/pklocator/internal/pkg/logging"
	"github.com/samirrijal/pklocator/internal/pkg/metrics"
	"github.com/samirrijal/pklocator/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("pklocator-tracker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	ds, err := app.OpenDataset(ctx, cfg)
	if err != nil {
		log.Fatalf("dataset: %v", err)
	}
	defer ds.Close()

	var cache ports.CacheService
	if cfg.Locator.SharedCache {
		vk, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, using the dataset directly", "error", err)
		} else {
			defer vk.Close()
			cache = vk
		}
	}

	var publisher ports.SnapshotPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, snapshots will not be published", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	locator, err := app.NewLocator(ctx, cfg, ds, cache, publisher)
	if err != nil {
		log.Fatalf("locator: %v", err)
	}

	source, closeSource, err := openSource(cfg)
	if err != nil {
		log.Fatalf("location source: %v", err)
	}
	defer closeSource()

	tracker := usecases.NewTrackingService(locator, source, usecases.TrackingConfig{
		MaxTimeoutRetries: cfg.Tracker.MaxTimeoutRetries,
		RetryInitial:      cfg.Tracker.RetryInitial,
		RetryMax:          cfg.Tracker.RetryMax,
	})

	// Metrics endpoint
	mapp := fiber.New(fiber.Config{DisableStartupMessage: true, AppName: "PK Locator Tracker"})
	mapp.Get("/metrics", metrics.Handler())
	mapp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(locator.Snapshot())
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := mapp.Listen(addr); err != nil {
			slog.Error("metrics listener stopped", "error", err)
		}
	}()

	slog.Info("tracker started",
		"source", cfg.Tracker.Source,
		"device", cfg.Locator.DeviceID,
		"lines", locator.Index().Len(),
	)
	if err := tracker.Run(ctx); err != nil {
		log.Fatalf("tracker: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = mapp.ShutdownWithContext(shutdownCtx)

	slog.Info("tracker stopped", "superseded", tracker.Superseded())
}

// openSource builds the location source named by tracker.source. The returned
// func releases its connection.
func openSource(cfg *config.Config) (ports.LocationSource, func(), error) {
	device := cfg.Locator.DeviceID

	switch cfg.Tracker.Source {
	case config.TrackNATS:
		nc, err := natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats: %w", err)
		}
		return natsadapter.NewFixSource(nc, device, cfg.Tracker.FixTimeout), func() { _ = nc.Drain() }, nil

	case config.TrackMQTT:
		client, err := mqttadapter.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password)
		if err != nil {
			return nil, nil, fmt.Errorf("mqtt: %w", err)
		}
		src := mqttadapter.NewSource(client, device, byte(cfg.MQTT.QoS), cfg.Tracker.FixTimeout)
		return src, func() { client.Disconnect(250) }, nil

	case config.TrackReplay:
		src := replay.Open(cfg.Tracker.ReplayFile, device, cfg.Locator.UpdateInterval, cfg.Tracker.ReplayLoop)
		return src, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown tracker source %q", cfg.Tracker.Source)
	}
}
