package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/pklocator/internal/adapters/nats"
	"github.com/samirrijal/pklocator/internal/adapters/valkey"
	"github.com/samirrijal/pklocator/internal/app"
	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/usecases"
	"github.com/samirrijal/pklocator/internal/pkg/config"
	"github.com/samirrijal/pklocator/internal/pkg/logging"
	"github.com/samirrijal/pklocator/internal/workflows"
)

func main() {
	cfg, err := config.Load("pklocator-warmer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ds, err := app.OpenDataset(ctx, cfg)
	if err != nil {
		log.Fatalf("dataset: %v", err)
	}
	defer ds.Close()

	entries, err := ds.LoadIndex(ctx)
	if err != nil {
		log.Fatalf("load line index: %v", err)
	}
	index := usecases.NewLineIndex(entries, cfg.Locator.MarginDeg)

	// The warmer exists to fill the shared tier; without it there is nothing to do.
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	acts := &workflows.PrefetchActivities{
		Index:  index,
		Points: usecases.NewCachedPointSource(ds, cache, cfg.Locator.CacheExpiry),
	}
	w.RegisterWorkflow(workflows.PrefetchWorkflow)
	w.RegisterActivityWithOptions(acts.CandidateLines, activity.RegisterOptions{Name: workflows.CandidateLinesActivity})
	w.RegisterActivityWithOptions(acts.WarmLine, activity.RegisterOptions{Name: workflows.WarmLineActivity})

	if err := w.Start(); err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer w.Stop()

	pos := &lastPosition{}
	if nc, err := natsadapter.RawConn(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, warming the whole index", "error", err)
	} else {
		defer nc.Close()
		sub, err := nc.Subscribe(natsadapter.PositionSubjects, pos.handle)
		if err != nil {
			slog.Warn("position subscribe failed", "error", err)
		} else {
			defer func() { _ = sub.Unsubscribe() }()
		}
	}

	slog.Info("warmer worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"interval", cfg.Temporal.Interval,
		"lines", index.Len(),
	)

	ticker := time.NewTicker(cfg.Temporal.Interval)
	defer ticker.Stop()

	startPrefetch(ctx, c, cfg, pos.get())
	for {
		select {
		case <-ticker.C:
			startPrefetch(ctx, c, cfg, pos.get())
		case <-ctx.Done():
			slog.Info("warmer stopped")
			return
		}
	}
}

func startPrefetch(ctx context.Context, c client.Client, cfg *config.Config, near *domain.GeoPoint) {
	opts := client.StartWorkflowOptions{
		ID:                       "pklocator-prefetch-" + uuid.NewString(),
		TaskQueue:                cfg.Temporal.TaskQueue,
		WorkflowExecutionTimeout: cfg.Temporal.Interval,
	}
	input := workflows.PrefetchInput{Near: near, MaxLines: cfg.Locator.MaxCacheSize}

	run, err := c.ExecuteWorkflow(ctx, opts, workflows.PrefetchWorkflow, input)
	if err != nil {
		slog.Error("start prefetch workflow", "error", err)
		return
	}
	slog.Info("prefetch workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "near", near != nil)
}

// lastPosition remembers the most recent located position seen on the
// snapshot stream.
type lastPosition struct {
	mu sync.Mutex
	pt *domain.GeoPoint
}

func (p *lastPosition) handle(msg *nats.Msg) {
	var snap domain.Snapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil || snap.Located == nil {
		return
	}
	p.mu.Lock()
	p.pt = &domain.GeoPoint{Lat: snap.Located.Lat, Lon: snap.Located.Lon}
	p.mu.Unlock()
}

func (p *lastPosition) get() *domain.GeoPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pt
}
