package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/andrsadr/koravi/internal/observability/metrics"
)

// Warmer preloads frequently read data into the cache
type Warmer interface {
	Warm(ctx context.Context) error
}

// CacheWarmer refreshes the stats and the first page of clients on start
// and then on a cron schedule.
type CacheWarmer struct {
	warmer   Warmer
	logger   *slog.Logger
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
	runs     atomic.Int64
}

// NewCacheWarmer parses spec, a cron expression or descriptor such as
// "@every 5m". An empty spec warms only once at start.
func NewCacheWarmer(warmer Warmer, spec string, logger *slog.Logger) (*CacheWarmer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &CacheWarmer{
		warmer:  warmer,
		logger:  logger,
		spec:    spec,
		timeout: 30 * time.Second,
	}
	if spec != "" {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid cache warm schedule %q: %w", spec, err)
		}
		w.schedule = sched
	}
	return w, nil
}

// Start warms the cache immediately and then on schedule until ctx is done
func (w *CacheWarmer) Start(ctx context.Context) {
	w.RunOnce(ctx)

	if w.schedule == nil {
		w.logger.Info("cache warmer schedule disabled")
		<-ctx.Done()
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(w.schedule, cron.FuncJob(func() { w.RunOnce(ctx) }))
	c.Start()
	w.logger.Info("cache warmer started", slog.String("schedule", w.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info("cache warmer stopped")
}

// RunOnce performs a single warm-up
func (w *CacheWarmer) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := w.warmer.Warm(ctx)
	w.runs.Add(1)
	if err != nil {
		metrics.ObserveCacheWarm("error")
		w.logger.Warn("cache warming failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	metrics.ObserveCacheWarm("success")
	w.logger.Debug("cache warmed", slog.Duration("duration", time.Since(start)))
}

// Runs counts completed warm-ups
func (w *CacheWarmer) Runs() int64 {
	return w.runs.Load()
}
