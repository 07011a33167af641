package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"galleria/internal/files"
	"galleria/internal/observability/metrics"
	"galleria/internal/storage"
)

type orphanSweepConfig struct {
	Logger   *slog.Logger
	Store    storage.Repository
	Files    *files.Manager
	Metrics  *metrics.Recorder
	Interval time.Duration
	MinAge   time.Duration
}

type sweepTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) sweepTicker

// startOrphanSweepWorker periodically removes uploaded files that no record
// references anymore. The returned function stops the worker and may be
// called more than once.
func startOrphanSweepWorker(ctx context.Context, cfg orphanSweepConfig) func() {
	return startOrphanSweepWorkerWithTicker(ctx, cfg, func(d time.Duration) sweepTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startOrphanSweepWorkerWithTicker(ctx context.Context, cfg orphanSweepConfig, newTicker tickerFactory) func() {
	if cfg.Store == nil || cfg.Files == nil || cfg.Interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(cfg.Interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				runOrphanSweep(workerCtx, cfg)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func runOrphanSweep(ctx context.Context, cfg orphanSweepConfig) {
	removed, err := cfg.Files.Sweep(ctx, cfg.Store.ReferencedFiles(), cfg.MinAge)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Error("orphan sweep failed", "error", err)
		}
		return
	}
	if cfg.Metrics != nil {
		cfg.Metrics.AddOrphansSwept(removed)
	}
	if removed > 0 && cfg.Logger != nil {
		cfg.Logger.Info("orphan sweep removed files", "count", removed)
	}
}
