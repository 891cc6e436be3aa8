package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
	"parent-wellness/internal/scheduler"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReadingCache the local cache operations the sync needs
type ReadingCache interface {
	ListByStatus(ctx context.Context, metric models.Metric, statuses ...models.SyncStatus) ([]*models.Reading, error)
	UpdateSyncStatus(ctx context.Context, metric models.Metric, id string, status models.SyncStatus, attemptAt time.Time) error
	ResetStale(ctx context.Context, metric models.Metric, cutoff time.Time) (int64, error)
}

// Summary per-metric outcome of one sync run. Skipped rows could not be
// claimed and keep their previous status.
type Summary struct {
	Synced  map[models.Metric]int
	Failed  map[models.Metric]int
	Skipped map[models.Metric]int
}

type metricResult struct {
	synced, failed, skipped int
}

// Total synced and failed rows over all metrics
func (s Summary) Total() (synced, failed int) {
	for _, n := range s.Synced {
		synced += n
	}
	for _, n := range s.Failed {
		failed += n
	}
	return synced, failed
}

// SyncWorker moves PENDING and FAILED readings to the cloud store.
// Metrics sync concurrently; rows of one metric are sent one at a time.
type SyncWorker struct {
	cache      ReadingCache
	store      docstore.Store
	network    scheduler.NetworkMonitor
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewSyncWorker creates the worker; network may be nil to skip the check
func NewSyncWorker(cache ReadingCache, store docstore.Store, network scheduler.NetworkMonitor, staleAfter time.Duration, logger *zap.Logger) *SyncWorker {
	return &SyncWorker{
		cache:      cache,
		store:      store,
		network:    network,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// DoWork implements scheduler.Worker
func (w *SyncWorker) DoWork(ctx context.Context) scheduler.Result {
	if w.network != nil && !w.network.Available(ctx) {
		w.logger.Info("No network, sync deferred")
		return scheduler.Retry
	}

	summary, err := w.Sync(ctx)
	if err != nil {
		w.logger.Error("Sync run failed", zap.Error(err))
		return scheduler.Retry
	}

	synced, failed := summary.Total()
	skipped := 0
	for _, n := range summary.Skipped {
		skipped += n
	}
	w.logger.Info("Sync run completed",
		zap.Int("synced", synced),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
	return scheduler.Success
}

// Sync runs one pass over every metric table. Row failures are recorded
// as FAILED and do not fail the pass. A table error fails the pass but
// never stops the other tables; only ctx cancels them.
func (w *SyncWorker) Sync(ctx context.Context) (Summary, error) {
	summary := Summary{
		Synced:  make(map[models.Metric]int),
		Failed:  make(map[models.Metric]int),
		Skipped: make(map[models.Metric]int),
	}
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	for _, m := range models.AllMetrics {
		metric := m
		g.Go(func() error {
			res, err := w.syncMetric(ctx, metric)
			mu.Lock()
			defer mu.Unlock()
			summary.Synced[metric] = res.synced
			summary.Failed[metric] = res.failed
			summary.Skipped[metric] = res.skipped
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	g.Wait()

	if err := errors.Join(errs...); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

func (w *SyncWorker) syncMetric(ctx context.Context, metric models.Metric) (metricResult, error) {
	logger := w.logger.With(zap.String("metric", string(metric)))

	// 1. recover rows abandoned mid-sync
	if w.staleAfter > 0 {
		if _, err := w.cache.ResetStale(ctx, metric, w.now().Add(-w.staleAfter)); err != nil {
			return metricResult{}, fmt.Errorf("failed to reset stale %s rows: %w", metric, err)
		}
	}

	// 2. eligible rows
	rows, err := w.cache.ListByStatus(ctx, metric, models.SyncPending, models.SyncFailed)
	if err != nil {
		return metricResult{}, fmt.Errorf("failed to list %s rows: %w", metric, err)
	}
	if len(rows) == 0 {
		return metricResult{}, nil
	}

	// status updates must land even if the run is cancelled mid-row
	statusCtx := context.WithoutCancel(ctx)

	var res metricResult
	for _, r := range rows {
		if ctx.Err() != nil {
			logger.Info("Sync cancelled, remaining rows left for next run")
			break
		}

		if err := w.cache.UpdateSyncStatus(statusCtx, metric, r.ID, models.SyncSyncing, w.now()); err != nil {
			// row keeps its status and is picked up next run
			logger.Warn("Failed to mark row syncing", zap.String("reading_id", r.ID), zap.Error(err))
			res.skipped++
			continue
		}

		status := models.SyncSynced
		if err := w.store.Set(ctx, docstore.HealthDataPath(r.UserID, r.ID), r.CloudDocument()); err != nil {
			logger.Warn("Failed to write reading",
				zap.String("reading_id", r.ID),
				zap.String("user_id", r.UserID),
				zap.Error(err),
			)
			status = models.SyncFailed
		}

		if err := w.cache.UpdateSyncStatus(statusCtx, metric, r.ID, status, w.now()); err != nil {
			logger.Warn("Failed to record sync status", zap.String("reading_id", r.ID), zap.Error(err))
		}
		if status == models.SyncSynced {
			res.synced++
		} else {
			res.failed++
		}
	}

	logger.Debug("Metric synced",
		zap.Int("synced", res.synced),
		zap.Int("failed", res.failed),
		zap.Int("skipped", res.skipped),
	)
	return res, nil
}
