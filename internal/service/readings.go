package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parent-wellness/internal/models"
	"parent-wellness/internal/scheduler"
	"parent-wellness/internal/worker"
)

// ReadingCache the local cache operations the reading service uses
type ReadingCache interface {
	Insert(ctx context.Context, r *models.Reading) error
	ListByUser(ctx context.Context, metric models.Metric, userID string, from, to time.Time) ([]*models.Reading, error)
	WipeUser(ctx context.Context, userID string) (int64, error)
	CountByStatus(ctx context.Context, metric models.Metric) (map[models.SyncStatus]int, error)
}

// JobEnqueuer schedules one-time jobs
type JobEnqueuer interface {
	EnqueueUniqueOneTime(name string, policy scheduler.Policy, req scheduler.OneTimeRequest, w scheduler.Worker) (bool, error)
}

// ReadingService manual entry and local history
type ReadingService struct {
	cache  ReadingCache
	jobs   JobEnqueuer
	sync   scheduler.Worker
	now    func() time.Time
	logger *zap.Logger
}

// NewReadingService creates the service; sync is the worker enqueued after
// every manual entry
func NewReadingService(cache ReadingCache, jobs JobEnqueuer, sync scheduler.Worker, logger *zap.Logger) *ReadingService {
	return &ReadingService{
		cache:  cache,
		jobs:   jobs,
		sync:   sync,
		now:    time.Now,
		logger: logger,
	}
}

// RecordManual stores a user-entered reading as PENDING and requests an
// immediate sync
func (s *ReadingService) RecordManual(ctx context.Context, r *models.Reading) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = s.now().UnixMilli()
	}
	r.SyncStatus = models.SyncPending
	r.LastSyncAttempt = nil

	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := s.cache.Insert(ctx, r); err != nil {
		return fmt.Errorf("failed to store reading: %w", err)
	}

	_, err := s.jobs.EnqueueUniqueOneTime(worker.JobImmediateSync, scheduler.Replace, scheduler.OneTimeRequest{
		Constraints: scheduler.Constraints{RequiresNetwork: true},
	}, s.sync)
	if err != nil {
		// the periodic sync still picks the row up
		s.logger.Warn("Failed to enqueue immediate sync", zap.Error(err))
	}

	s.logger.Info("Manual reading recorded",
		zap.String("user_id", r.UserID),
		zap.String("metric", string(r.Metric)),
		zap.String("reading_id", r.ID),
	)
	return nil
}

// List readings of one metric, or of every metric when metric is empty,
// ordered by timestamp. Zero bounds are open.
func (s *ReadingService) List(ctx context.Context, userID string, metric models.Metric, from, to time.Time) ([]*models.Reading, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	metrics := models.AllMetrics
	if metric != "" {
		if !metric.Valid() {
			return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, metric)
		}
		metrics = []models.Metric{metric}
	}

	var out []*models.Reading
	for _, m := range metrics {
		readings, err := s.cache.ListByUser(ctx, m, userID, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, readings...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// WipeUser deletes every local reading of the user
func (s *ReadingService) WipeUser(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	n, err := s.cache.WipeUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Local readings wiped", zap.String("user_id", userID), zap.Int64("rows", n))
	return n, nil
}

// Backlog row counts per sync status of every metric table
func (s *ReadingService) Backlog(ctx context.Context) (map[models.Metric]map[models.SyncStatus]int, error) {
	out := make(map[models.Metric]map[models.SyncStatus]int, len(models.AllMetrics))
	for _, m := range models.AllMetrics {
		counts, err := s.cache.CountByStatus(ctx, m)
		if err != nil {
			return nil, err
		}
		out[m] = counts
	}
	return out, nil
}

// IsInvalid reports whether err is a caller error
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, models.ErrInvalidReading)
}
