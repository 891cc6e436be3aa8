package worker

import (
	"context"
	"errors"
	"time"

	"parent-wellness/internal/scheduler"
	"parent-wellness/internal/sensor"

	"go.uber.org/zap"
)

// FlushWorker periodically refreshes every listener
type FlushWorker struct {
	listeners []Refresher
	timeout   time.Duration
	logger    *zap.Logger
}

func NewFlushWorker(listeners []Refresher, timeout time.Duration, logger *zap.Logger) *FlushWorker {
	return &FlushWorker{listeners: listeners, timeout: timeout, logger: logger}
}

// DoWork retries when any listener timed out
func (w *FlushWorker) DoWork(ctx context.Context) scheduler.Result {
	result := scheduler.Success
	for _, l := range w.listeners {
		err := l.Refresh(ctx, w.timeout)
		switch {
		case err == nil:
		case errors.Is(err, sensor.ErrFlushTimeout):
			w.logger.Warn("Listener flush timed out", zap.String("metric", string(l.Metric())))
			result = scheduler.Retry
		case errors.Is(err, sensor.ErrListenerClosed):
			w.logger.Debug("Skipping closed listener", zap.String("metric", string(l.Metric())))
		default:
			w.logger.Warn("Listener flush failed", zap.String("metric", string(l.Metric())), zap.Error(err))
			result = scheduler.Retry
		}
	}
	return result
}
