package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parent-wellness/internal/models"
	"parent-wellness/internal/scheduler"

	"go.uber.org/zap"
)

// ConnectionState outcome of the vendor handshake
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateResolutionRequired
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateResolutionRequired:
		return "resolution_required"
	}
	return "disconnected"
}

var (
	ErrHandshakeTimeout   = errors.New("vendor handshake timed out")
	ErrResolutionRequired = errors.New("vendor service requires user resolution")
)

// Connector performs the vendor connection handshake
type Connector interface {
	Connect(ctx context.Context) (ConnectionState, string, error)
}

// ResolutionHandler is told when the vendor needs a foreground user action.
// It is injected by whoever owns the UI; the worker never prompts.
type ResolutionHandler interface {
	ResolutionRequired(ctx context.Context, err error)
}

// Refresher a listener that can be flushed
type Refresher interface {
	Metric() models.Metric
	Refresh(ctx context.Context, timeout time.Duration) error
}

// SensorSyncWorker handshake with the vendor service, flush the
// listeners, then run the regular sync
type SensorSyncWorker struct {
	connector        Connector
	handshakeTimeout time.Duration
	listeners        []Refresher
	flushTimeout     time.Duration
	sync             scheduler.Worker
	resolution       ResolutionHandler
	logger           *zap.Logger
}

// NewSensorSyncWorker creates the worker; resolution may be nil
func NewSensorSyncWorker(connector Connector, handshakeTimeout time.Duration, listeners []Refresher, flushTimeout time.Duration, sync scheduler.Worker, resolution ResolutionHandler, logger *zap.Logger) *SensorSyncWorker {
	return &SensorSyncWorker{
		connector:        connector,
		handshakeTimeout: handshakeTimeout,
		listeners:        listeners,
		flushTimeout:     flushTimeout,
		sync:             sync,
		resolution:       resolution,
		logger:           logger,
	}
}

// DoWork implements scheduler.Worker
func (w *SensorSyncWorker) DoWork(ctx context.Context) scheduler.Result {
	// 1. handshake, bounded
	hctx, cancel := context.WithTimeout(ctx, w.handshakeTimeout)
	state, reason, err := w.connector.Connect(hctx)
	cancel()

	if err != nil {
		if errors.Is(err, ErrHandshakeTimeout) || errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn("Vendor handshake timed out", zap.Duration("timeout", w.handshakeTimeout))
		} else {
			w.logger.Warn("Vendor handshake failed", zap.Error(err))
		}
		return scheduler.Retry
	}

	switch state {
	case StateResolutionRequired:
		// cannot resolve headless; give up for this run without failing rows
		rerr := fmt.Errorf("%w: %s", ErrResolutionRequired, reason)
		w.logger.Info("Vendor needs user resolution, skipping run", zap.String("reason", reason))
		if w.resolution != nil {
			w.resolution.ResolutionRequired(ctx, rerr)
		}
		return scheduler.Success
	case StateConnected:
	default:
		w.logger.Warn("Vendor not connected", zap.String("state", state.String()), zap.String("reason", reason))
		return scheduler.Retry
	}

	// 2. flush listeners; a slow tracker does not block the sync
	for _, l := range w.listeners {
		if err := l.Refresh(ctx, w.flushTimeout); err != nil {
			w.logger.Warn("Listener refresh failed",
				zap.String("metric", string(l.Metric())),
				zap.Error(err),
			)
		}
	}

	// 3. sync
	return w.sync.DoWork(ctx)
}
