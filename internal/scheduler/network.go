package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PingMonitor NetworkMonitor that considers the network up when ping succeeds
// within timeout. Transitions are logged once.
type PingMonitor struct {
	ping    func(ctx context.Context) error
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	last *bool
}

// NewPingMonitor wraps a ping func (e.g. the cloud store Ping)
func NewPingMonitor(ping func(ctx context.Context) error, timeout time.Duration, logger *zap.Logger) *PingMonitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingMonitor{ping: ping, timeout: timeout, logger: logger}
}

func (m *PingMonitor) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.ping(ctx)
	up := err == nil

	m.mu.Lock()
	changed := m.last == nil || *m.last != up
	m.last = &up
	m.mu.Unlock()

	if changed {
		if up {
			m.logger.Info("Network available")
		} else {
			m.logger.Warn("Network unavailable", zap.Error(err))
		}
	}
	return up
}
