package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parent-wellness/internal/models"

	"go.uber.org/zap"
)

// Mirror publishes listener state for dashboards:
//
//	{prefix}{uid}:{metric}:latest  reading JSON
//	{prefix}{uid}:{metric}:alert   alert view JSON, deleted when cleared
type Mirror struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewMirror creates a mirror; prefix is e.g. "wellness:user:"
func NewMirror(kv KVStore, prefix string, ttl time.Duration, logger *zap.Logger) *Mirror {
	return &Mirror{kv: kv, prefix: prefix, ttl: ttl, logger: logger}
}

func (m *Mirror) key(uid string, metric models.Metric, kind string) string {
	return fmt.Sprintf("%s%s:%s:%s", m.prefix, uid, metric, kind)
}

// PutLatest stores the most recent reading of its metric
func (m *Mirror) PutLatest(ctx context.Context, r models.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	key := m.key(r.UserID, r.Metric, "latest")
	if err := m.kv.Set(ctx, key, string(data), m.ttl); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// PutAlert stores the current alert; nil clears it
func (m *Mirror) PutAlert(ctx context.Context, uid string, metric models.Metric, alert models.Alert) error {
	key := m.key(uid, metric, "alert")
	view := models.ViewOf(alert)
	if view == nil {
		if err := m.kv.Del(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
		return nil
	}

	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := m.kv.Set(ctx, key, string(data), m.ttl); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	m.logger.Debug("Mirrored current alert",
		zap.String("user_id", uid),
		zap.String("metric", string(metric)),
		zap.String("kind", string(view.Kind)),
	)
	return nil
}

// Live latest reading and current alert of one metric; both may be nil
type Live struct {
	Metric models.Metric     `json:"metric"`
	Latest *models.Reading   `json:"latest"`
	Alert  *models.AlertView `json:"alert"`
}

// GetLive reads back the mirrored state
func (m *Mirror) GetLive(ctx context.Context, uid string, metric models.Metric) (*Live, error) {
	live := &Live{Metric: metric}

	raw, err := m.kv.Get(ctx, m.key(uid, metric, "latest"))
	switch {
	case err == nil:
		var r models.Reading
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to decode latest reading: %w", err)
		}
		live.Latest = &r
	case !errors.Is(err, ErrCacheMiss):
		return nil, err
	}

	raw, err = m.kv.Get(ctx, m.key(uid, metric, "alert"))
	switch {
	case err == nil:
		var v models.AlertView
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		live.Alert = &v
	case !errors.Is(err, ErrCacheMiss):
		return nil, err
	}

	return live, nil
}
