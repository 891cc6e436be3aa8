package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metric health metric kind; also the cloud "type" tag
type Metric string

const (
	MetricHeartRate     Metric = "heart_rate"
	MetricBloodPressure Metric = "blood_pressure"
	MetricBloodSugar    Metric = "blood_sugar"
	MetricSteps         Metric = "steps"
)

// AllMetrics in table order
var AllMetrics = []Metric{MetricHeartRate, MetricBloodPressure, MetricBloodSugar, MetricSteps}

// Valid reports whether m is a known metric
func (m Metric) Valid() bool {
	switch m {
	case MetricHeartRate, MetricBloodPressure, MetricBloodSugar, MetricSteps:
		return true
	}
	return false
}

// ParseMetric parses a metric name
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown metric: %q", s)
	}
	return m, nil
}

// SyncStatus propagation state of a reading
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncSyncing SyncStatus = "SYNCING"
	SyncSynced  SyncStatus = "SYNCED"
	SyncFailed  SyncStatus = "FAILED"
)

// Eligible reports whether the sync worker should (re)attempt the row.
// FAILED rows are retried on the next run.
func (s SyncStatus) Eligible() bool {
	return s == SyncPending || s == SyncFailed
}

// Accuracy levels reported by the watch (0..3)
const (
	AccuracyNoData = 0
	AccuracyLow    = 1
	AccuracyMedium = 2
	AccuracyHigh   = 3
)

// Reading one timestamped measurement of one metric for one user.
// Value is bpm, systolic mmHg, mg/dL or step count depending on Metric.
// Secondary is the diastolic value for blood pressure.
type Reading struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Metric          Metric     `json:"metric"`
	Value           float64    `json:"value"`
	Secondary       *float64   `json:"secondary,omitempty"`
	Accuracy        *int       `json:"accuracy,omitempty"`
	Timestamp       int64      `json:"timestamp"` // epoch ms
	Situation       string     `json:"situation,omitempty"`
	SyncStatus      SyncStatus `json:"sync_status"`
	LastSyncAttempt *int64     `json:"last_sync_attempt,omitempty"` // epoch ms
}

// NewReading creates a PENDING reading with a fresh id
func NewReading(userID string, metric Metric, value float64, at time.Time) *Reading {
	return &Reading{
		ID:         uuid.New().String(),
		UserID:     userID,
		Metric:     metric,
		Value:      value,
		Timestamp:  at.UnixMilli(),
		SyncStatus: SyncPending,
	}
}

// Time returns the capture time
func (r *Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

var ErrInvalidReading = errors.New("invalid reading")

// Validate checks the fields required to store the reading
func (r *Reading) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidReading)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidReading)
	}
	if !r.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidReading, r.Metric)
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidReading)
	}
	if r.Value < 0 {
		return fmt.Errorf("%w: value must not be negative", ErrInvalidReading)
	}
	if r.Metric == MetricBloodPressure {
		if r.Secondary == nil {
			return fmt.Errorf("%w: diastolic is required for blood pressure", ErrInvalidReading)
		}
		if *r.Secondary < 0 {
			return fmt.Errorf("%w: diastolic must not be negative", ErrInvalidReading)
		}
	}
	if r.Accuracy != nil && (*r.Accuracy < AccuracyNoData || *r.Accuracy > AccuracyHigh) {
		return fmt.Errorf("%w: accuracy out of range", ErrInvalidReading)
	}
	return nil
}

// CloudDocument is the flat key-value document written under
// users/{userId}/healthData/{id}
func (r *Reading) CloudDocument() map[string]interface{} {
	doc := map[string]interface{}{
		"id":        r.ID,
		"userId":    r.UserID,
		"type":      string(r.Metric),
		"timestamp": r.Timestamp,
	}
	switch r.Metric {
	case MetricBloodPressure:
		doc["systolic"] = r.Value
		if r.Secondary != nil {
			doc["diastolic"] = *r.Secondary
		}
	default:
		doc["value"] = r.Value
	}
	if r.Situation != "" {
		doc["situation"] = r.Situation
	}
	if r.Accuracy != nil {
		doc["accuracy"] = *r.Accuracy
	}
	return doc
}

// IntPtr helper for optional int fields
func IntPtr(i int) *int { return &i }

// FloatPtr helper for optional float fields
func FloatPtr(f float64) *float64 { return &f }
