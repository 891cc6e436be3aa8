package sensor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"parent-wellness/internal/models"
)

// ErrUnrecognizedShape base error of UnrecognizedShapeError
var ErrUnrecognizedShape = errors.New("unrecognized data point shape")

// UnrecognizedShapeError the adapter could not find a value in the point
type UnrecognizedShapeError struct {
	Shape string
	Keys  []string
}

func (e *UnrecognizedShapeError) Error() string {
	return fmt.Sprintf("%s: adapter %q, keys [%s]", ErrUnrecognizedShape, e.Shape, strings.Join(e.Keys, ", "))
}

func (e *UnrecognizedShapeError) Unwrap() error { return ErrUnrecognizedShape }

func unrecognized(shape string, p DataPoint) error {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &UnrecognizedShapeError{Shape: shape, Keys: keys}
}

// Sample value extracted from one data point.
// Timestamp is zero when the point carries none.
type Sample struct {
	Value     float64
	Accuracy  *int
	Timestamp time.Time
}

// Adapter decodes data points of one known SDK shape
type Adapter interface {
	Shape() string
	HeartRate(p DataPoint) (Sample, error)
	Steps(p DataPoint) (Sample, error)
}

// Supported shapes
const (
	ShapeField      = "field"
	ShapeValueArray = "value_array"
	ShapeValueKey   = "value_key"
)

// NewAdapter returns the adapter for a configured shape
func NewAdapter(shape string) (Adapter, error) {
	switch shape {
	case ShapeField:
		return FieldAdapter{}, nil
	case ShapeValueArray:
		return ValueArrayAdapter{}, nil
	case ShapeValueKey:
		return ValueKeyAdapter{}, nil
	}
	return nil, fmt.Errorf("unknown sdk shape: %q", shape)
}

// FieldAdapter named keys: heartRate, heartRateStatus, steps, timestamp
type FieldAdapter struct{}

func (FieldAdapter) Shape() string { return ShapeField }

func (FieldAdapter) HeartRate(p DataPoint) (Sample, error) {
	v, ok := models.Float(p["heartRate"])
	if !ok {
		return Sample{}, unrecognized(ShapeField, p)
	}
	return Sample{Value: v, Accuracy: accuracyOf(p["heartRateStatus"]), Timestamp: timestampOf(p)}, nil
}

func (FieldAdapter) Steps(p DataPoint) (Sample, error) {
	v, ok := models.Float(p["steps"])
	if !ok {
		return Sample{}, unrecognized(ShapeField, p)
	}
	return Sample{Value: v, Timestamp: timestampOf(p)}, nil
}

// ValueArrayAdapter generic accessor: values[0] is the reading,
// values[1] the heart-rate status when present
type ValueArrayAdapter struct{}

func (ValueArrayAdapter) Shape() string { return ShapeValueArray }

func (ValueArrayAdapter) HeartRate(p DataPoint) (Sample, error) {
	values, ok := p["values"].([]interface{})
	if !ok || len(values) == 0 {
		return Sample{}, unrecognized(ShapeValueArray, p)
	}
	v, ok := models.Float(values[0])
	if !ok {
		return Sample{}, unrecognized(ShapeValueArray, p)
	}
	s := Sample{Value: v, Timestamp: timestampOf(p)}
	if len(values) > 1 {
		s.Accuracy = accuracyOf(values[1])
	}
	return s, nil
}

func (ValueArrayAdapter) Steps(p DataPoint) (Sample, error) {
	values, ok := p["values"].([]interface{})
	if !ok || len(values) == 0 {
		return Sample{}, unrecognized(ShapeValueArray, p)
	}
	v, ok := models.Float(values[0])
	if !ok {
		return Sample{}, unrecognized(ShapeValueArray, p)
	}
	return Sample{Value: v, Timestamp: timestampOf(p)}, nil
}

// ValueKeyAdapter getter style: value_keys{"HeartRateSet.HEART_RATE": 72, ...}
type ValueKeyAdapter struct{}

const (
	keyHeartRate       = "HeartRateSet.HEART_RATE"
	keyHeartRateStatus = "HeartRateSet.HEART_RATE_STATUS"
	keySteps           = "StepSet.STEPS"
)

func (ValueKeyAdapter) Shape() string { return ShapeValueKey }

func (ValueKeyAdapter) HeartRate(p DataPoint) (Sample, error) {
	keys, ok := p["value_keys"].(map[string]interface{})
	if !ok {
		return Sample{}, unrecognized(ShapeValueKey, p)
	}
	v, ok := models.Float(keys[keyHeartRate])
	if !ok {
		return Sample{}, unrecognized(ShapeValueKey, p)
	}
	return Sample{Value: v, Accuracy: accuracyOf(keys[keyHeartRateStatus]), Timestamp: timestampOf(p)}, nil
}

func (ValueKeyAdapter) Steps(p DataPoint) (Sample, error) {
	keys, ok := p["value_keys"].(map[string]interface{})
	if !ok {
		return Sample{}, unrecognized(ShapeValueKey, p)
	}
	v, ok := models.Float(keys[keySteps])
	if !ok {
		return Sample{}, unrecognized(ShapeValueKey, p)
	}
	return Sample{Value: v, Timestamp: timestampOf(p)}, nil
}

// accuracyOf nil when absent or outside 0..3
func accuracyOf(v interface{}) *int {
	f, ok := models.Float(v)
	if !ok {
		return nil
	}
	a := int(f)
	if a < models.AccuracyNoData || a > models.AccuracyHigh {
		return nil
	}
	return &a
}

func timestampOf(p DataPoint) time.Time {
	ms, ok := models.Float(p["timestamp"])
	if !ok || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}
