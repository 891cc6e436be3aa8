package trigger

import (
	"fmt"

	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
)

// Static thresholds applied to synced health data
const (
	HeartRateHigh = 100.0
	HeartRateLow  = 50.0

	SystolicHigh  = 140.0
	DiastolicHigh = 90.0
	SystolicLow   = 90.0
	DiastolicLow  = 60.0

	BloodSugarHigh = 180.0
	BloodSugarLow  = 70.0
)

// Measurement the values of one health-data document
type Measurement struct {
	ReadingID string
	UserID    string
	Metric    models.Metric
	Value     float64
	Secondary *float64
	Timestamp int64
}

// ParseMeasurement reads a healthData document
func ParseMeasurement(uid, readingID string, data docstore.Document) (*Measurement, error) {
	metric, err := models.ParseMetric(models.String(data["type"]))
	if err != nil {
		return nil, err
	}
	m := &Measurement{ReadingID: readingID, UserID: uid, Metric: metric}
	if v, ok := models.Float(data["timestamp"]); ok {
		m.Timestamp = int64(v)
	}

	if metric == models.MetricBloodPressure {
		sys, ok := models.Float(data["systolic"])
		if !ok {
			return nil, fmt.Errorf("blood pressure document %s has no systolic value", readingID)
		}
		dia, ok := models.Float(data["diastolic"])
		if !ok {
			return nil, fmt.Errorf("blood pressure document %s has no diastolic value", readingID)
		}
		m.Value = sys
		m.Secondary = &dia
		return m, nil
	}

	v, ok := models.Float(data["value"])
	if !ok {
		return nil, fmt.Errorf("%s document %s has no value", metric, readingID)
	}
	m.Value = v
	return m, nil
}

// Evaluate returns the alert type crossed by m, or "" when in range.
// Steps have no threshold.
func Evaluate(m *Measurement) string {
	switch m.Metric {
	case models.MetricHeartRate:
		if m.Value > HeartRateHigh {
			return models.AlertTypeHighHeartRate
		}
		if m.Value < HeartRateLow {
			return models.AlertTypeLowHeartRate
		}
	case models.MetricBloodPressure:
		dia := 0.0
		if m.Secondary != nil {
			dia = *m.Secondary
		}
		if m.Value > SystolicHigh || dia > DiastolicHigh {
			return models.AlertTypeHighBloodPressure
		}
		if m.Value < SystolicLow || dia < DiastolicLow {
			return models.AlertTypeLowBloodPressure
		}
	case models.MetricBloodSugar:
		if m.Value > BloodSugarHigh {
			return models.AlertTypeHighBloodSugar
		}
		if m.Value < BloodSugarLow {
			return models.AlertTypeLowBloodSugar
		}
	}
	return ""
}

// AlertID deterministic per reading and type
func AlertID(readingID, alertType string) string {
	return readingID + "_" + alertType
}
