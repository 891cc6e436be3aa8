package models

import "time"

// AlertKind discriminates client-side alerts
type AlertKind string

const (
	AlertLowHeartRate  AlertKind = "low_heart_rate"
	AlertHighHeartRate AlertKind = "high_heart_rate"
	AlertInactivity    AlertKind = "inactivity"
)

// Alert is the "current alert" a listener holds; nil means none
type Alert interface {
	Kind() AlertKind
	Trigger() Reading
}

// LowHeartRate heart rate below the resting floor
type LowHeartRate struct {
	Reading Reading `json:"reading"`
}

func (a LowHeartRate) Kind() AlertKind  { return AlertLowHeartRate }
func (a LowHeartRate) Trigger() Reading { return a.Reading }

// HighHeartRate heart rate above the resting or active ceiling
type HighHeartRate struct {
	Reading Reading `json:"reading"`
}

func (a HighHeartRate) Kind() AlertKind  { return AlertHighHeartRate }
func (a HighHeartRate) Trigger() Reading { return a.Reading }

// InactivityAlert step count stayed low for too long
type InactivityAlert struct {
	Reading     Reading       `json:"reading"`
	InactiveFor time.Duration `json:"inactive_for"`
	Since       time.Time     `json:"since"`
}

func (a InactivityAlert) Kind() AlertKind  { return AlertInactivity }
func (a InactivityAlert) Trigger() Reading { return a.Reading }

// AlertView flattens an Alert for JSON consumers (cache, API)
type AlertView struct {
	Kind               AlertKind `json:"kind"`
	Reading            Reading   `json:"reading"`
	InactiveForMinutes *int      `json:"inactive_for_minutes,omitempty"`
}

// ViewOf returns nil for a nil alert
func ViewOf(a Alert) *AlertView {
	if a == nil {
		return nil
	}
	v := &AlertView{Kind: a.Kind(), Reading: a.Trigger()}
	if ia, ok := a.(InactivityAlert); ok {
		m := int(ia.InactiveFor / time.Minute)
		v.InactiveForMinutes = &m
	}
	return v
}

// Server-side alert types stored in users/{uid}/alerts
const (
	AlertTypeHighHeartRate     = "high_heart_rate"
	AlertTypeLowHeartRate      = "low_heart_rate"
	AlertTypeHighBloodPressure = "high_blood_pressure"
	AlertTypeLowBloodPressure  = "low_blood_pressure"
	AlertTypeHighBloodSugar    = "high_blood_sugar"
	AlertTypeLowBloodSugar     = "low_blood_sugar"
)

// AlertDocument persisted alert, produced only by the trigger
type AlertDocument struct {
	ID         string   `json:"id"`
	UserID     string   `json:"userId"`
	Type       string   `json:"type"`
	MetricName string   `json:"metricName"`
	Value      float64  `json:"value"`
	Secondary  *float64 `json:"secondary,omitempty"`
	ReadingID  string   `json:"readingId"`
	Timestamp  int64    `json:"timestamp"`
	Read       bool     `json:"read"`
	CreatedAt  int64    `json:"createdAt"`
}

// Fields document form
func (a *AlertDocument) Fields() map[string]interface{} {
	doc := map[string]interface{}{
		"id":         a.ID,
		"userId":     a.UserID,
		"type":       a.Type,
		"metricName": a.MetricName,
		"value":      a.Value,
		"readingId":  a.ReadingID,
		"timestamp":  a.Timestamp,
		"read":       a.Read,
		"createdAt":  a.CreatedAt,
	}
	if a.Secondary != nil {
		doc["secondary"] = *a.Secondary
	}
	return doc
}

// AlertFromFields reverses Fields
func AlertFromFields(id string, f map[string]interface{}) AlertDocument {
	a := AlertDocument{
		ID:         id,
		UserID:     String(f["userId"]),
		Type:       String(f["type"]),
		MetricName: String(f["metricName"]),
		ReadingID:  String(f["readingId"]),
		Read:       Bool(f["read"]),
	}
	a.Value, _ = Float(f["value"])
	if v, ok := Float(f["secondary"]); ok {
		a.Secondary = &v
	}
	if v, ok := Float(f["timestamp"]); ok {
		a.Timestamp = int64(v)
	}
	if v, ok := Float(f["createdAt"]); ok {
		a.CreatedAt = int64(v)
	}
	return a
}
