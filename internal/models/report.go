package models

// MetricSummary count/avg/min/max/last over a window; all zero when empty
type MetricSummary struct {
	Count     int     `json:"count"`
	Avg       float64 `json:"avg"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	LastValue float64 `json:"lastValue"`
}

// Summarize values ordered by time (last element is the latest)
func Summarize(values []float64) MetricSummary {
	if len(values) == 0 {
		return MetricSummary{}
	}
	s := MetricSummary{
		Count:     len(values),
		Min:       values[0],
		Max:       values[0],
		LastValue: values[len(values)-1],
	}
	var sum float64
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Avg = sum / float64(len(values))
	return s
}

// Fields document form
func (s MetricSummary) Fields() map[string]interface{} {
	return map[string]interface{}{
		"count":     s.Count,
		"avg":       s.Avg,
		"min":       s.Min,
		"max":       s.Max,
		"lastValue": s.LastValue,
	}
}

// SummaryFromFields reverses Fields
func SummaryFromFields(f map[string]interface{}) MetricSummary {
	var s MetricSummary
	if f == nil {
		return s
	}
	if v, ok := Float(f["count"]); ok {
		s.Count = int(v)
	}
	s.Avg, _ = Float(f["avg"])
	s.Min, _ = Float(f["min"])
	s.Max, _ = Float(f["max"])
	s.LastValue, _ = Float(f["lastValue"])
	return s
}

// WeeklyReport stored at users/{uid}/reports/{id}
type WeeklyReport struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	PeriodStart int64         `json:"periodStart"` // epoch ms
	PeriodEnd   int64         `json:"periodEnd"`   // epoch ms
	CreatedAt   int64         `json:"createdAt"`
	HeartRate   MetricSummary `json:"heartRate"`
	Systolic    MetricSummary `json:"systolic"`
	Diastolic   MetricSummary `json:"diastolic"`
	BloodSugar  MetricSummary `json:"bloodSugar"`
	Steps       MetricSummary `json:"steps"`
}

// Fields document form
func (r *WeeklyReport) Fields() map[string]interface{} {
	return map[string]interface{}{
		"id":          r.ID,
		"userId":      r.UserID,
		"periodStart": r.PeriodStart,
		"periodEnd":   r.PeriodEnd,
		"createdAt":   r.CreatedAt,
		"heartRate":   r.HeartRate.Fields(),
		"bloodPressure": map[string]interface{}{
			"systolic":  r.Systolic.Fields(),
			"diastolic": r.Diastolic.Fields(),
		},
		"bloodSugar": r.BloodSugar.Fields(),
		"steps":      r.Steps.Fields(),
	}
}

// ReportFromFields reverses Fields
func ReportFromFields(id string, f map[string]interface{}) WeeklyReport {
	r := WeeklyReport{ID: id, UserID: String(f["userId"])}
	if v, ok := Float(f["periodStart"]); ok {
		r.PeriodStart = int64(v)
	}
	if v, ok := Float(f["periodEnd"]); ok {
		r.PeriodEnd = int64(v)
	}
	if v, ok := Float(f["createdAt"]); ok {
		r.CreatedAt = int64(v)
	}
	sub := func(m map[string]interface{}, key string) map[string]interface{} {
		v, _ := m[key].(map[string]interface{})
		return v
	}
	r.HeartRate = SummaryFromFields(sub(f, "heartRate"))
	bp := sub(f, "bloodPressure")
	r.Systolic = SummaryFromFields(sub(bp, "systolic"))
	r.Diastolic = SummaryFromFields(sub(bp, "diastolic"))
	r.BloodSugar = SummaryFromFields(sub(f, "bloodSugar"))
	r.Steps = SummaryFromFields(sub(f, "steps"))
	return r
}
