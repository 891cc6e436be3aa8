package sensor

import (
	"time"

	"parent-wellness/internal/models"

	"go.uber.org/zap"
)

// Heart rate thresholds in bpm
const (
	RestingLowBPM  = 50
	RestingHighBPM = 90
	ActiveHighBPM  = 120

	// alerts need at least medium accuracy
	MinAlertAccuracy = models.AccuracyMedium
)

// Situation tags
const (
	SituationResting = "resting"
	SituationActive  = "active"
)

// IsResting resting hours are before 07:00 and after 22:00 wall clock
func IsResting(t time.Time) bool {
	h := t.Hour()
	return h < 7 || h > 22
}

// ClassifyHeartRate returns the alert for bpm, nil when normal
func ClassifyHeartRate(r models.Reading, resting bool) models.Alert {
	if resting {
		switch {
		case r.Value < RestingLowBPM:
			return models.LowHeartRate{Reading: r}
		case r.Value > RestingHighBPM:
			return models.HighHeartRate{Reading: r}
		}
		return nil
	}
	if r.Value > ActiveHighBPM {
		return models.HighHeartRate{Reading: r}
	}
	return nil
}

// HeartRateListener turns heart rate data points into readings and alerts
type HeartRateListener struct {
	*listener
}

// NewHeartRateListener creates an unstarted listener
func NewHeartRateListener(tracker Tracker, adapter Adapter, store ReadingStore, mirror StateMirror, opts Options, logger *zap.Logger) *HeartRateListener {
	return &HeartRateListener{
		listener: newListener(models.MetricHeartRate, tracker, adapter, store, mirror, opts, logger),
	}
}

// Start registers with the tracker
func (l *HeartRateListener) Start() error {
	return l.start(l)
}

func (l *HeartRateListener) OnDataReceived(points []DataPoint) {
	l.each(points, l.process)
}

func (l *HeartRateListener) process(p DataPoint) error {
	s, err := l.adapter.HeartRate(p)
	if err != nil {
		return err
	}

	// 1. validity
	if s.Value <= 0 {
		l.logger.Debug("Dropping non-positive heart rate", zap.Float64("value", s.Value))
		return nil
	}

	// 2. build reading
	now := l.now()
	at := s.Timestamp
	if at.IsZero() {
		at = now
	}
	resting := IsResting(now)

	r := models.NewReading(l.userID, models.MetricHeartRate, s.Value, at)
	r.Accuracy = s.Accuracy
	r.Situation = SituationActive
	if resting {
		r.Situation = SituationResting
	}

	// 3. persist and publish
	if err := l.record(r); err != nil {
		return err
	}

	// 4. classify; low-accuracy readings leave the current alert as is
	if r.Accuracy == nil || *r.Accuracy < MinAlertAccuracy {
		return nil
	}
	l.setAlert(ClassifyHeartRate(*r, resting))
	return nil
}
