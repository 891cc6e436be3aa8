package sensor

import (
	"sync"
	"time"

	"parent-wellness/internal/models"

	"go.uber.org/zap"
)

// Inactivity rule: steps below LowActivitySteps for longer than InactivityWindow
const (
	LowActivitySteps = 1000
	InactivityWindow = 2 * time.Hour
)

// DayKey local calendar date key
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// StepsListener keeps daily and hourly step totals and raises inactivity alerts
type StepsListener struct {
	*listener

	stateMu    sync.Mutex
	daily      map[string]float64
	hourly     [24]float64
	today      string
	lastActive time.Time
	alerted    bool
}

// NewStepsListener creates an unstarted listener
func NewStepsListener(tracker Tracker, adapter Adapter, store ReadingStore, mirror StateMirror, opts Options, logger *zap.Logger) *StepsListener {
	return &StepsListener{
		listener: newListener(models.MetricSteps, tracker, adapter, store, mirror, opts, logger),
		daily:    make(map[string]float64),
	}
}

// Start registers with the tracker; the start time counts as the
// first active mark for inactivity
func (l *StepsListener) Start() error {
	now := l.now()
	l.stateMu.Lock()
	l.lastActive = now
	l.today = DayKey(now)
	l.stateMu.Unlock()
	return l.start(l)
}

func (l *StepsListener) OnDataReceived(points []DataPoint) {
	l.each(points, l.process)
}

func (l *StepsListener) process(p DataPoint) error {
	s, err := l.adapter.Steps(p)
	if err != nil {
		return err
	}
	if s.Value < 0 {
		l.logger.Debug("Dropping negative step count", zap.Float64("value", s.Value))
		return nil
	}

	now := l.now()
	at := s.Timestamp
	if at.IsZero() {
		at = now
	}
	at = at.In(l.loc)

	r := models.NewReading(l.userID, models.MetricSteps, s.Value, at)
	if err := l.record(r); err != nil {
		return err
	}

	alert, changed := l.accumulate(*r, at, now)
	if changed {
		l.setAlert(alert)
	}
	return nil
}

// accumulate updates totals and the inactivity state; changed reports
// whether the current alert must be replaced by alert
func (l *StepsListener) accumulate(r models.Reading, at, now time.Time) (models.Alert, bool) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.lastActive.IsZero() {
		l.lastActive = now
	}

	// 1. totals
	key := DayKey(at)
	l.daily[key] += r.Value
	if today := DayKey(now); today != l.today {
		l.hourly = [24]float64{}
		l.today = today
	}
	if key == l.today {
		l.hourly[at.Hour()] += r.Value
	}

	// 2. activity resumes: re-arm and clear
	if r.Value >= LowActivitySteps {
		l.lastActive = now
		if l.alerted {
			l.alerted = false
			return nil, true
		}
		return nil, false
	}

	// 3. inactive period: emit once
	inactive := now.Sub(l.lastActive)
	if inactive > InactivityWindow && !l.alerted {
		l.alerted = true
		return models.InactivityAlert{Reading: r, InactiveFor: inactive, Since: l.lastActive}, true
	}
	return nil, false
}

// DailyTotals copy of per-day step totals keyed by DayKey
func (l *StepsListener) DailyTotals() map[string]float64 {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	out := make(map[string]float64, len(l.daily))
	for k, v := range l.daily {
		out[k] = v
	}
	return out
}

// HourlyToday per-hour step totals of the current day
func (l *StepsListener) HourlyToday() [24]float64 {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.hourly
}

// LastActive time of the last reading at or above LowActivitySteps
func (l *StepsListener) LastActive() time.Time {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.lastActive
}
