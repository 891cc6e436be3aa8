package sensor

import (
	"context"
	"errors"
	"time"
)

// TrackerType vendor tracker kind
type TrackerType string

const (
	TrackerHeartRate TrackerType = "heart_rate"
	TrackerSteps     TrackerType = "steps"
)

// DataPoint one raw vendor data point; layout varies across SDK versions
type DataPoint map[string]interface{}

// EventListener receives tracker callbacks
type EventListener interface {
	OnDataReceived(points []DataPoint)
	OnFlushCompleted()
	OnError(err error)
}

// Tracker vendor sensor subscription
type Tracker interface {
	SetEventListener(l EventListener) error
	UnsetEventListener()
	// Flush asks the vendor to deliver buffered points now;
	// completion is reported through OnFlushCompleted
	Flush(ctx context.Context) error
}

var (
	ErrFlushTimeout   = errors.New("flush timed out")
	ErrListenerClosed = errors.New("listener closed")
)

// Clock wall clock used for resting and inactivity decisions
type Clock func() time.Time
