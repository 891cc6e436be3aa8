package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"parent-wellness/internal/models"

	"go.uber.org/zap"
)

// ReadingStore receives every valid reading (the local cache)
type ReadingStore interface {
	Insert(ctx context.Context, r *models.Reading) error
}

// StateMirror receives listener state changes (the realtime cache)
type StateMirror interface {
	PutLatest(ctx context.Context, r models.Reading) error
	PutAlert(ctx context.Context, uid string, metric models.Metric, alert models.Alert) error
}

// Options common listener settings
type Options struct {
	UserID      string
	HistorySize int
	Clock       Clock          // defaults to time.Now
	Location    *time.Location // calendar for day keys and hours; defaults to time.Local
}

// Listener the operations a worker or API needs from a metric listener
type Listener interface {
	Metric() models.Metric
	Start() error
	Refresh(ctx context.Context, timeout time.Duration) error
	Cleanup()
	Latest() *models.Reading
	CurrentAlert() models.Alert
	History() []models.Reading
}

// listener shared plumbing of the metric listeners
type listener struct {
	metric  models.Metric
	userID  string
	adapter Adapter
	store   ReadingStore
	mirror  StateMirror
	clock   Clock
	loc     *time.Location
	logger  *zap.Logger

	latest  *Observable[*models.Reading]
	alert   *Observable[models.Alert]
	history *History

	mu        sync.Mutex
	tracker   Tracker
	flushDone chan struct{}
	closed    chan struct{}
}

func newListener(metric models.Metric, tracker Tracker, adapter Adapter, store ReadingStore, mirror StateMirror, opts Options, logger *zap.Logger) *listener {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &listener{
		metric:  metric,
		userID:  opts.UserID,
		adapter: adapter,
		store:   store,
		mirror:  mirror,
		clock:   clock,
		loc:     loc,
		logger:  logger.With(zap.String("metric", string(metric)), zap.String("user_id", opts.UserID)),
		latest:  NewObservable[*models.Reading](nil),
		alert:   NewObservable[models.Alert](nil),
		history: NewHistory(opts.HistorySize),
		tracker: tracker,
		closed:  make(chan struct{}),
	}
}

func (l *listener) Metric() models.Metric { return l.metric }

// UserID owner of the paired watch
func (l *listener) UserID() string { return l.userID }

// Latest most recent valid reading, nil before the first one
func (l *listener) Latest() *models.Reading { return l.latest.Value() }

// CurrentAlert nil when no condition holds
func (l *listener) CurrentAlert() models.Alert { return l.alert.Value() }

// History recent readings, oldest first
func (l *listener) History() []models.Reading { return l.history.Snapshot() }

// LatestUpdates subscribe to latest reading changes
func (l *listener) LatestUpdates() (<-chan *models.Reading, func()) { return l.latest.Subscribe() }

// AlertUpdates subscribe to current alert changes
func (l *listener) AlertUpdates() (<-chan models.Alert, func()) { return l.alert.Subscribe() }

func (l *listener) start(el EventListener) error {
	l.mu.Lock()
	t := l.tracker
	l.mu.Unlock()
	if t == nil {
		return ErrListenerClosed
	}
	if err := t.SetEventListener(el); err != nil {
		return fmt.Errorf("failed to register %s listener: %w", l.metric, err)
	}
	l.logger.Info("Listener started")
	return nil
}

// Refresh requests a flush and waits for the tracker to report completion.
// Concurrent callers share one pending flush.
func (l *listener) Refresh(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	if l.tracker == nil {
		l.mu.Unlock()
		return ErrListenerClosed
	}
	tracker := l.tracker
	done := l.flushDone
	first := done == nil
	if first {
		done = make(chan struct{})
		l.flushDone = done
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if first {
		if err := tracker.Flush(ctx); err != nil {
			l.mu.Lock()
			if l.flushDone == done {
				l.flushDone = nil
			}
			l.mu.Unlock()
			return fmt.Errorf("failed to flush %s tracker: %w", l.metric, err)
		}
	}

	select {
	case <-done:
		return nil
	case <-l.closed:
		return ErrListenerClosed
	case <-ctx.Done():
		l.mu.Lock()
		if l.flushDone == done {
			l.flushDone = nil
		}
		l.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrFlushTimeout
		}
		return ctx.Err()
	}
}

func (l *listener) OnFlushCompleted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flushDone != nil {
		close(l.flushDone)
		l.flushDone = nil
	}
	l.logger.Debug("Flush completed")
}

func (l *listener) OnError(err error) {
	l.logger.Warn("Tracker error", zap.Error(err))
}

// Cleanup unregisters from the tracker and forgets it; safe to call repeatedly
func (l *listener) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tracker == nil {
		return
	}
	l.tracker.UnsetEventListener()
	l.tracker = nil
	l.flushDone = nil
	close(l.closed)
	l.logger.Info("Listener cleaned up")
}

func (l *listener) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// each runs fn per point; failures and panics skip only that point
func (l *listener) each(points []DataPoint, fn func(DataPoint) error) {
	if l.isClosed() {
		return
	}
	for i, p := range points {
		if err := l.safely(p, fn); err != nil {
			l.logger.Warn("Skipping data point", zap.Int("index", i), zap.Error(err))
		}
	}
}

func (l *listener) safely(p DataPoint, fn func(DataPoint) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing data point: %v", r)
		}
	}()
	return fn(p)
}

// record persists r and publishes it as latest
func (l *listener) record(r *models.Reading) error {
	ctx := context.Background()
	if err := l.store.Insert(ctx, r); err != nil {
		return fmt.Errorf("failed to cache reading: %w", err)
	}

	l.history.Add(*r)
	l.latest.Set(r)

	if l.mirror != nil {
		if err := l.mirror.PutLatest(ctx, *r); err != nil {
			l.logger.Warn("Failed to mirror latest reading", zap.Error(err))
		}
	}
	return nil
}

func (l *listener) setAlert(a models.Alert) {
	prev := l.alert.Value()
	l.alert.Set(a)

	if prev == nil && a != nil {
		l.logger.Info("Alert raised",
			zap.String("kind", string(a.Kind())),
			zap.Float64("value", a.Trigger().Value),
		)
	} else if prev != nil && a == nil {
		l.logger.Info("Alert cleared", zap.String("kind", string(prev.Kind())))
	}

	if l.mirror != nil {
		if err := l.mirror.PutAlert(context.Background(), l.userID, l.metric, a); err != nil {
			l.logger.Warn("Failed to mirror alert", zap.Error(err))
		}
	}
}

func (l *listener) now() time.Time {
	return l.clock().In(l.loc)
}
