package sensor

import (
	"context"
	"sync"

	"parent-wellness/internal/models"
)

// Update types
const (
	UpdateLatest = "latest"
	UpdateAlert  = "alert"
)

// Update one state change of a listener. Alert is nil when a condition clears.
type Update struct {
	Type   string            `json:"type"`
	Metric models.Metric     `json:"metric"`
	Latest *models.Reading   `json:"latest,omitempty"`
	Alert  *models.AlertView `json:"alert"`
}

// Watchable a listener whose state can be followed
type Watchable interface {
	Metric() models.Metric
	UserID() string
	LatestUpdates() (<-chan *models.Reading, func())
	AlertUpdates() (<-chan models.Alert, func())
}

// Feed fans in the state changes of the paired listeners for live views
type Feed struct {
	sources []Watchable
}

// NewFeed creates a feed over sources
func NewFeed(sources ...Watchable) *Feed {
	return &Feed{sources: sources}
}

// Subscribe streams the current state and every later change of userID's
// listeners. The channel is closed once ctx is done; a user without a
// paired watch gets a channel that only closes.
func (f *Feed) Subscribe(ctx context.Context, userID string) <-chan Update {
	out := make(chan Update, 8)
	var wg sync.WaitGroup

	for _, src := range f.sources {
		if src.UserID() != userID {
			continue
		}
		metric := src.Metric()

		latest, cancelLatest := src.LatestUpdates()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancelLatest()
			forward(ctx, latest, out, func(r *models.Reading) (Update, bool) {
				return Update{Type: UpdateLatest, Metric: metric, Latest: r}, r != nil
			})
		}()

		alerts, cancelAlerts := src.AlertUpdates()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancelAlerts()
			forward(ctx, alerts, out, func(a models.Alert) (Update, bool) {
				return Update{Type: UpdateAlert, Metric: metric, Alert: models.ViewOf(a)}, true
			})
		}()
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(out)
	}()
	return out
}

func forward[T any](ctx context.Context, in <-chan T, out chan<- Update, conv func(T) (Update, bool)) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-in:
			if !ok {
				return
			}
			u, send := conv(v)
			if !send {
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}
