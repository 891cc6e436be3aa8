package sensor

import (
	"sync"
	"sync/atomic"

	"parent-wellness/internal/models"
)

// DefaultHistorySize readings kept per listener
const DefaultHistorySize = 100

// History bounded copy-on-write list of recent readings.
// Readers never take the writer lock.
type History struct {
	mu    sync.Mutex
	size  int
	items atomic.Pointer[[]models.Reading]
}

// NewHistory keeps at most size readings (DefaultHistorySize if size <= 0)
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	h := &History{size: size}
	empty := []models.Reading{}
	h.items.Store(&empty)
	return h
}

// Add appends r, evicting the oldest entry when full
func (h *History) Add(r models.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := *h.items.Load()
	start := 0
	if len(old) >= h.size {
		start = len(old) - h.size + 1
	}
	next := make([]models.Reading, 0, h.size)
	next = append(next, old[start:]...)
	next = append(next, r)
	h.items.Store(&next)
}

// Snapshot oldest first; the returned slice is shared and must not be modified
func (h *History) Snapshot() []models.Reading {
	return *h.items.Load()
}

// Len number of readings held
func (h *History) Len() int {
	return len(*h.items.Load())
}
