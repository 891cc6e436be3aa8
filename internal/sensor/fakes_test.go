package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	commonmqtt "parent-wellness/common/mqtt"
	"parent-wellness/internal/models"
)

type fakeTracker struct {
	mu         sync.Mutex
	listener   EventListener
	unsetCalls int
	flushes    int
	flushErr   error
	onFlush    func(l EventListener)
}

func (f *fakeTracker) SetEventListener(l EventListener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
	return nil
}

func (f *fakeTracker) UnsetEventListener() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = nil
	f.unsetCalls++
}

func (f *fakeTracker) Flush(ctx context.Context) error {
	f.mu.Lock()
	f.flushes++
	l, hook, err := f.listener, f.onFlush, f.flushErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		go hook(l)
	}
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	readings []*models.Reading
	err      error
	panics   bool
}

func (s *fakeStore) Insert(ctx context.Context, r *models.Reading) error {
	if s.panics {
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, r)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

type fakeMirror struct {
	mu     sync.Mutex
	latest []models.Reading
	alerts []models.Alert
}

func (m *fakeMirror) PutLatest(ctx context.Context, r models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = append(m.latest, r)
	return nil
}

func (m *fakeMirror) PutAlert(ctx context.Context, uid string, metric models.Metric, a models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakePubSub struct {
	mu        sync.Mutex
	handlers  map[string]commonmqtt.MessageHandler
	published map[string][][]byte
	subErr    error
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{
		handlers:  make(map[string]commonmqtt.MessageHandler),
		published: make(map[string][][]byte),
	}
}

func (f *fakePubSub) Subscribe(topic string, qos byte, handler commonmqtt.MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakePubSub) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return nil
}

func (f *fakePubSub) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakePubSub) deliver(topic string, payload []byte) error {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return errors.New("no subscriber for " + topic)
	}
	return h(topic, payload)
}
