package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parent-wellness/common/config"
	"parent-wellness/common/database"
	"parent-wellness/internal/docstore"
	"parent-wellness/internal/localcache"
	"parent-wellness/internal/models"
	"parent-wellness/internal/push"
	"parent-wellness/internal/scheduler"
	"parent-wellness/internal/sensor"
)

func newTestCache(t *testing.T) *localcache.Cache {
	t.Helper()
	db, err := database.NewSQLiteDB(&config.SQLiteConfig{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache, err := localcache.New(context.Background(), db, zap.NewNop())
	require.NoError(t, err)
	return cache
}

type enqueued struct {
	name   string
	policy scheduler.Policy
	req    scheduler.OneTimeRequest
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

func (e *recordingEnqueuer) EnqueueUniqueOneTime(name string, policy scheduler.Policy, req scheduler.OneTimeRequest, _ scheduler.Worker) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return false, e.err
	}
	e.jobs = append(e.jobs, enqueued{name: name, policy: policy, req: req})
	return true, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []push.Message
}

func (s *fakeSender) Send(_ context.Context, msg push.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) messages() []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]push.Message(nil), s.sent...)
}

// watchTracker delivers points synchronously to the registered listener
type watchTracker struct {
	mu       sync.Mutex
	listener sensor.EventListener
}

func (w *watchTracker) SetEventListener(l sensor.EventListener) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listener = l
	return nil
}

func (w *watchTracker) UnsetEventListener() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listener = nil
}

func (w *watchTracker) Flush(context.Context) error {
	w.mu.Lock()
	l := w.listener
	w.mu.Unlock()
	if l != nil {
		go l.OnFlushCompleted()
	}
	return nil
}

func (w *watchTracker) emit(points ...sensor.DataPoint) {
	w.mu.Lock()
	l := w.listener
	w.mu.Unlock()
	if l != nil {
		l.OnDataReceived(points)
	}
}

func putUser(t *testing.T, store docstore.Store, u models.User) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), docstore.UserPath(u.ID), u.Fields()))
}
