package trigger

import (
	"context"
	"sync"

	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
	"parent-wellness/internal/push"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []push.Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, msg push.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) messages() []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]push.Message(nil), s.sent...)
}

func putUser(store docstore.Store, u models.User) {
	_ = store.Set(context.Background(), docstore.UserPath(u.ID), u.Fields())
}

func healthWrite(uid string, r *models.Reading) docstore.WriteEvent {
	return docstore.WriteEvent{
		Path:   docstore.HealthDataPath(uid, r.ID),
		UserID: uid,
		DocID:  r.ID,
		Data:   r.CloudDocument(),
	}
}
