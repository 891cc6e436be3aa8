package docstore

import (
	"context"

	commonredis "parent-wellness/common/redis"

	"go.uber.org/zap"
)

// WriteEvent published after a healthData document is written
type WriteEvent struct {
	Path   string   `json:"path"`
	UserID string   `json:"user_id"`
	DocID  string   `json:"doc_id"`
	Data   Document `json:"data"`
}

// Publisher delivers write events to the trigger
type Publisher interface {
	PublishWrite(ctx context.Context, event WriteEvent) error
}

// StreamPublisher publishes write events to a Redis stream as a JSON "data" field
type StreamPublisher struct {
	client *commonredis.Client
	stream string
}

// NewStreamPublisher creates a publisher for stream
func NewStreamPublisher(client *commonredis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

func (p *StreamPublisher) PublishWrite(ctx context.Context, event WriteEvent) error {
	_, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, event)
	return err
}

// PublishingStore decorates a Store: overwrites under users/{uid}/healthData
// emit a WriteEvent once the write has succeeded
type PublishingStore struct {
	Store
	publisher Publisher
	logger    *zap.Logger
}

// NewPublishingStore wraps inner
func NewPublishingStore(inner Store, publisher Publisher, logger *zap.Logger) *PublishingStore {
	return &PublishingStore{Store: inner, publisher: publisher, logger: logger}
}

// Set writes through and then publishes. A publish failure is returned so
// the caller can retry the write; re-publishing is harmless because the
// trigger derives deterministic alert ids.
func (s *PublishingStore) Set(ctx context.Context, path string, doc Document) error {
	if err := s.Store.Set(ctx, path, doc); err != nil {
		return err
	}

	uid, id, ok := ParseHealthDataPath(path)
	if !ok {
		return nil
	}

	event := WriteEvent{Path: HealthDataPath(uid, id), UserID: uid, DocID: id, Data: doc}
	if err := s.publisher.PublishWrite(ctx, event); err != nil {
		s.logger.Error("Failed to publish health data write",
			zap.String("path", event.Path),
			zap.Error(err),
		)
		return err
	}

	s.logger.Debug("Published health data write", zap.String("path", event.Path))
	return nil
}
