package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	commonredis "parent-wellness/common/redis"
	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
)

const testStream = "wellness:healthdata:writes"

type recordingHandler struct {
	mu     sync.Mutex
	events []docstore.WriteEvent
	err    error
}

func (h *recordingHandler) HandleWrite(_ context.Context, event docstore.WriteEvent) (*models.AlertDocument, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil, h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func newTestConsumer(t *testing.T, handler WriteHandler) (*WriteConsumer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := NewWriteConsumer(client, ConsumerConfig{
		Stream:        testStream,
		ConsumerGroup: "trigger-group",
		ConsumerName:  "trigger-1",
		BatchSize:     10,
		Block:         50 * time.Millisecond,
	}, handler, zap.NewNop())
	require.NoError(t, commonredis.CreateConsumerGroup(context.Background(), client, testStream, "trigger-group"))
	return c, client
}

func publish(t *testing.T, client *redis.Client, uid string, r *models.Reading) {
	t.Helper()
	pub := docstore.NewStreamPublisher(client, testStream)
	require.NoError(t, pub.PublishWrite(context.Background(), healthWrite(uid, r)))
}

func TestConsumeOnce_DecodesAndAcks(t *testing.T) {
	h := &recordingHandler{}
	c, client := newTestConsumer(t, h)
	ctx := context.Background()

	r := models.NewReading("u1", models.MetricHeartRate, 135, time.UnixMilli(1700000000000))
	publish(t, client, "u1", r)

	acked, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	require.Equal(t, 1, h.count())

	ev := h.events[0]
	assert.Equal(t, docstore.HealthDataPath("u1", r.ID), ev.Path)
	assert.Equal(t, r.ID, ev.DocID)
	assert.Equal(t, "heart_rate", ev.Data["type"])
	assert.Equal(t, 135.0, ev.Data["value"])

	pending, err := client.XPending(ctx, testStream, "trigger-group").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestConsumeOnce_HandlerErrorLeavesPending(t *testing.T) {
	h := &recordingHandler{err: errors.New("store down")}
	c, client := newTestConsumer(t, h)
	ctx := context.Background()

	publish(t, client, "u1", models.NewReading("u1", models.MetricHeartRate, 135, time.Now()))

	acked, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acked)

	pending, err := client.XPending(ctx, testStream, "trigger-group").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	pending, err := client.XPending(context.Background(), testStream, "trigger-group").Result()
	require.NoError(t, err)
	return pending.Count
}

func TestConsumeOnce_RedeliversAfterHandlerRecovers(t *testing.T) {
	h := &recordingHandler{err: errors.New("store down")}
	c, client := newTestConsumer(t, h)
	clock := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	publish(t, client, "u1", models.NewReading("u1", models.MetricHeartRate, 135, time.Now()))

	acked, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acked)
	assert.Equal(t, int64(1), pendingCount(t, client))

	// not due yet
	h.err = nil
	acked, err = c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acked)
	assert.Equal(t, 1, h.count())

	clock = clock.Add(DefaultRetryInterval)
	acked, err = c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	require.Equal(t, 2, h.count())
	assert.Equal(t, h.events[0].DocID, h.events[1].DocID)
	assert.Equal(t, int64(0), pendingCount(t, client))

	// acked entries are not delivered again
	clock = clock.Add(DefaultRetryInterval)
	_, err = c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.count())
}

func TestConsumeOnce_PicksUpLeftoversOnStart(t *testing.T) {
	failing := &recordingHandler{err: errors.New("store down")}
	c, client := newTestConsumer(t, failing)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		publish(t, client, "u1", models.NewReading("u1", models.MetricBloodSugar, 240, time.Now()))
	}
	_, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), pendingCount(t, client))

	// restarted process, same consumer name, small pages
	h := &recordingHandler{}
	restarted := NewWriteConsumer(client, ConsumerConfig{
		Stream:        testStream,
		ConsumerGroup: "trigger-group",
		ConsumerName:  "trigger-1",
		BatchSize:     2,
		Block:         50 * time.Millisecond,
	}, h, zap.NewNop())

	acked, err := restarted.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, acked)
	assert.Equal(t, 3, h.count())
	assert.Equal(t, int64(0), pendingCount(t, client))
}

func TestConsumeOnce_MalformedIsAcked(t *testing.T) {
	h := &recordingHandler{}
	c, client := newTestConsumer(t, h)
	ctx := context.Background()

	_, err := commonredis.PublishToStream(ctx, client, testStream, map[string]interface{}{"data": "not json"})
	require.NoError(t, err)

	acked, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, 0, h.count())
}

func TestConsumer_StartStopsOnCancel(t *testing.T) {
	h := &recordingHandler{}
	c, client := newTestConsumer(t, h)
	publish(t, client, "u1", models.NewReading("u1", models.MetricSteps, 10, time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	assert.Eventually(t, func() bool { return h.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestDecodeWriteEvent(t *testing.T) {
	_, err := DecodeWriteEvent(map[string]interface{}{})
	assert.Error(t, err)

	_, err = DecodeWriteEvent(map[string]interface{}{"data": `{"user_id":"u1"}`})
	assert.Error(t, err)

	ev, err := DecodeWriteEvent(map[string]interface{}{"data": `{"path":"users/u1/healthData/r1","user_id":"u1","doc_id":"r1","data":{"value":70}}`})
	require.NoError(t, err)
	assert.Equal(t, "r1", ev.DocID)
	assert.Equal(t, 70.0, ev.Data["value"])
}
