package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	commonmqtt "parent-wellness/common/mqtt"

	"go.uber.org/zap"
)

// MQTTTracker Tracker backed by the watch bridge over MQTT.
//
//	{prefix}/{userId}/{type}/data        batch {"data_points":[...]}
//	{prefix}/{userId}/{type}/flush       flush request (published)
//	{prefix}/{userId}/{type}/flush/done  flush completion
type MQTTTracker struct {
	client commonmqtt.PubSub
	base   string
	qos    byte
	logger *zap.Logger

	mu       sync.RWMutex
	listener EventListener
}

type dataBatch struct {
	DataPoints []map[string]interface{} `json:"data_points"`
}

// NewMQTTTracker creates a tracker for one user and tracker type
func NewMQTTTracker(client commonmqtt.PubSub, prefix, userID string, trackerType TrackerType, qos byte, logger *zap.Logger) *MQTTTracker {
	return &MQTTTracker{
		client: client,
		base:   fmt.Sprintf("%s/%s/%s", prefix, userID, trackerType),
		qos:    qos,
		logger: logger,
	}
}

// DataTopic topic carrying data batches
func (t *MQTTTracker) DataTopic() string { return t.base + "/data" }

// FlushTopic topic flush requests are published to
func (t *MQTTTracker) FlushTopic() string { return t.base + "/flush" }

// FlushDoneTopic topic signalling flush completion
func (t *MQTTTracker) FlushDoneTopic() string { return t.base + "/flush/done" }

func (t *MQTTTracker) SetEventListener(l EventListener) error {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()

	if err := t.client.Subscribe(t.DataTopic(), t.qos, t.handleData); err != nil {
		return err
	}
	if err := t.client.Subscribe(t.FlushDoneTopic(), t.qos, t.handleFlushDone); err != nil {
		t.client.Unsubscribe(t.DataTopic())
		return err
	}

	t.logger.Info("Tracker subscribed", zap.String("topic", t.DataTopic()))
	return nil
}

func (t *MQTTTracker) UnsetEventListener() {
	t.mu.Lock()
	t.listener = nil
	t.mu.Unlock()

	if err := t.client.Unsubscribe(t.DataTopic(), t.FlushDoneTopic()); err != nil {
		t.logger.Warn("Failed to unsubscribe tracker", zap.String("topic", t.DataTopic()), zap.Error(err))
	}
}

func (t *MQTTTracker) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]interface{}{"requested_at": time.Now().UnixMilli()})
	return t.client.Publish(t.FlushTopic(), t.qos, false, payload)
}

func (t *MQTTTracker) current() EventListener {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listener
}

func (t *MQTTTracker) handleData(topic string, payload []byte) error {
	l := t.current()
	if l == nil {
		return nil
	}

	var batch dataBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		err = fmt.Errorf("failed to decode data batch on %s: %w", topic, err)
		l.OnError(err)
		return err
	}

	points := make([]DataPoint, 0, len(batch.DataPoints))
	for _, p := range batch.DataPoints {
		points = append(points, DataPoint(p))
	}
	l.OnDataReceived(points)
	return nil
}

func (t *MQTTTracker) handleFlushDone(topic string, payload []byte) error {
	if l := t.current(); l != nil {
		l.OnFlushCompleted()
	}
	return nil
}
