package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commonmqtt "parent-wellness/common/mqtt"

	"go.uber.org/zap"
)

// MQTTConnector handshake over MQTT:
//
//	{prefix}/{userId}/connect  request (published)
//	{prefix}/{userId}/status   {"state":"connected|resolution_required|failed","reason":"..."}
type MQTTConnector struct {
	client commonmqtt.PubSub
	base   string
	qos    byte
	logger *zap.Logger
}

type statusMessage struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
}

// NewMQTTConnector creates a connector for the user's watch
func NewMQTTConnector(client commonmqtt.PubSub, prefix, userID string, qos byte, logger *zap.Logger) *MQTTConnector {
	return &MQTTConnector{
		client: client,
		base:   fmt.Sprintf("%s/%s", prefix, userID),
		qos:    qos,
		logger: logger,
	}
}

// ConnectTopic topic the handshake request is published to
func (c *MQTTConnector) ConnectTopic() string { return c.base + "/connect" }

// StatusTopic topic the bridge answers on
func (c *MQTTConnector) StatusTopic() string { return c.base + "/status" }

// Connect waits for the first status message or ctx
func (c *MQTTConnector) Connect(ctx context.Context) (ConnectionState, string, error) {
	status := make(chan statusMessage, 1)

	// 1. listen before asking
	err := c.client.Subscribe(c.StatusTopic(), c.qos, func(topic string, payload []byte) error {
		var msg statusMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to decode status: %w", err)
		}
		select {
		case status <- msg:
		default:
		}
		return nil
	})
	if err != nil {
		return StateDisconnected, "", err
	}
	defer func() {
		if err := c.client.Unsubscribe(c.StatusTopic()); err != nil {
			c.logger.Debug("Failed to unsubscribe status topic", zap.Error(err))
		}
	}()

	// 2. ask
	payload, _ := json.Marshal(map[string]interface{}{"requested_at": time.Now().UnixMilli()})
	if err := c.client.Publish(c.ConnectTopic(), c.qos, false, payload); err != nil {
		return StateDisconnected, "", err
	}

	// 3. wait
	select {
	case msg := <-status:
		switch msg.State {
		case "connected":
			return StateConnected, "", nil
		case "resolution_required":
			return StateResolutionRequired, msg.Reason, nil
		}
		return StateDisconnected, msg.Reason, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return StateDisconnected, "", ErrHandshakeTimeout
		}
		return StateDisconnected, "", ctx.Err()
	}
}
