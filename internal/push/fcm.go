package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrNoToken the recipient has no registered device token
var ErrNoToken = errors.New("no push token")

// Message one push notification
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers push notifications
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FCMRequest legacy FCM HTTP send body
type FCMRequest struct {
	To           string            `json:"to"`
	Notification FCMNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// FCMNotification visible part of the message
type FCMNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

// FCMResponse send result counters
type FCMResponse struct {
	Success int         `json:"success"`
	Failure int         `json:"failure"`
	Results []FCMResult `json:"results"`
}

// FCMResult per-token outcome
type FCMResult struct {
	MessageID string  `json:"message_id,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// FCMClient Sender over the FCM HTTP API
type FCMClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewFCMClient creates a client; baseURL is e.g. https://fcm.googleapis.com
func NewFCMClient(baseURL, serverKey string, timeout time.Duration, logger *zap.Logger) *FCMClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+serverKey)

	return &FCMClient{httpClient: client, logger: logger}
}

func (c *FCMClient) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrNoToken
	}

	request := FCMRequest{
		To:           msg.Token,
		Notification: FCMNotification{Title: msg.Title, Body: msg.Body, Sound: "default"},
		Data:         msg.Data,
	}

	var response FCMResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/fcm/send")
	if err != nil {
		return fmt.Errorf("failed to call FCM: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("FCM returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	if response.Failure > 0 {
		reason := "unknown"
		for _, r := range response.Results {
			if r.Error != nil {
				reason = *r.Error
				break
			}
		}
		return fmt.Errorf("FCM rejected message: %s", reason)
	}

	c.logger.Debug("Push sent",
		zap.String("title", msg.Title),
		zap.Int("success", response.Success),
	)
	return nil
}
