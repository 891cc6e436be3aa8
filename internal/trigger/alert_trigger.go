package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
	"parent-wellness/internal/push"
)

// AlertTrigger derives alert documents from health-data writes and fans
// out push notifications
type AlertTrigger struct {
	store  docstore.Store
	sender push.Sender
	now    func() time.Time
	logger *zap.Logger
}

// NewAlertTrigger creates a trigger
func NewAlertTrigger(store docstore.Store, sender push.Sender, logger *zap.Logger) *AlertTrigger {
	return &AlertTrigger{
		store:  store,
		sender: sender,
		now:    time.Now,
		logger: logger,
	}
}

// HandleWrite processes one write event. Returns the alert created, or nil
// when the value is in range or the alert already exists.
func (t *AlertTrigger) HandleWrite(ctx context.Context, event docstore.WriteEvent) (*models.AlertDocument, error) {
	uid, readingID := event.UserID, event.DocID
	if uid == "" || readingID == "" {
		var ok bool
		if uid, readingID, ok = docstore.ParseHealthDataPath(event.Path); !ok {
			return nil, fmt.Errorf("write event has no health data path: %q", event.Path)
		}
	}

	// 1. Evaluate thresholds
	m, err := ParseMeasurement(uid, readingID, event.Data)
	if err != nil {
		t.logger.Warn("Skipping unparseable health data",
			zap.String("path", event.Path),
			zap.Error(err),
		)
		return nil, nil
	}
	alertType := Evaluate(m)
	if alertType == "" {
		return nil, nil
	}

	// 2. Alert id is deterministic, a re-synced reading finds its alert
	alert := &models.AlertDocument{
		ID:         AlertID(readingID, alertType),
		UserID:     uid,
		Type:       alertType,
		MetricName: string(m.Metric),
		Value:      m.Value,
		Secondary:  m.Secondary,
		ReadingID:  readingID,
		Timestamp:  m.Timestamp,
		CreatedAt:  t.now().UnixMilli(),
	}
	path := docstore.AlertPath(uid, alert.ID)
	if _, err := t.store.Get(ctx, path); err == nil {
		t.logger.Debug("Alert already exists", zap.String("alert_id", alert.ID))
		return nil, nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to check alert %s: %w", alert.ID, err)
	}

	// 3. Persist
	if err := t.store.Set(ctx, path, alert.Fields()); err != nil {
		return nil, fmt.Errorf("failed to store alert %s: %w", alert.ID, err)
	}
	t.logger.Info("Alert created",
		zap.String("user_id", uid),
		zap.String("alert_id", alert.ID),
		zap.String("type", alertType),
		zap.Float64("value", m.Value),
	)

	// 4. Notify owner and caregivers
	t.notify(ctx, alert, m.Metric)
	return alert, nil
}

func (t *AlertTrigger) notify(ctx context.Context, alert *models.AlertDocument, metric models.Metric) {
	owner, err := loadUser(ctx, t.store, alert.UserID)
	if err != nil {
		t.logger.Warn("Cannot load alert owner, skipping notifications",
			zap.String("user_id", alert.UserID),
			zap.Error(err),
		)
		return
	}

	if owner.NotificationPreferences.AllowsMetric(metric) {
		send(ctx, t.sender, OwnerAlertMessage(owner.FCMToken, alert), owner.ID, t.logger)
	}

	for _, cid := range owner.CaregiverIDs {
		caregiver, err := loadUser(ctx, t.store, cid)
		if err != nil {
			t.logger.Warn("Cannot load caregiver",
				zap.String("caregiver_id", cid),
				zap.Error(err),
			)
			continue
		}
		if !caregiver.NotificationPreferences.AllowsMetric(metric) {
			continue
		}
		send(ctx, t.sender, CaregiverAlertMessage(caregiver.FCMToken, owner.Name(), alert), cid, t.logger)
	}
}

func loadUser(ctx context.Context, store docstore.Store, uid string) (*models.User, error) {
	snap, err := store.Get(ctx, docstore.UserPath(uid))
	if err != nil {
		return nil, err
	}
	u := models.UserFromFields(snap.ID, snap.Data)
	return &u, nil
}

// send delivers msg; failures are logged, push delivery is best effort
func send(ctx context.Context, sender push.Sender, msg push.Message, recipient string, logger *zap.Logger) {
	if msg.Token == "" {
		logger.Debug("Recipient has no push token", zap.String("recipient", recipient))
		return
	}
	if err := sender.Send(ctx, msg); err != nil {
		logger.Warn("Failed to send notification",
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return
	}
	logger.Debug("Notification sent", zap.String("recipient", recipient), zap.String("title", msg.Title))
}
