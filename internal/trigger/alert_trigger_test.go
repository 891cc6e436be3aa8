package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
)

func newTestTrigger() (*AlertTrigger, *docstore.MemoryStore, *fakeSender) {
	store := docstore.NewMemoryStore()
	sender := &fakeSender{}
	tr := NewAlertTrigger(store, sender, zap.NewNop())
	tr.now = func() time.Time { return time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC) }
	return tr, store, sender
}

func TestHandleWrite_CreatesAlertAndNotifies(t *testing.T) {
	tr, store, sender := newTestTrigger()
	ctx := context.Background()

	putUser(store, models.User{
		ID:                      "parent",
		DisplayName:             "Mom",
		FCMToken:                "parent-token",
		CaregiverIDs:            []string{"child", "muted", "missing"},
		NotificationPreferences: models.DefaultNotificationPreferences(),
	})
	putUser(store, models.User{
		ID:                      "child",
		FCMToken:                "child-token",
		NotificationPreferences: models.DefaultNotificationPreferences(),
	})
	muted := models.DefaultNotificationPreferences()
	muted.HeartRateAlerts = false
	putUser(store, models.User{ID: "muted", FCMToken: "muted-token", NotificationPreferences: muted})

	r := models.NewReading("parent", models.MetricHeartRate, 135, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC))
	alert, err := tr.HandleWrite(ctx, healthWrite("parent", r))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, r.ID+"_high_heart_rate", alert.ID)

	snap, err := store.Get(ctx, docstore.AlertPath("parent", alert.ID))
	require.NoError(t, err)
	stored := models.AlertFromFields(snap.ID, snap.Data)
	assert.Equal(t, models.AlertTypeHighHeartRate, stored.Type)
	assert.Equal(t, "heart_rate", stored.MetricName)
	assert.Equal(t, 135.0, stored.Value)
	assert.Equal(t, r.ID, stored.ReadingID)
	assert.Equal(t, r.Timestamp, stored.Timestamp)
	assert.False(t, stored.Read)

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "parent-token", msgs[0].Token)
	assert.Equal(t, "Your heart rate is high: 135 bpm", msgs[0].Body)
	assert.Equal(t, "child-token", msgs[1].Token)
	assert.Equal(t, "Health alert for Mom", msgs[1].Title)
	assert.Equal(t, "Mom's heart rate is high: 135 bpm", msgs[1].Body)
	assert.Equal(t, alert.ID, msgs[1].Data["alertId"])
}

func TestHandleWrite_Idempotent(t *testing.T) {
	tr, store, sender := newTestTrigger()
	ctx := context.Background()
	putUser(store, models.User{ID: "u1", FCMToken: "tok", NotificationPreferences: models.DefaultNotificationPreferences()})

	r := models.NewReading("u1", models.MetricBloodSugar, 250, time.Now())
	first, err := tr.HandleWrite(ctx, healthWrite("u1", r))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := tr.HandleWrite(ctx, healthWrite("u1", r))
	require.NoError(t, err)
	assert.Nil(t, second)

	alerts, err := store.List(ctx, docstore.AlertsCollection("u1"), docstore.Query{})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Len(t, sender.messages(), 1)
}

func TestHandleWrite_InRange(t *testing.T) {
	tr, store, sender := newTestTrigger()
	putUser(store, models.User{ID: "u1", FCMToken: "tok", NotificationPreferences: models.DefaultNotificationPreferences()})

	r := models.NewReading("u1", models.MetricHeartRate, 72, time.Now())
	alert, err := tr.HandleWrite(context.Background(), healthWrite("u1", r))
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Empty(t, sender.messages())
	assert.Equal(t, 1, store.Len())
}

func TestHandleWrite_OwnerPreferenceOff(t *testing.T) {
	tr, store, sender := newTestTrigger()
	prefs := models.DefaultNotificationPreferences()
	prefs.BloodPressureAlerts = false
	putUser(store, models.User{ID: "u1", FCMToken: "tok", NotificationPreferences: prefs})

	r := models.NewReading("u1", models.MetricBloodPressure, 150, time.Now())
	r.Secondary = models.FloatPtr(95)
	alert, err := tr.HandleWrite(context.Background(), healthWrite("u1", r))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertTypeHighBloodPressure, alert.Type)
	assert.Empty(t, sender.messages())
}

func TestHandleWrite_NoProfileStillStoresAlert(t *testing.T) {
	tr, store, sender := newTestTrigger()

	r := models.NewReading("ghost", models.MetricHeartRate, 40, time.Now())
	alert, err := tr.HandleWrite(context.Background(), healthWrite("ghost", r))
	require.NoError(t, err)
	require.NotNil(t, alert)

	_, err = store.Get(context.Background(), docstore.AlertPath("ghost", alert.ID))
	assert.NoError(t, err)
	assert.Empty(t, sender.messages())
}

func TestHandleWrite_SendFailureIsNotFatal(t *testing.T) {
	tr, store, sender := newTestTrigger()
	sender.err = errors.New("fcm down")
	putUser(store, models.User{ID: "u1", FCMToken: "tok", NotificationPreferences: models.DefaultNotificationPreferences()})

	r := models.NewReading("u1", models.MetricHeartRate, 140, time.Now())
	alert, err := tr.HandleWrite(context.Background(), healthWrite("u1", r))
	require.NoError(t, err)
	assert.NotNil(t, alert)
}

func TestHandleWrite_PathFallback(t *testing.T) {
	tr, _, _ := newTestTrigger()
	r := models.NewReading("u1", models.MetricHeartRate, 140, time.Now())
	event := healthWrite("u1", r)
	event.UserID, event.DocID = "", ""

	alert, err := tr.HandleWrite(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "u1", alert.UserID)

	_, err = tr.HandleWrite(context.Background(), docstore.WriteEvent{Path: "users/u1"})
	assert.Error(t, err)
}

func TestHandleWrite_UnparseableSkipped(t *testing.T) {
	tr, _, _ := newTestTrigger()
	alert, err := tr.HandleWrite(context.Background(), docstore.WriteEvent{
		Path:   docstore.HealthDataPath("u1", "r1"),
		UserID: "u1",
		DocID:  "r1",
		Data:   docstore.Document{"type": "weight", "value": 90},
	})
	assert.NoError(t, err)
	assert.Nil(t, alert)
}
