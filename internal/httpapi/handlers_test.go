package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"parent-wellness/common/config"
	"parent-wellness/common/database"
	"parent-wellness/internal/docstore"
	"parent-wellness/internal/localcache"
	"parent-wellness/internal/models"
	"parent-wellness/internal/realtime"
	"parent-wellness/internal/report"
	"parent-wellness/internal/scheduler"
	"parent-wellness/internal/sensor"
	"parent-wellness/internal/service"
)

type noJobs struct{}

func (noJobs) EnqueueUniqueOneTime(string, scheduler.Policy, scheduler.OneTimeRequest, scheduler.Worker) (bool, error) {
	return true, nil
}

type testAPI struct {
	router http.Handler
	store  *docstore.MemoryStore
	mirror *realtime.Mirror
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.NewSQLiteDB(&config.SQLiteConfig{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cache, err := localcache.New(context.Background(), db, logger)
	require.NoError(t, err)

	store := docstore.NewMemoryStore()
	mirror := realtime.NewMirror(realtime.NewMemoryKV(), "wellness:user:", time.Hour, logger)
	readings := service.NewReadingService(cache, noJobs{}, nil, logger)
	profiles := service.NewProfileService(store, logger)

	h := NewHandler(readings, profiles, mirror, map[string]Pinger{"store": store.Ping}, logger)
	return &testAPI{router: NewRouter(h, logger), store: store, mirror: mirror}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var res Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	res := decode[map[string]string](t, rec)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "ok", res.Result["store"])
}

func TestHealthz_Unhealthy(t *testing.T) {
	logger := zap.NewNop()
	h := NewHandler(nil, nil, nil, map[string]Pinger{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, logger)
	rec := httptest.NewRecorder()
	NewRouter(h, logger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadingsRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/users/u1/readings", ReadingRequest{
		Metric:    "blood_pressure",
		Value:     128,
		Secondary: models.FloatPtr(82),
		Timestamp: 1700000000000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Reading](t, rec)
	assert.Equal(t, ResultSuccess, created.Code)
	assert.NotEmpty(t, created.Result.ID)
	assert.Equal(t, models.SyncPending, created.Result.SyncStatus)

	rec = api.do(t, http.MethodPost, "/api/v1/users/u1/readings", ReadingRequest{Metric: "weight", Value: 80})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ResultError, decode[any](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users/u1/readings?metric=blood_pressure&from=1600000000000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Reading](t, rec)
	require.Len(t, list.Result, 1)
	assert.Equal(t, 82.0, *list.Result[0].Secondary)

	rec = api.do(t, http.MethodGet, "/api/v1/users/u1/readings?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/users/u1/readings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[map[string]int64](t, rec).Result["deleted"])

	rec = api.do(t, http.MethodGet, "/api/v1/users/u1/readings", nil)
	assert.Empty(t, decode[[]models.Reading](t, rec).Result)
}

func TestProfileRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPut, "/api/v1/users/mom", map[string]any{"displayName": "Mom", "email": "mom@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPut, "/api/v1/users/son", map[string]any{"displayName": "Son"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/users/mom/push-token", map[string]string{"token": "tok"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/users/mom/caregivers", map[string]string{"caregiverId": "son"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/users/mom/caregivers", map[string]string{"caregiverId": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users/mom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mom := decode[models.User](t, rec).Result
	assert.Equal(t, "tok", mom.FCMToken)
	assert.Equal(t, []string{"son"}, mom.CaregiverIDs)

	rec = api.do(t, http.MethodPut, "/api/v1/users/mom/notification-preferences", map[string]bool{"weeklyReports": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users/mom/notification-preferences", nil)
	prefs := decode[models.NotificationPreferences](t, rec).Result
	assert.False(t, prefs.WeeklyReports)
	assert.True(t, prefs.HeartRateAlerts)

	rec = api.do(t, http.MethodGet, "/api/v1/users/nobody/notification-preferences", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertRoutes(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	for i, id := range []string{"r1_high_heart_rate", "r2_low_blood_sugar"} {
		a := models.AlertDocument{ID: id, UserID: "mom", Timestamp: int64(i + 1)}
		require.NoError(t, api.store.Set(ctx, docstore.AlertPath("mom", id), a.Fields()))
	}

	rec := api.do(t, http.MethodPost, "/api/v1/users/mom/alerts/r1_high_heart_rate/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users/mom/alerts?unread=true", nil)
	unread := decode[[]models.AlertDocument](t, rec).Result
	require.Len(t, unread, 1)
	assert.Equal(t, "r2_low_blood_sugar", unread[0].ID)

	rec = api.do(t, http.MethodGet, "/api/v1/users/mom/alerts", nil)
	assert.Len(t, decode[[]models.AlertDocument](t, rec).Result, 2)

	rec = api.do(t, http.MethodPost, "/api/v1/users/mom/alerts/nope/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportRoutes(t *testing.T) {
	api := newTestAPI(t)
	rep := models.WeeklyReport{ID: "w1", UserID: "mom", CreatedAt: 1, HeartRate: models.Summarize([]float64{70, 80})}
	require.NoError(t, api.store.Set(context.Background(), docstore.ReportPath("mom", "w1"), rep.Fields()))

	rec := api.do(t, http.MethodGet, "/api/v1/users/mom/reports", nil)
	reports := decode[[]models.WeeklyReport](t, rec).Result
	require.Len(t, reports, 1)

	rec = api.do(t, http.MethodGet, "/api/v1/users/mom/reports/w1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 75.0, decode[models.WeeklyReport](t, rec).Result.HeartRate.Avg)

	rec = api.do(t, http.MethodGet, "/api/v1/users/mom/reports/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/vnd.openxmlformats"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	rec = api.do(t, http.MethodGet, "/api/v1/users/mom/reports/export?tz=Not/AZone", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveRoute(t *testing.T) {
	api := newTestAPI(t)
	r := models.NewReading("mom", models.MetricHeartRate, 130, time.Now())
	require.NoError(t, api.mirror.PutLatest(context.Background(), *r))
	require.NoError(t, api.mirror.PutAlert(context.Background(), "mom", models.MetricHeartRate, models.HighHeartRate{Reading: *r}))

	rec := api.do(t, http.MethodGet, "/api/v1/users/mom/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	live := decode[[]realtime.Live](t, rec).Result
	require.Len(t, live, len(models.AllMetrics))
	assert.Equal(t, models.MetricHeartRate, live[0].Metric)
	require.NotNil(t, live[0].Latest)
	assert.Equal(t, 130.0, live[0].Latest.Value)
	require.NotNil(t, live[0].Alert)
	assert.Equal(t, models.AlertHighHeartRate, live[0].Alert.Kind)
	assert.Nil(t, live[1].Latest)
}

type cannedFeed struct {
	updates map[string][]sensor.Update
}

func (f cannedFeed) Subscribe(_ context.Context, userID string) <-chan sensor.Update {
	ch := make(chan sensor.Update, len(f.updates[userID]))
	for _, u := range f.updates[userID] {
		ch <- u
	}
	close(ch)
	return ch
}

func TestLiveStreamRoute(t *testing.T) {
	logger := zap.NewNop()
	r := models.NewReading("mom", models.MetricHeartRate, 130, time.Now())
	feed := cannedFeed{updates: map[string][]sensor.Update{"mom": {
		{Type: sensor.UpdateLatest, Metric: models.MetricHeartRate, Latest: r},
		{Type: sensor.UpdateAlert, Metric: models.MetricHeartRate, Alert: models.ViewOf(models.HighHeartRate{Reading: *r})},
	}}}
	router := NewRouter(NewHandler(nil, nil, nil, nil, logger).WithLiveFeed(feed), logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/mom/live/stream", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	events := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, events, 2)
	assert.True(t, strings.HasPrefix(events[0], "event: latest\ndata: "))
	assert.True(t, strings.HasPrefix(events[1], "event: alert\ndata: "))

	var alert sensor.Update
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[1], "event: alert\ndata: ")), &alert))
	require.NotNil(t, alert.Alert)
	assert.Equal(t, models.AlertHighHeartRate, alert.Alert.Kind)
	assert.Equal(t, 130.0, alert.Alert.Reading.Value)
}

func TestLiveStreamRoute_NotConfigured(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/v1/users/mom/live/stream", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSyncBacklogRoute(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/users/u1/readings", ReadingRequest{Metric: "blood_sugar", Value: 98})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/sync/backlog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	backlog := decode[map[string]map[string]int](t, rec).Result
	assert.Len(t, backlog, len(models.AllMetrics))
	assert.Equal(t, 1, backlog["blood_sugar"][string(models.SyncPending)])
	assert.Empty(t, backlog["heart_rate"])
}
