package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"parent-wellness/internal/models"
	"parent-wellness/internal/realtime"
	"parent-wellness/internal/report"
	"parent-wellness/internal/sensor"
	"parent-wellness/internal/service"
)

// Readings local reading operations
type Readings interface {
	RecordManual(ctx context.Context, r *models.Reading) error
	List(ctx context.Context, userID string, metric models.Metric, from, to time.Time) ([]*models.Reading, error)
	WipeUser(ctx context.Context, userID string) (int64, error)
	Backlog(ctx context.Context) (map[models.Metric]map[models.SyncStatus]int, error)
}

// Profiles cloud profile, alert and report operations
type Profiles interface {
	GetProfile(ctx context.Context, uid string) (*models.User, error)
	SaveProfile(ctx context.Context, u *models.User) error
	RegisterPushToken(ctx context.Context, uid, token string) error
	GetNotificationPreferences(ctx context.Context, uid string) (models.NotificationPreferences, error)
	UpdateNotificationPreferences(ctx context.Context, uid string, prefs models.NotificationPreferences) error
	LinkCaregiver(ctx context.Context, parentID, caregiverID string) error
	ListAlerts(ctx context.Context, uid string, unreadOnly bool) ([]models.AlertDocument, error)
	MarkAlertRead(ctx context.Context, uid, alertID string) error
	ListReports(ctx context.Context, uid string) ([]models.WeeklyReport, error)
	GetReport(ctx context.Context, uid, reportID string) (*models.WeeklyReport, error)
}

// LiveState mirrored listener state
type LiveState interface {
	GetLive(ctx context.Context, uid string, metric models.Metric) (*realtime.Live, error)
}

// LiveFeed listener state changes as they happen
type LiveFeed interface {
	Subscribe(ctx context.Context, userID string) <-chan sensor.Update
}

// Pinger health check of a dependency
type Pinger func(ctx context.Context) error

// Handler HTTP handlers of the wellness API
type Handler struct {
	readings Readings
	profiles Profiles
	live     LiveState
	feed     LiveFeed
	checks   map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates the handlers; live may be nil when no realtime cache is configured
func NewHandler(readings Readings, profiles Profiles, live LiveState, checks map[string]Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		readings: readings,
		profiles: profiles,
		live:     live,
		checks:   checks,
		logger:   logger,
	}
}

// WithLiveFeed enables the live event stream
func (h *Handler) WithLiveFeed(f LiveFeed) *Handler {
	h.feed = f
	return h
}

// ReadingRequest manual entry body
type ReadingRequest struct {
	Metric    string   `json:"metric"`
	Value     float64  `json:"value"`
	Secondary *float64 `json:"secondary,omitempty"`
	Accuracy  *int     `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // epoch ms, defaults to now
	Situation string   `json:"situation,omitempty"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

type caregiverRequest struct {
	CaregiverID string `json:"caregiverId"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, ping := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := ping(ctx)
		cancel()
		if err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, Result[map[string]string]{
			Code: ResultError, Type: "error", Message: "unhealthy", Result: status,
		})
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.profiles.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(u))
}

func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := readBodyJSON(r, maxBodyBytes, &u); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	u.ID = chi.URLParam(r, "userID")
	if err := h.profiles.SaveProfile(r.Context(), &u); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"id": u.ID}))
}

func (h *Handler) RecordReading(w http.ResponseWriter, r *http.Request) {
	var req ReadingRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}

	reading := &models.Reading{
		UserID:    chi.URLParam(r, "userID"),
		Metric:    models.Metric(req.Metric),
		Value:     req.Value,
		Secondary: req.Secondary,
		Accuracy:  req.Accuracy,
		Timestamp: req.Timestamp,
		Situation: req.Situation,
	}
	if err := h.readings.RecordManual(r.Context(), reading); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(reading))
}

func (h *Handler) ListReadings(w http.ResponseWriter, r *http.Request) {
	from, err := parseMillis(r, "from")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	to, err := parseMillis(r, "to")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	metric := models.Metric(r.URL.Query().Get("metric"))
	readings, err := h.readings.List(r.Context(), chi.URLParam(r, "userID"), metric, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if readings == nil {
		readings = []*models.Reading{}
	}
	writeJSON(w, http.StatusOK, Ok(readings))
}

func (h *Handler) WipeReadings(w http.ResponseWriter, r *http.Request) {
	n, err := h.readings.WipeUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int64{"deleted": n}))
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("realtime cache not configured"))
		return
	}
	uid := chi.URLParam(r, "userID")
	out := make([]*realtime.Live, 0, len(models.AllMetrics))
	for _, m := range models.AllMetrics {
		live, err := h.live.GetLive(r.Context(), uid, m)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		out = append(out, live)
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// LiveStream pushes listener changes as server-sent events until the client leaves
func (h *Handler) LiveStream(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("live feed not configured"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, Fail("streaming unsupported"))
		return
	}
	uid := chi.URLParam(r, "userID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for u := range h.feed.Subscribe(r.Context(), uid) {
		data, err := json.Marshal(u)
		if err != nil {
			h.logger.Error("Failed to encode live update", zap.String("user_id", uid), zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Type, data); err != nil {
			h.logger.Debug("Live stream closed", zap.String("user_id", uid), zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) SyncBacklog(w http.ResponseWriter, r *http.Request) {
	backlog, err := h.readings.Backlog(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(backlog))
}

func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if err := h.profiles.RegisterPushToken(r.Context(), chi.URLParam(r, "userID"), req.Token); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.profiles.GetNotificationPreferences(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(prefs))
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	// absent fields keep the default (enabled)
	prefs := models.DefaultNotificationPreferences()
	if err := readBodyJSON(r, maxBodyBytes, &prefs); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if err := h.profiles.UpdateNotificationPreferences(r.Context(), chi.URLParam(r, "userID"), prefs); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(prefs))
}

func (h *Handler) LinkCaregiver(w http.ResponseWriter, r *http.Request) {
	var req caregiverRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if err := h.profiles.LinkCaregiver(r.Context(), chi.URLParam(r, "userID"), req.CaregiverID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	alerts, err := h.profiles.ListAlerts(r.Context(), chi.URLParam(r, "userID"), unreadOnly)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.MarkAlertRead(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "alertID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.profiles.ListReports(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(reports))
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.profiles.GetReport(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rep))
}

// ExportReports downloads every report of the user as xlsx; ?tz= picks the
// time zone of the period columns (default UTC)
func (h *Handler) ExportReports(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "userID")

	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: unknown time zone %q", service.ErrInvalidArgument, tz))
			return
		}
		loc = l
	}

	reports, err := h.profiles.ListReports(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	data, err := report.ExportXLSX(reports, loc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="weekly-reports-%s.xlsx"`, uid))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
