package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter mounts the wellness API
func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", h.Health)
	r.Get("/api/v1/sync/backlog", h.SyncBacklog)

	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Get("/", h.GetProfile)
		r.Put("/", h.SaveProfile)

		r.Post("/readings", h.RecordReading)
		r.Get("/readings", h.ListReadings)
		r.Delete("/readings", h.WipeReadings)

		r.Get("/live", h.Live)
		r.Get("/live/stream", h.LiveStream)

		r.Put("/push-token", h.RegisterPushToken)
		r.Get("/notification-preferences", h.GetPreferences)
		r.Put("/notification-preferences", h.UpdatePreferences)
		r.Post("/caregivers", h.LinkCaregiver)

		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts/{alertID}/read", h.MarkAlertRead)

		r.Get("/reports", h.ListReports)
		r.Get("/reports/export", h.ExportReports)
		r.Get("/reports/{reportID}", h.GetReport)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
