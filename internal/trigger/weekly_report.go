package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
	"parent-wellness/internal/push"
)

// ReportWindow period covered by one weekly report
const ReportWindow = 7 * 24 * time.Hour

// ReportSchedule when the weekly job fires
type ReportSchedule struct {
	Weekday  time.Weekday
	Hour     int
	Location *time.Location
	Check    time.Duration // ticker period
}

// WeeklyReporter aggregates the last week of health data per user
type WeeklyReporter struct {
	store    docstore.Store
	sender   push.Sender
	schedule ReportSchedule
	now      func() time.Time
	logger   *zap.Logger

	lastRun string // day key of the last scheduled run
}

// NewWeeklyReporter creates a reporter
func NewWeeklyReporter(store docstore.Store, sender push.Sender, schedule ReportSchedule, logger *zap.Logger) *WeeklyReporter {
	if schedule.Location == nil {
		schedule.Location = time.Local
	}
	if schedule.Check <= 0 {
		schedule.Check = time.Minute
	}
	return &WeeklyReporter{
		store:    store,
		sender:   sender,
		schedule: schedule,
		now:      time.Now,
		logger:   logger,
	}
}

// Start checks the schedule on a ticker until ctx is done
func (r *WeeklyReporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.schedule.Check)
	defer ticker.Stop()

	r.logger.Info("Weekly report job started",
		zap.String("weekday", r.schedule.Weekday.String()),
		zap.Int("hour", r.schedule.Hour),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs the job at most once per scheduled day
func (r *WeeklyReporter) tick(ctx context.Context) bool {
	now := r.now().In(r.schedule.Location)
	if now.Weekday() != r.schedule.Weekday || now.Hour() != r.schedule.Hour {
		return false
	}
	day := now.Format("2006-01-02")
	if r.lastRun == day {
		return false
	}
	r.lastRun = day

	if _, err := r.RunAll(ctx); err != nil {
		r.logger.Error("Weekly report run failed", zap.Error(err))
	}
	return true
}

// RunAll generates a report for every user. Per-user failures are logged
// and do not stop the run.
func (r *WeeklyReporter) RunAll(ctx context.Context) (int, error) {
	users, err := r.store.List(ctx, docstore.CollectionUsers, docstore.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	generated := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return generated, ctx.Err()
		}
		if _, err := r.RunOnce(ctx, u.ID); err != nil {
			r.logger.Error("Failed to generate weekly report",
				zap.String("user_id", u.ID),
				zap.Error(err),
			)
			continue
		}
		generated++
	}

	r.logger.Info("Weekly reports generated",
		zap.Int("users", len(users)),
		zap.Int("generated", generated),
	)
	return generated, nil
}

// RunOnce generates, stores and announces the report for one user
func (r *WeeklyReporter) RunOnce(ctx context.Context, uid string) (*models.WeeklyReport, error) {
	end := r.now()
	start := end.Add(-ReportWindow)

	// 1. Collect the window
	q := docstore.Query{OrderBy: "timestamp"}.
		Where("timestamp", docstore.OpGte, start.UnixMilli()).
		Where("timestamp", docstore.OpLte, end.UnixMilli())
	docs, err := r.store.List(ctx, docstore.HealthDataCollection(uid), q)
	if err != nil {
		return nil, fmt.Errorf("failed to list health data: %w", err)
	}

	// 2. Aggregate
	report := Aggregate(uid, docs)
	report.ID = uuid.New().String()
	report.PeriodStart = start.UnixMilli()
	report.PeriodEnd = end.UnixMilli()
	report.CreatedAt = end.UnixMilli()

	// 3. Store
	if err := r.store.Set(ctx, docstore.ReportPath(uid, report.ID), report.Fields()); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}
	r.logger.Info("Weekly report stored",
		zap.String("user_id", uid),
		zap.String("report_id", report.ID),
		zap.Int("readings", len(docs)),
	)

	// 4. Notify
	user, err := loadUser(ctx, r.store, uid)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		r.logger.Debug("Report owner has no profile", zap.String("user_id", uid))
	case err != nil:
		r.logger.Warn("Cannot load report owner", zap.String("user_id", uid), zap.Error(err))
	case user.NotificationPreferences.WeeklyReports:
		send(ctx, r.sender, ReportReadyMessage(user.FCMToken, &report), uid, r.logger)
	}

	return &report, nil
}

// Aggregate summarizes health-data documents ordered by timestamp.
// Documents that do not parse are ignored.
func Aggregate(uid string, docs []docstore.Snapshot) models.WeeklyReport {
	var hr, sys, dia, sugar, steps []float64
	for _, d := range docs {
		m, err := ParseMeasurement(uid, d.ID, d.Data)
		if err != nil {
			continue
		}
		switch m.Metric {
		case models.MetricHeartRate:
			hr = append(hr, m.Value)
		case models.MetricBloodPressure:
			sys = append(sys, m.Value)
			dia = append(dia, *m.Secondary)
		case models.MetricBloodSugar:
			sugar = append(sugar, m.Value)
		case models.MetricSteps:
			steps = append(steps, m.Value)
		}
	}
	return models.WeeklyReport{
		UserID:     uid,
		HeartRate:  models.Summarize(hr),
		Systolic:   models.Summarize(sys),
		Diastolic:  models.Summarize(dia),
		BloodSugar: models.Summarize(sugar),
		Steps:      models.Summarize(steps),
	}
}
