package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"parent-wellness/internal/models"

	"go.uber.org/zap"
)

// ErrNotFound no row with the requested id
var ErrNotFound = errors.New("reading not found")

// table column layout of one metric table
type table struct {
	name      string
	value     string // primary value column
	secondary string // diastolic for blood pressure, "" otherwise
	accuracy  bool
}

var tables = map[models.Metric]table{
	models.MetricHeartRate:     {name: "heart_rate_readings", value: "bpm", accuracy: true},
	models.MetricBloodPressure: {name: "blood_pressure_readings", value: "systolic", secondary: "diastolic"},
	models.MetricBloodSugar:    {name: "blood_sugar_readings", value: "mg_dl"},
	models.MetricSteps:         {name: "steps_readings", value: "step_count"},
}

func (t table) columns() []string {
	cols := []string{"id", "user_id", t.value}
	if t.secondary != "" {
		cols = append(cols, t.secondary)
	}
	if t.accuracy {
		cols = append(cols, "accuracy")
	}
	return append(cols, "timestamp", "situation", "sync_status", "last_sync_attempt")
}

func (t table) createSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.name)
	b.WriteString("\tid TEXT PRIMARY KEY,\n\tuser_id TEXT NOT NULL,\n")
	fmt.Fprintf(&b, "\t%s REAL NOT NULL,\n", t.value)
	if t.secondary != "" {
		fmt.Fprintf(&b, "\t%s REAL NOT NULL,\n", t.secondary)
	}
	if t.accuracy {
		b.WriteString("\taccuracy INTEGER,\n")
	}
	b.WriteString("\ttimestamp INTEGER NOT NULL,\n\tsituation TEXT NOT NULL DEFAULT '',\n")
	b.WriteString("\tsync_status TEXT NOT NULL DEFAULT 'PENDING',\n\tlast_sync_attempt INTEGER\n)")
	return b.String()
}

// Cache local persisted store of readings, one table per metric.
// A single Cache (and *sql.DB) is shared by ingestion and the sync workers.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps db and creates the tables if needed
func New(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Cache, error) {
	c := &Cache{db: db, logger: logger}
	if err := c.migrate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate(ctx context.Context) error {
	for _, m := range models.AllMetrics {
		t := tables[m]
		stmts := []string{
			t.createSQL(),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_sync_status ON %s (sync_status)", t.name, t.name),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user_ts ON %s (user_id, timestamp)", t.name, t.name),
		}
		for _, stmt := range stmts {
			if _, err := c.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to migrate %s: %w", t.name, err)
			}
		}
	}
	return nil
}

func tableFor(m models.Metric) (table, error) {
	t, ok := tables[m]
	if !ok {
		return table{}, fmt.Errorf("unknown metric: %q", m)
	}
	return t, nil
}

// Insert stores a new reading; a duplicate id is an error
func (c *Cache) Insert(ctx context.Context, r *models.Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}
	t, _ := tableFor(r.Metric)

	status := r.SyncStatus
	if status == "" {
		status = models.SyncPending
	}

	args := []interface{}{r.ID, r.UserID, r.Value}
	if t.secondary != "" {
		args = append(args, *r.Secondary)
	}
	if t.accuracy {
		args = append(args, nullableInt(r.Accuracy))
	}
	args = append(args, r.Timestamp, r.Situation, string(status), nullableInt64(r.LastSyncAttempt))

	cols := t.columns()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(cols, ", "), placeholders(len(cols)))

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert reading %s: %w", r.ID, err)
	}
	return nil
}

// Get returns one reading by id
func (c *Cache) Get(ctx context.Context, metric models.Metric, id string) (*models.Reading, error) {
	t, err := tableFor(metric)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(t.columns(), ", "), t.name)

	r, err := scanReading(c.db.QueryRowContext(ctx, query, id), t, metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reading %s: %w", id, err)
	}
	return r, nil
}

// ListByStatus readings in any of statuses, oldest first
func (c *Cache) ListByStatus(ctx context.Context, metric models.Metric, statuses ...models.SyncStatus) ([]*models.Reading, error) {
	t, err := tableFor(metric)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE sync_status IN (%s) ORDER BY timestamp ASC",
		strings.Join(t.columns(), ", "), t.name, placeholders(len(statuses)))
	return c.list(ctx, t, metric, query, args...)
}

// ListByUser readings of userID with timestamp in [from, to], oldest first.
// A zero bound is open.
func (c *Cache) ListByUser(ctx context.Context, metric models.Metric, userID string, from, to time.Time) ([]*models.Reading, error) {
	t, err := tableFor(metric)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = ?", strings.Join(t.columns(), ", "), t.name)
	args := []interface{}{userID}
	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.UnixMilli())
	}
	query += " ORDER BY timestamp ASC"
	return c.list(ctx, t, metric, query, args...)
}

func (c *Cache) list(ctx context.Context, t table, metric models.Metric, query string, args ...interface{}) ([]*models.Reading, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []*models.Reading
	for rows.Next() {
		r, err := scanReading(rows, t, metric)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateSyncStatus sets status and last attempt; other fields never change
func (c *Cache) UpdateSyncStatus(ctx context.Context, metric models.Metric, id string, status models.SyncStatus, attemptAt time.Time) error {
	t, err := tableFor(metric)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET sync_status = ?, last_sync_attempt = ? WHERE id = ?", t.name)
	res, err := c.db.ExecContext(ctx, query, string(status), attemptAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update sync status of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetStale returns SYNCING rows last attempted before cutoff to PENDING.
// They are left behind when a sync run dies mid-flight.
func (c *Cache) ResetStale(ctx context.Context, metric models.Metric, cutoff time.Time) (int64, error) {
	t, err := tableFor(metric)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`UPDATE %s SET sync_status = ?
		WHERE sync_status = ? AND (last_sync_attempt IS NULL OR last_sync_attempt < ?)`, t.name)
	res, err := c.db.ExecContext(ctx, query, string(models.SyncPending), string(models.SyncSyncing), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale rows in %s: %w", t.name, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.logger.Warn("Reset stale syncing rows",
			zap.String("table", t.name),
			zap.Int64("count", n),
		)
	}
	return n, nil
}

// CountByStatus row count per sync status
func (c *Cache) CountByStatus(ctx context.Context, metric models.Metric) (map[models.SyncStatus]int, error) {
	t, err := tableFor(metric)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT sync_status, COUNT(*) FROM %s GROUP BY sync_status", t.name))
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	defer rows.Close()

	counts := make(map[models.SyncStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.SyncStatus(status)] = n
	}
	return counts, rows.Err()
}

// WipeUser deletes every reading of userID from all tables atomically
func (c *Cache) WipeUser(ctx context.Context, userID string) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin wipe: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, m := range models.AllMetrics {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", tables[m].name), userID)
		if err != nil {
			return 0, fmt.Errorf("failed to wipe %s: %w", tables[m].name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit wipe: %w", err)
	}

	c.logger.Info("Wiped local readings",
		zap.String("user_id", userID),
		zap.Int64("rows", total),
	)
	return total, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(s scanner, t table, metric models.Metric) (*models.Reading, error) {
	r := &models.Reading{Metric: metric}
	var (
		secondary sql.NullFloat64
		accuracy  sql.NullInt64
		attempt   sql.NullInt64
		status    string
	)
	dest := []interface{}{&r.ID, &r.UserID, &r.Value}
	if t.secondary != "" {
		dest = append(dest, &secondary)
	}
	if t.accuracy {
		dest = append(dest, &accuracy)
	}
	dest = append(dest, &r.Timestamp, &r.Situation, &status, &attempt)

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	r.SyncStatus = models.SyncStatus(status)
	if secondary.Valid {
		r.Secondary = models.FloatPtr(secondary.Float64)
	}
	if accuracy.Valid {
		r.Accuracy = models.IntPtr(int(accuracy.Int64))
	}
	if attempt.Valid {
		v := attempt.Int64
		r.LastSyncAttempt = &v
	}
	return r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
