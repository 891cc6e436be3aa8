package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// PostgresStore keeps every document in one JSONB table keyed by path
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const createDocumentsSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	parent     TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents (parent)`

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewPostgresStore wraps db; call Migrate before first use on a fresh database
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Migrate creates the documents table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDocumentsSQL); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, doc Document) error {
	return s.upsert(ctx, path, doc, `
		INSERT INTO documents (path, parent, doc_id, data, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`)
}

func (s *PostgresStore) Merge(ctx context.Context, path string, doc Document) error {
	return s.upsert(ctx, path, doc, `
		INSERT INTO documents (path, parent, doc_id, data, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (path) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = NOW()`)
}

func (s *PostgresStore) upsert(ctx context.Context, path string, doc Document, query string) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}
	if _, err := s.db.ExecContext(ctx, query, parent+"/"+id, parent, id, data); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (*Snapshot, error) {
	parent, id, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	key := parent + "/" + id

	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}

	doc, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return &Snapshot{ID: id, Path: key, Data: doc}, nil
}

// List pushes filters, ordering and limit down to SQL
func (s *PostgresStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	collection, err := validCollection(collection)
	if err != nil {
		return nil, err
	}
	query, args, err := buildListQuery(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		doc, err := decode(raw)
		if err != nil {
			s.logger.Warn("Skipping undecodable document",
				zap.String("collection", collection),
				zap.String("doc_id", id),
				zap.Error(err),
			)
			continue
		}
		snaps = append(snaps, Snapshot{ID: id, Path: collection + "/" + id, Data: doc})
	}
	return snaps, rows.Err()
}

func buildListQuery(collection string, q Query) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString(`SELECT doc_id, data FROM documents WHERE parent = $1`)
	args := []interface{}{collection}

	for _, f := range q.Filters {
		if !fieldName.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field: %q", f.Field)
		}
		op, err := sqlOp(f.Op)
		if err != nil {
			return "", nil, err
		}
		args = append(args, f.Value)
		n := len(args)
		switch f.Value.(type) {
		case string:
			fmt.Fprintf(&b, ` AND data->>'%s' %s $%d`, f.Field, op, n)
		case bool:
			fmt.Fprintf(&b, ` AND (data->>'%s')::boolean %s $%d`, f.Field, op, n)
		default:
			fmt.Fprintf(&b, ` AND (data->>'%s')::numeric %s $%d`, f.Field, op, n)
		}
	}

	if q.OrderBy != "" {
		if !fieldName.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("invalid order field: %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY data->'%s' %s`, q.OrderBy, dir)
	} else {
		b.WriteString(` ORDER BY doc_id ASC`)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return b.String(), args, nil
}

func sqlOp(op Op) (string, error) {
	switch op {
	case OpEq:
		return "=", nil
	case OpGte, OpLte, OpGt, OpLt:
		return string(op), nil
	}
	return "", fmt.Errorf("unsupported operator: %q", op)
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, parent+"/"+id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func decode(raw []byte) (Document, error) {
	doc := make(Document)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
