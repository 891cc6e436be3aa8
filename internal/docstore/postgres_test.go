package docstore

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, zap.NewNop()), mock
}

func TestPostgresStore_Set(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data")).
		WithArgs("users/u1/healthData/r1", "users/u1/healthData", "r1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Set(context.Background(), HealthDataPath("u1", "r1"), Document{"value": 72})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Merge(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("data = documents.data || EXCLUDED.data")).
		WithArgs("users/u1", "users", "u1", []byte(`{"fcmToken":"tok"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Merge(context.Background(), UserPath("u1"), Document{"fcmToken": "tok"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM documents WHERE path = $1")).
		WithArgs("users/u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"email":"a@b.c","caregiverIds":["c1"]}`)))

	snap, err := s.Get(context.Background(), UserPath("u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.ID)
	assert.Equal(t, "a@b.c", snap.Data["email"])
	assert.Equal(t, []interface{}{"c1"}, snap.Data["caregiverIds"])
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM documents")).
		WithArgs("users/u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := s.Get(context.Background(), UserPath("u1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"doc_id", "data"}).
		AddRow("r1", []byte(`{"type":"heart_rate","timestamp":100}`)).
		AddRow("bad", []byte(`not json`)).
		AddRow("r2", []byte(`{"type":"heart_rate","timestamp":200}`))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc_id, data FROM documents WHERE parent = $1")).
		WithArgs("users/u1/healthData", "heart_rate", int64(50), 10).
		WillReturnRows(rows)

	q := Query{OrderBy: "timestamp", Limit: 10}.
		Where("type", OpEq, "heart_rate").
		Where("timestamp", OpGte, int64(50))
	snaps, err := s.List(context.Background(), HealthDataCollection("u1"), q)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "users/u1/healthData/r2", snaps[1].Path)
	assert.Equal(t, 200.0, snaps[1].Data["timestamp"])
}

func TestBuildListQuery(t *testing.T) {
	q := Query{OrderBy: "createdAt", Desc: true, Limit: 5}.
		Where("read", OpEq, false).
		Where("value", OpGt, 100)
	query, args, err := buildListQuery("users/u1/alerts", q)
	require.NoError(t, err)

	assert.Equal(t, `SELECT doc_id, data FROM documents WHERE parent = $1`+
		` AND (data->>'read')::boolean = $2`+
		` AND (data->>'value')::numeric > $3`+
		` ORDER BY data->'createdAt' DESC LIMIT $4`, query)
	assert.Equal(t, []interface{}{"users/u1/alerts", false, 100, 5}, args)
}

func TestBuildListQuery_RejectsInjection(t *testing.T) {
	_, _, err := buildListQuery("users", Query{}.Where("x'; DROP TABLE documents; --", OpEq, 1))
	assert.Error(t, err)

	_, _, err = buildListQuery("users", Query{OrderBy: "a b"})
	assert.Error(t, err)

	_, _, err = buildListQuery("users", Query{}.Where("x", Op("!="), 1))
	assert.Error(t, err)
}
