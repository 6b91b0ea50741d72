package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldline/internal/client/migrations"
	"github.com/dmitrijs2005/fieldline/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newRepo(t *testing.T) (*SQLiteRepository, *clock) {
	t.Helper()
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(ctx, db))

	c := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	r := NewSQLiteRepository(db)
	r.now = c.now
	return r, c
}

func TestGet_Absent(t *testing.T) {
	r, _ := newRepo(t)

	v, err := r.Get(context.Background(), "presented", "n1")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPut_Upserts(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "presented", "n1", []byte("a")))
	require.NoError(t, r.Put(ctx, "presented", "n1", []byte("b")))

	v, err := r.Get(ctx, "presented", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)
}

func TestPut_NilValueReadsBackEmpty(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "presented", "n1", nil))
	v, err := r.Get(ctx, "presented", "n1")
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Empty(t, v)
}

func TestPutIfAbsent(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	added, err := r.PutIfAbsent(ctx, "presented", "n1", []byte("first"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.PutIfAbsent(ctx, "presented", "n1", []byte("second"))
	require.NoError(t, err)
	assert.False(t, added)

	v, err := r.Get(ctx, "presented", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), v)
}

func TestNamespacesAreIsolated(t *testing.T) {
	r, _ := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "presented", "x", []byte("1")))
	added, err := r.PutIfAbsent(ctx, "other", "x", []byte("2"))
	require.NoError(t, err)
	assert.True(t, added)

	list, err := r.List(ctx, "presented")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []byte("1"), list[0].Value)
}

func TestListAndPruneBefore(t *testing.T) {
	r, c := newRepo(t)
	ctx := context.Background()
	start := c.t

	require.NoError(t, r.Put(ctx, "presented", "old", nil))
	c.t = start.Add(time.Hour)
	require.NoError(t, r.Put(ctx, "presented", "mid", nil))
	c.t = start.Add(2 * time.Hour)
	require.NoError(t, r.Put(ctx, "presented", "new", nil))
	require.NoError(t, r.Put(ctx, "other", "old", nil))

	list, err := r.List(ctx, "presented")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"old", "mid", "new"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, start, list[0].UpdatedAt)

	n, err := r.PruneBefore(ctx, "presented", start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err = r.List(ctx, "presented")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)

	v, err := r.Get(ctx, "other", "old")
	require.NoError(t, err)
	assert.NotNil(t, v, "other namespaces are untouched")
}

func TestDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(`SELECT value FROM metadata`).WillReturnError(boom)
	_, err = r.Get(ctx, "ns", "id")
	require.ErrorIs(t, err, boom)

	mock.ExpectExec(`INSERT INTO metadata .* DO UPDATE`).WillReturnError(boom)
	require.ErrorContains(t, r.Put(ctx, "ns", "id", nil), "failed to put metadata[ns/id]")

	mock.ExpectExec(`INSERT INTO metadata .* DO NOTHING`).WillReturnResult(sqlmock.NewErrorResult(boom))
	_, err = r.PutIfAbsent(ctx, "ns", "id", nil)
	require.ErrorContains(t, err, "rows affected")

	mock.ExpectQuery(`SELECT id, value, updated_at FROM metadata`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "value", "updated_at"}).
			AddRow("a", []byte("v"), int64(1)).
			RowError(0, boom))
	_, err = r.List(ctx, "ns")
	require.ErrorIs(t, err, boom)

	mock.ExpectExec(`DELETE FROM metadata`).WillReturnError(boom)
	_, err = r.PruneBefore(ctx, "ns", time.Now())
	require.ErrorContains(t, err, "failed to prune metadata[ns]")

	require.NoError(t, mock.ExpectationsWereMet())
}
