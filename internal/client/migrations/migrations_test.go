package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/fieldline/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestUp_CreatesTablesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Up(ctx, db))
	require.NoError(t, Up(ctx, db))

	for _, table := range []string{"goose_db_version", "attachment_records", "attachments", "pending_actions", "failed_actions", "metadata"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}
