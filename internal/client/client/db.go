package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/fieldline/internal/client/migrations"
	"github.com/dmitrijs2005/fieldline/internal/client/repositories/actions"
	"github.com/dmitrijs2005/fieldline/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/fieldline/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/dbx"
)

// Repositories share one SQLite database; each logical store has its own
// tables.
type Repositories struct {
	Metadata    metadata.Repository
	Attachments attachments.Repository
	Actions     actions.Repository
}

// InitDatabase opens the store at dsn and brings its schema up to date.
// Failures wrap common.ErrStorageUnavailable.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, *Repositories, error) {
	db, err := dbx.OpenSQLite(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}

	repos := &Repositories{
		Metadata:    metadata.NewSQLiteRepository(db),
		Attachments: attachments.NewSQLiteRepository(db),
		Actions:     actions.NewSQLiteRepository(db),
	}
	return db, repos, nil
}
