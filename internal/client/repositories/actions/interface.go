package actions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
)

type Repository interface {
	Append(ctx context.Context, a models.PendingAction) error
	List(ctx context.Context) ([]models.PendingAction, error)
	ListKind(ctx context.Context, kind string) ([]models.PendingAction, error)
	// Kinds returns distinct kinds ordered by their oldest pending action.
	Kinds(ctx context.Context) ([]string, error)
	DeleteFirst(ctx context.Context, n int) (int64, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	RecordAttempt(ctx context.Context, id string, lastErr string) error

	// MoveToFailed atomically removes a pending action and stores it as
	// failed. It returns common.ErrNotFound if id is not pending.
	MoveToFailed(ctx context.Context, id, reason string, at time.Time) error
	ListFailed(ctx context.Context) ([]models.FailedAction, error)
	DeleteFailed(ctx context.Context, id string) (bool, error)
	// Requeue moves a failed action back to the tail of the pending queue.
	Requeue(ctx context.Context, id string) (models.PendingAction, error)
}
