package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/validate"
)

// Outcome is what a successful submission produced.
type Outcome struct {
	// RemoteID is the backend id of the created entity.
	RemoteID string
	// LocalRef is the id the entity was known by before submission.
	LocalRef string
}

// Handler submits one action of a given kind. Returned errors are
// classified with common.IsPermanent; anything else is retried.
type Handler func(ctx context.Context, a models.PendingAction) (Outcome, error)

type IncidentReporter interface {
	ReportIncident(ctx context.Context, report models.IncidentReport, idempotencyKey string) (string, error)
}

// IncidentHandler submits incident-report actions. A payload that no longer
// decodes or validates is a permanent failure.
func IncidentHandler(c IncidentReporter) Handler {
	return func(ctx context.Context, a models.PendingAction) (Outcome, error) {
		var r models.IncidentReport
		if err := json.Unmarshal(a.Payload, &r); err != nil {
			return Outcome{}, fmt.Errorf("decode %s payload: %w: %w", a.Kind, common.ErrValidation, err)
		}
		if err := validate.Struct(r); err != nil {
			return Outcome{}, err
		}

		remoteID, err := c.ReportIncident(ctx, r, a.IdempotencyKey)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{RemoteID: remoteID, LocalRef: r.LocalID}, nil
	}
}
