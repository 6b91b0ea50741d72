// Package blobstore uploads evidence bytes to a remote content-addressed
// store. Every failure wraps common.ErrRemoteUpload so callers can fall back
// to local embedding.
package blobstore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
)

// Uploader stores one file remotely and returns its stable locator.
type Uploader interface {
	Upload(ctx context.Context, file models.RawFile) (string, error)
}

// Disabled is used when no remote store is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, models.RawFile) (string, error) {
	return "", fmt.Errorf("%w: remote store disabled", common.ErrRemoteUpload)
}
