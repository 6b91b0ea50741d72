package blobstore

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/cryptox"
	"github.com/dmitrijs2005/fieldline/internal/netx"
)

// Presigner hands out presigned upload URLs. The backend client implements
// it.
type Presigner interface {
	PresignAttachmentUpload(ctx context.Context, req models.UploadRequest) (models.UploadTicket, error)
}

// PresignedUploader asks the backend for a presigned URL and PUTs the bytes
// there directly.
type PresignedUploader struct {
	presigner Presigner
	http      *http.Client
}

func NewPresignedUploader(p Presigner, httpClient *http.Client) *PresignedUploader {
	return &PresignedUploader{presigner: p, http: httpClient}
}

func (u *PresignedUploader) Upload(ctx context.Context, file models.RawFile) (string, error) {
	key := cryptox.ObjectKey(cryptox.ContentAddress(file.Data), file.Name)

	ticket, err := u.presigner.PresignAttachmentUpload(ctx, models.UploadRequest{
		Key:         key,
		ContentType: file.MimeType,
		SizeBytes:   int64(len(file.Data)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %w", common.ErrRemoteUpload, key, err)
	}

	if err := netx.PutPresigned(ctx, u.http, ticket.UploadURL, file.MimeType, file.Data); err != nil {
		return "", fmt.Errorf("%w: put %s: %w", common.ErrRemoteUpload, key, err)
	}

	return ticket.Locator, nil
}
