package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	last   models.UploadRequest
	ticket models.UploadTicket
	err    error
}

func (f *fakePresigner) PresignAttachmentUpload(ctx context.Context, req models.UploadRequest) (models.UploadTicket, error) {
	f.last = req
	return f.ticket, f.err
}

func TestPresignedUploader_Upload(t *testing.T) {
	var got []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := &fakePresigner{ticket: models.UploadTicket{UploadURL: ts.URL + "/put", Locator: "https://cdn.example/ab/abc.jpg"}}
	u := NewPresignedUploader(p, ts.Client())

	loc, err := u.Upload(context.Background(), models.RawFile{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/ab/abc.jpg", loc)
	assert.Equal(t, []byte("img"), got)
	assert.Equal(t, int64(3), p.last.SizeBytes)
	assert.Equal(t, "image/jpeg", p.last.ContentType)
	assert.Regexp(t, `\.jpg$`, p.last.Key)
}

func TestPresignedUploader_PresignError(t *testing.T) {
	u := NewPresignedUploader(&fakePresigner{err: common.ErrTransientNetwork}, nil)

	_, err := u.Upload(context.Background(), models.RawFile{Data: []byte{1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrRemoteUpload))
	assert.True(t, errors.Is(err, common.ErrTransientNetwork))
}

func TestPresignedUploader_PutRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	u := NewPresignedUploader(&fakePresigner{ticket: models.UploadTicket{UploadURL: ts.URL}}, nil)
	_, err := u.Upload(context.Background(), models.RawFile{Data: []byte{1}})
	assert.True(t, errors.Is(err, common.ErrRemoteUpload))
}
