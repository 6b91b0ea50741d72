// Package common defines shared constants and sentinel errors used across
// client and devserver layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Local durable storage errors.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")

	// Remote call errors. Transient ones are retried, permanent ones are
	// moved aside for manual resolution.
	ErrTransientNetwork   = errors.New("transient network error")
	ErrPermanentRejection = errors.New("permanent rejection")
	ErrUnauthorized       = errors.New("unauthorized")

	// Evidence upload errors (missing credentials, rejected upload).
	ErrRemoteUpload = errors.New("remote upload failed")

	// Payload validation.
	ErrValidation = errors.New("validation error")
)

// IsTransient reports whether err should be retried later rather than
// dropped. Unauthorized is transient: the action waits for credentials.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrUnauthorized)
}

// IsPermanent reports whether the remote definitively refused the request.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentRejection) || errors.Is(err, ErrValidation)
}
