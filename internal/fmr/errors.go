package fmr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for FMR client failures. Callers match with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid validation configuration")
	ErrUploadRejected       = errors.New("upload rejected")
	ErrMalformedResponse    = errors.New("malformed fmr response")
	ErrRemoteValidation     = errors.New("remote validation failed")
	ErrPollTimeout          = errors.New("validation poll timeout")
)

// UploadError carries the HTTP status and verbatim body of a rejected upload.
// Uploads are not retried; a rejection is assumed non-transient.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload rejected: status %d: %s", e.StatusCode, e.Body)
}

func (e *UploadError) Unwrap() error { return ErrUploadRejected }

// RemoteError carries the full diagnostic payload of a server-reported
// terminal error state (e.g. IncorrectDSD, MissingDSD).
type RemoteError struct {
	Status  string
	Payload json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote validation failed: status %q: %s", e.Status, string(e.Payload))
}

func (e *RemoteError) Unwrap() error { return ErrRemoteValidation }
