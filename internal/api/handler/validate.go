package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/leibridge/leibridge/internal/api/response"
	"github.com/leibridge/leibridge/internal/fmr"
	"github.com/leibridge/leibridge/internal/pipeline"
)

// maxUploadBytes caps the multipart form size for validation uploads.
const maxUploadBytes = 64 << 20

// Pipeline defines the interface the validation handler depends on.
type Pipeline interface {
	Run(ctx context.Context, source string, input io.Reader) (*pipeline.RunSummary, error)
}

type validationResponse struct {
	RunID         string        `json:"run_id"`
	Source        string        `json:"source"`
	JobUID        string        `json:"job_uid"`
	Status        string        `json:"status"`
	RowsLoaded    int           `json:"rows_loaded"`
	RowsValidated int           `json:"rows_validated"`
	FindingCount  int           `json:"finding_count"`
	Findings      []fmr.Finding `json:"findings"`
}

// NewValidateHandler returns an http.HandlerFunc for POST /api/v1/validations.
// The uploaded CSV runs through the full pipeline synchronously; the response
// carries the validation outcome.
func NewValidateHandler(svc Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request body must be multipart/form-data", nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Multipart field 'file' is required", nil)
			return
		}
		defer file.Close()

		summary, err := svc.Run(r.Context(), header.Filename, file)
		if err != nil {
			writeValidationError(w, err)
			return
		}

		response.Created(w, validationResponse{
			RunID:         summary.Run.ID.String(),
			Source:        summary.Run.Source,
			JobUID:        summary.Report.UID,
			Status:        summary.Run.Status,
			RowsLoaded:    summary.Run.RowsLoaded,
			RowsValidated: summary.Run.RowsValidated,
			FindingCount:  len(summary.Report.Findings),
			Findings:      summary.Report.Findings,
		})
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fmr.ErrInvalidConfiguration):
		response.Error(w, http.StatusBadRequest, "INVALID_CONFIGURATION",
			err.Error(), nil)
	case errors.Is(err, fmr.ErrUploadRejected):
		response.Error(w, http.StatusBadGateway, "UPLOAD_REJECTED",
			"The validation service rejected the upload", detailFor(err))
	case errors.Is(err, fmr.ErrRemoteValidation):
		response.Error(w, http.StatusBadGateway, "REMOTE_VALIDATION_FAILED",
			"The validation service could not process the dataset", detailFor(err))
	case errors.Is(err, fmr.ErrMalformedResponse):
		response.Error(w, http.StatusBadGateway, "MALFORMED_RESPONSE",
			"The validation service returned an unreadable response", nil)
	case errors.Is(err, fmr.ErrPollTimeout):
		response.Error(w, http.StatusGatewayTimeout, "POLL_TIMEOUT",
			"Validation did not finish within the polling budget", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// detailFor surfaces structured context from typed FMR errors.
func detailFor(err error) any {
	var uploadErr *fmr.UploadError
	if errors.As(err, &uploadErr) {
		return map[string]any{"status_code": uploadErr.StatusCode, "body": uploadErr.Body}
	}
	var remoteErr *fmr.RemoteError
	if errors.As(err, &remoteErr) {
		return map[string]any{"status": remoteErr.Status}
	}
	return nil
}
