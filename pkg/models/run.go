package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Run records one execution of the validation pipeline, whether triggered by
// the CLI or the gateway API. The stored report is the raw FMR validation
// report for the run; a succeeded run with a non-zero FindingCount finished
// cleanly at the protocol level but carried data-quality findings.
type Run struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	Source        string          `db:"source"         json:"source"`
	JobUID        string          `db:"job_uid"        json:"job_uid,omitempty"`
	Status        string          `db:"status"         json:"status"`
	RowsLoaded    int             `db:"rows_loaded"    json:"rows_loaded"`
	RowsValidated int             `db:"rows_validated" json:"rows_validated"`
	FindingCount  int             `db:"finding_count"  json:"finding_count"`
	Report        json.RawMessage `db:"report"         json:"report,omitempty"`
	ErrorMessage  *string         `db:"error_message"  json:"error_message,omitempty"`
	StartedAt     time.Time       `db:"started_at"     json:"started_at"`
	CompletedAt   *time.Time      `db:"completed_at"   json:"completed_at,omitempty"`
}
