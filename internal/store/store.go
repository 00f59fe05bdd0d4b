package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/leibridge/leibridge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface for pipeline run records.
type Store interface {
	Ping(ctx context.Context) error

	CreateRun(ctx context.Context, run *models.Run) error
	CompleteRun(ctx context.Context, id uuid.UUID, result RunResult) error
	FailRun(ctx context.Context, id uuid.UUID, errMsg string) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, int, error)
}

// RunResult carries the terminal data recorded against a successful run.
type RunResult struct {
	JobUID        string
	RowsValidated int
	FindingCount  int
	Report        json.RawMessage
}

// RunFilter selects and pages the run listing.
type RunFilter struct {
	Status string
	Page   int
	Limit  int
}
