package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leibridge/leibridge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const runColumns = `id, source, job_uid, status, rows_loaded, rows_validated, finding_count, report, error_message, started_at, completed_at`

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, status, rows_loaded, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Source, run.Status, run.RowsLoaded, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id uuid.UUID, result RunResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs
		 SET status = $2, job_uid = $3, rows_validated = $4, finding_count = $5, report = $6, completed_at = $7
		 WHERE id = $1`,
		id, models.RunStatusSucceeded, result.JobUID, result.RowsValidated,
		result.FindingCount, []byte(result.Report), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, error_message = $3, completed_at = $4 WHERE id = $1`,
		id, models.RunStatusFailed, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int
	countQuery := `SELECT COUNT(*) FROM runs`
	args := []any{}
	if filter.Status != "" {
		countQuery += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args = args[:0]
	if filter.Status != "" {
		query += ` WHERE status = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`
		args = append(args, filter.Status, limit, offset)
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var r models.Run
	var jobUID *string
	var report []byte
	err := row.Scan(&r.ID, &r.Source, &jobUID, &r.Status, &r.RowsLoaded, &r.RowsValidated,
		&r.FindingCount, &report, &r.ErrorMessage, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if jobUID != nil {
		r.JobUID = *jobUID
	}
	r.Report = report
	return &r, nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
