package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leibridge/leibridge/internal/store"
	"github.com/leibridge/leibridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("leibridge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newRun(source string) *models.Run {
	return &models.Run{
		ID:         uuid.New(),
		Source:     source,
		Status:     models.RunStatusRunning,
		RowsLoaded: 100,
		StartedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestRun_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	run := newRun("gleif-goldencopy-lei2.csv")
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "gleif-goldencopy-lei2.csv", got.Source)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Equal(t, 100, got.RowsLoaded)
	assert.Nil(t, got.CompletedAt)
}

func TestRun_Complete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	run := newRun("lei.csv")
	require.NoError(t, s.CreateRun(ctx, run))

	report := json.RawMessage(`[{"Severity":"Error","Message":"Missing LEGAL_FORM"}]`)
	err := s.CompleteRun(ctx, run.ID, store.RunResult{
		JobUID:        "abc123",
		RowsValidated: 98,
		FindingCount:  1,
		Report:        report,
	})
	require.NoError(t, err)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, got.Status)
	assert.Equal(t, "abc123", got.JobUID)
	assert.Equal(t, 98, got.RowsValidated)
	assert.Equal(t, 1, got.FindingCount)
	assert.JSONEq(t, string(report), string(got.Report))
	assert.NotNil(t, got.CompletedAt)
}

func TestRun_Fail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	run := newRun("lei.csv")
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.FailRun(ctx, run.ID, "poll timeout after 5s"))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "poll timeout after 5s", *got.ErrorMessage)
}

func TestRun_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_CompleteMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.CompleteRun(context.Background(), uuid.New(), store.RunResult{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := newRun("lei.csv")
		run.StartedAt = run.StartedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateRun(ctx, run))
		if i == 0 {
			require.NoError(t, s.FailRun(ctx, run.ID, "boom"))
		}
	}

	runs, total, err := s.ListRuns(ctx, store.RunFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, runs, 2)
	// Newest first.
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))

	failed, total, err := s.ListRuns(ctx, store.RunFilter{Status: models.RunStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, failed, 1)
	assert.Equal(t, models.RunStatusFailed, failed[0].Status)
}
