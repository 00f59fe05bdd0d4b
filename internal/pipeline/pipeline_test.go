package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leibridge/leibridge/internal/dataset"
	"github.com/leibridge/leibridge/internal/fmr"
	"github.com/leibridge/leibridge/internal/pipeline"
	"github.com/leibridge/leibridge/internal/registry"
	"github.com/leibridge/leibridge/internal/store"
	"github.com/leibridge/leibridge/internal/vtl"
	"github.com/leibridge/leibridge/pkg/models"
)

const leiSample = `LEI,Entity.LegalName,Entity.LegalAddress.Country,Entity.HeadquartersAddress.Country,Entity.EntityCategory,Entity.EntitySubCategory,Entity.LegalForm.EntityLegalFormCode,Entity.EntityStatus,Entity.LegalAddress.PostalCode
529900W18LQJJN6SJ336,Deutsche Boerse AG,DE,DE,GENERAL,,2HBR,ACTIVE,60485
5493001KJTIIGC8Y1R12,Bloomberg Finance L.P.,US,US,GENERAL,,T91T,ACTIVE,10022
254900B5DQLQ9PGXP890,Defunct Holdings Ltd,GB,GB,GENERAL,,H0PO,INACTIVE,EC2N 2DB
`

type fakeValidator struct {
	report  *fmr.Report
	err     error
	payload string
}

func (f *fakeValidator) Validate(_ context.Context, payload string, _ fmr.PollBudget) (*fmr.Report, error) {
	f.payload = payload
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeRegistry struct {
	schema *registry.Schema
	scheme *vtl.Scheme
	err    error
}

func (f *fakeRegistry) GetSchema(context.Context, string, string, string) (*registry.Schema, error) {
	return f.schema, f.err
}

func (f *fakeRegistry) GetTransformationScheme(context.Context, string, string, string) (*vtl.Scheme, error) {
	return f.scheme, f.err
}

type memStore struct {
	runs      map[uuid.UUID]*models.Run
	createErr error
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[uuid.UUID]*models.Run)}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) CreateRun(_ context.Context, run *models.Run) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStore) CompleteRun(_ context.Context, id uuid.UUID, result store.RunResult) error {
	run, ok := m.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = models.RunStatusSucceeded
	run.JobUID = result.JobUID
	run.RowsValidated = result.RowsValidated
	run.FindingCount = result.FindingCount
	run.Report = result.Report
	return nil
}

func (m *memStore) FailRun(_ context.Context, id uuid.UUID, errMsg string) error {
	run, ok := m.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &errMsg
	return nil
}

func (m *memStore) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return run, nil
}

func (m *memStore) ListRuns(context.Context, store.RunFilter) ([]*models.Run, int, error) {
	return nil, 0, nil
}

type fakeRunner struct {
	results []vtl.Result
	err     error
	scheme  *vtl.Scheme
}

func (f *fakeRunner) Run(_ context.Context, scheme *vtl.Scheme, _ *dataset.Table) ([]vtl.Result, error) {
	f.scheme = scheme
	return f.results, f.err
}

func leiSchema() *registry.Schema {
	return &registry.Schema{
		Agency:  "MD",
		ID:      "LEI_DATA",
		Version: "1.0",
		Components: []registry.Component{
			{ID: "LEI", Role: "dimension"},
			{ID: "LEGAL_NAME", Role: "attribute"},
			{ID: "COUNTRY_INCORPORATION", Role: "attribute"},
		},
	}
}

func defaultOpts(st store.Store) pipeline.Options {
	return pipeline.Options{
		Budget:     fmr.PollBudget{MaxAttempts: 3, Interval: time.Millisecond},
		Delimiter:  "comma",
		ActiveOnly: true,
		Schema:     pipeline.ArtifactRef{Agency: "MD", ID: "LEI_DATA", Version: "1.0"},
		Scheme:     pipeline.ArtifactRef{Agency: "MD", ID: "LEI_VALIDATIONS", Version: "1.0"},
		Store:      st,
	}
}

func TestRun_Success(t *testing.T) {
	st := newMemStore()
	val := &fakeValidator{report: &fmr.Report{UID: "job-1", Findings: []fmr.Finding{}}}
	svc := pipeline.NewService(val, &fakeRegistry{schema: leiSchema()}, defaultOpts(st))

	summary, err := svc.Run(context.Background(), "lei.csv", strings.NewReader(leiSample))
	require.NoError(t, err)

	assert.Equal(t, "job-1", summary.Run.JobUID)
	assert.Equal(t, 3, summary.Run.RowsLoaded)
	assert.Equal(t, 2, summary.Run.RowsValidated)
	assert.Equal(t, 0, summary.Run.FindingCount)
	assert.Equal(t, models.RunStatusSucceeded, summary.Run.Status)
	assert.True(t, summary.Report.Clean())

	stored, err := st.GetRun(context.Background(), summary.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, stored.Status)
	assert.Equal(t, "job-1", stored.JobUID)

	assert.True(t, strings.HasPrefix(val.payload, "STRUCTURE,STRUCTURE_ID,ACTION,"))
	assert.Contains(t, val.payload, "datastructure,MD:LEI_DATA(1.0),I,529900W18LQJJN6SJ336")
	assert.NotContains(t, val.payload, "254900B5DQLQ9PGXP890")
}

func TestRun_FindingsRecorded(t *testing.T) {
	st := newMemStore()
	findings := []fmr.Finding{{Type: "Format", Severity: "Error", Message: "bad dimension", Dataset: 0}}
	val := &fakeValidator{report: &fmr.Report{UID: "job-2", Findings: findings}}
	svc := pipeline.NewService(val, &fakeRegistry{schema: leiSchema()}, defaultOpts(st))

	summary, err := svc.Run(context.Background(), "lei.csv", strings.NewReader(leiSample))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Run.FindingCount)
	assert.False(t, summary.Report.Clean())

	stored, err := st.GetRun(context.Background(), summary.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FindingCount)

	var recorded []fmr.Finding
	require.NoError(t, json.Unmarshal(stored.Report, &recorded))
	assert.Equal(t, findings, recorded)
}

func TestRun_ValidatorErrorPropagatesUnchanged(t *testing.T) {
	st := newMemStore()
	wantErr := fmt.Errorf("polling job %q: %w", "job-3", fmr.ErrPollTimeout)
	svc := pipeline.NewService(&fakeValidator{err: wantErr}, &fakeRegistry{schema: leiSchema()}, defaultOpts(st))

	summary, err := svc.Run(context.Background(), "lei.csv", strings.NewReader(leiSample))
	assert.Nil(t, summary)
	require.ErrorIs(t, err, fmr.ErrPollTimeout)
	assert.Equal(t, wantErr, err)

	require.Len(t, st.runs, 1)
	for _, run := range st.runs {
		assert.Equal(t, models.RunStatusFailed, run.Status)
		require.NotNil(t, run.ErrorMessage)
		assert.Contains(t, *run.ErrorMessage, "job-3")
	}
}

func TestRun_LoadFailureLeavesNoRunRecord(t *testing.T) {
	st := newMemStore()
	svc := pipeline.NewService(&fakeValidator{}, &fakeRegistry{schema: leiSchema()}, defaultOpts(st))

	_, err := svc.Run(context.Background(), "empty.csv", strings.NewReader(""))
	require.Error(t, err)
	assert.Empty(t, st.runs)
}

func TestRun_StoreFailureDoesNotAbortPipeline(t *testing.T) {
	st := newMemStore()
	st.createErr = errors.New("connection refused")
	val := &fakeValidator{report: &fmr.Report{UID: "job-4", Findings: []fmr.Finding{}}}
	svc := pipeline.NewService(val, &fakeRegistry{schema: leiSchema()}, defaultOpts(st))

	summary, err := svc.Run(context.Background(), "lei.csv", strings.NewReader(leiSample))
	require.NoError(t, err)
	assert.Equal(t, "job-4", summary.Run.JobUID)
	assert.Empty(t, st.runs)
}

func TestRun_ReportPersistedToLogsDir(t *testing.T) {
	logsDir := t.TempDir()
	opts := defaultOpts(nil)
	opts.LogsDir = logsDir

	report := &fmr.Report{UID: "job-5", Findings: []fmr.Finding{{Severity: "Warning", Message: "odd code"}}}
	svc := pipeline.NewService(&fakeValidator{report: report}, &fakeRegistry{schema: leiSchema()}, opts)

	_, err := svc.Run(context.Background(), "lei.csv", strings.NewReader(leiSample))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(logsDir, "structural_validation_logs.json"))
	require.NoError(t, err)

	var persisted fmr.Report
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, report.UID, persisted.UID)
	assert.Equal(t, report.Findings, persisted.Findings)
}

func TestRun_OutputPathWritten(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "lei_sdmx.csv")
	opts := defaultOpts(nil)
	opts.OutputPath = outPath

	val := &fakeValidator{report: &fmr.Report{UID: "job-6", Findings: []fmr.Finding{}}}
	svc := pipeline.NewService(val, &fakeRegistry{schema: leiSchema()}, opts)

	_, err := svc.Run(context.Background(), "lei.csv", strings.NewReader(leiSample))
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, val.payload, string(data))
}

func TestRun_VTLResultsPersisted(t *testing.T) {
	logsDir := t.TempDir()
	opts := defaultOpts(nil)
	opts.LogsDir = logsDir

	scheme := &vtl.Scheme{
		Agency:  "MD",
		ID:      "LEI_VALIDATIONS",
		Version: "1.0",
		Transformations: []vtl.Transformation{
			{ID: "T1", Expression: "check(LEI <> \"\")", Result: "lei_present", Persistent: true},
		},
	}
	runner := &fakeRunner{results: []vtl.Result{{
		Name:  "lei_present",
		Table: &dataset.Table{Columns: []string{"LEI", "bool_var"}, Rows: [][]string{{"529900W18LQJJN6SJ336", "true"}}},
	}}}
	opts.Runner = runner

	val := &fakeValidator{report: &fmr.Report{UID: "job-7", Findings: []fmr.Finding{}}}
	svc := pipeline.NewService(val, &fakeRegistry{schema: leiSchema(), scheme: scheme}, opts)

	summary, err := svc.Run(context.Background(), "lei.csv", strings.NewReader(leiSample))
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, scheme, runner.scheme)

	data, err := os.ReadFile(filepath.Join(logsDir, "lei_present_logs.csv"))
	require.NoError(t, err)
	assert.Equal(t, "LEI,bool_var\n529900W18LQJJN6SJ336,true\n", string(data))
}

func TestRunFile_MissingInput(t *testing.T) {
	svc := pipeline.NewService(&fakeValidator{}, &fakeRegistry{schema: leiSchema()}, defaultOpts(nil))
	_, err := svc.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening input")
}
