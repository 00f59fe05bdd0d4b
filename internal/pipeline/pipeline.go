// Package pipeline composes the LEI-to-SDMX stages: load, reshape, serialize,
// validate against FMR, and optionally run VTL data-quality checks.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/leibridge/leibridge/internal/dataset"
	"github.com/leibridge/leibridge/internal/fmr"
	"github.com/leibridge/leibridge/internal/registry"
	"github.com/leibridge/leibridge/internal/store"
	"github.com/leibridge/leibridge/internal/vtl"
	"github.com/leibridge/leibridge/pkg/models"
)

// Validator is the slice of the FMR client the pipeline depends on.
type Validator interface {
	Validate(ctx context.Context, payload string, budget fmr.PollBudget) (*fmr.Report, error)
}

// ArtifactRef identifies a versioned registry artifact.
type ArtifactRef struct {
	Agency  string
	ID      string
	Version string
}

// Options configures one pipeline Service.
type Options struct {
	Budget     fmr.PollBudget
	Delimiter  string
	RowLimit   int
	ActiveOnly bool
	OutputPath string
	LogsDir    string
	Schema     ArtifactRef
	Scheme     ArtifactRef

	// Optional collaborators. A nil Store skips run recording; a nil Runner
	// skips the VTL stage.
	Store  store.Store
	Runner vtl.Runner
}

// RunSummary is the terminal artifact of one pipeline execution.
type RunSummary struct {
	Run     *models.Run
	Report  *fmr.Report
	Results []vtl.Result
}

// Service orchestrates the pipeline. Each Run call is independent; the
// Service holds no per-run state and may serve concurrent calls.
type Service struct {
	validator Validator
	registry  registry.Client
	opts      Options
}

// NewService creates a pipeline service.
func NewService(validator Validator, reg registry.Client, opts Options) *Service {
	return &Service{validator: validator, registry: reg, opts: opts}
}

// RunFile executes the pipeline against a CSV file on disk.
func (s *Service) RunFile(ctx context.Context, path string) (*RunSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()
	return s.Run(ctx, filepath.Base(path), f)
}

// Run executes the pipeline against a CSV stream. Failures from the
// validation client propagate unchanged; run recording and report
// persistence are side effects that never alter the returned values.
func (s *Service) Run(ctx context.Context, source string, input io.Reader) (*RunSummary, error) {
	run := &models.Run{
		ID:        uuid.New(),
		Source:    source,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	recorded := false
	fail := func(err error) error {
		run.Status = models.RunStatusFailed
		if s.opts.Store != nil && recorded {
			if storeErr := s.opts.Store.FailRun(ctx, run.ID, err.Error()); storeErr != nil {
				slog.Error("marking run failed", "run_id", run.ID, "error", storeErr)
			}
		}
		return err
	}

	table, err := dataset.LoadCSV(input, s.opts.RowLimit)
	if err != nil {
		return nil, fail(fmt.Errorf("loading %s: %w", source, err))
	}
	run.RowsLoaded = table.NumRows()

	reshaped, err := dataset.Reshape(table, s.opts.ActiveOnly)
	if err != nil {
		return nil, fail(fmt.Errorf("reshaping %s: %w", source, err))
	}
	run.RowsValidated = reshaped.NumRows()

	recorded = s.recordStart(ctx, run)

	schema, err := s.registry.GetSchema(ctx, s.opts.Schema.Agency, s.opts.Schema.ID, s.opts.Schema.Version)
	if err != nil {
		return nil, fail(fmt.Errorf("resolving schema: %w", err))
	}
	if missing := schema.MissingComponents(reshaped.Columns); len(missing) > 0 {
		slog.Warn("dataset lacks schema components", "missing", missing, "run_id", run.ID)
	}

	ref := dataset.StructureRef{Agency: schema.Agency, ID: schema.ID, Version: schema.Version}
	payload, err := dataset.WriteSDMXCSV(reshaped, ref, s.opts.Delimiter)
	if err != nil {
		return nil, fail(fmt.Errorf("serializing dataset: %w", err))
	}

	if s.opts.OutputPath != "" {
		if err := os.WriteFile(s.opts.OutputPath, []byte(payload), 0o644); err != nil {
			return nil, fail(fmt.Errorf("writing output: %w", err))
		}
	}

	report, err := s.validator.Validate(ctx, payload, s.opts.Budget)
	if err != nil {
		return nil, fail(err)
	}
	run.JobUID = report.UID
	run.FindingCount = len(report.Findings)

	s.persistReport(run, report)

	summary := &RunSummary{Run: run, Report: report}
	if s.opts.Runner != nil {
		results, err := s.runVTL(ctx, reshaped)
		if err != nil {
			return nil, fail(err)
		}
		summary.Results = results
	}

	s.recordSuccess(ctx, run, report)
	run.Status = models.RunStatusSucceeded
	return summary, nil
}

func (s *Service) runVTL(ctx context.Context, data *dataset.Table) ([]vtl.Result, error) {
	scheme, err := s.registry.GetTransformationScheme(ctx,
		s.opts.Scheme.Agency, s.opts.Scheme.ID, s.opts.Scheme.Version)
	if err != nil {
		return nil, fmt.Errorf("resolving transformation scheme: %w", err)
	}

	results, err := s.opts.Runner.Run(ctx, scheme, data)
	if err != nil {
		return nil, fmt.Errorf("running transformation scheme %s: %w", scheme.ID, err)
	}

	if s.opts.LogsDir != "" {
		if err := os.MkdirAll(s.opts.LogsDir, 0o755); err != nil {
			slog.Error("creating logs dir failed", "dir", s.opts.LogsDir, "error", err)
			return results, nil
		}
		for _, res := range results {
			path := filepath.Join(s.opts.LogsDir, res.Name+"_logs.csv")
			if err := writeResultCSV(res.Table, path); err != nil {
				slog.Error("persisting vtl result failed", "result", res.Name, "error", err)
			}
		}
	}
	return results, nil
}

// persistReport writes the raw validation report to the logs dir. Failures
// are logged and swallowed; persistence never changes the returned report.
func (s *Service) persistReport(run *models.Run, report *fmr.Report) {
	if s.opts.LogsDir == "" {
		return
	}
	if err := os.MkdirAll(s.opts.LogsDir, 0o755); err != nil {
		slog.Error("creating logs dir failed", "dir", s.opts.LogsDir, "error", err)
		return
	}
	path := filepath.Join(s.opts.LogsDir, "structural_validation_logs.json")
	data, err := json.Marshal(report)
	if err != nil {
		slog.Error("encoding validation report failed", "run_id", run.ID, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Error("persisting validation report failed", "run_id", run.ID, "path", path, "error", err)
	}
}

func (s *Service) recordStart(ctx context.Context, run *models.Run) bool {
	if s.opts.Store == nil {
		return false
	}
	if err := s.opts.Store.CreateRun(ctx, run); err != nil {
		slog.Error("recording run failed", "run_id", run.ID, "error", err)
		return false
	}
	return true
}

func (s *Service) recordSuccess(ctx context.Context, run *models.Run, report *fmr.Report) {
	if s.opts.Store == nil {
		return
	}
	reportJSON, err := json.Marshal(report.Findings)
	if err != nil {
		reportJSON = nil
	}
	result := store.RunResult{
		JobUID:        report.UID,
		RowsValidated: run.RowsValidated,
		FindingCount:  len(report.Findings),
		Report:        reportJSON,
	}
	if err := s.opts.Store.CompleteRun(ctx, run.ID, result); err != nil {
		slog.Error("completing run record failed", "run_id", run.ID, "error", err)
	}
}

func writeResultCSV(t *dataset.Table, path string) error {
	if t == nil {
		return nil
	}
	text, err := dataset.WriteCSV(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}
