package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leibridge/leibridge/internal/config"
	"github.com/leibridge/leibridge/internal/fmr"
	"github.com/leibridge/leibridge/internal/pipeline"
	"github.com/leibridge/leibridge/internal/registry"
)

var (
	runInput  string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once against a local CSV file",
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "input CSV file (defaults to PIPELINE_INPUT_PATH)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write the serialized SDMX-CSV dataset to this path")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	setupConsoleLogging()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	input := runInput
	if input == "" {
		input = cfg.Pipeline.InputPath
	}
	if input == "" {
		return fmt.Errorf("no input file: pass --input or set PIPELINE_INPUT_PATH")
	}
	output := runOutput
	if output == "" {
		output = cfg.Pipeline.OutputPath
	}

	svc, err := buildPipeline(cfg, output)
	if err != nil {
		return err
	}

	slog.Info("pipeline starting", "input", input, "fmr_host", cfg.FMR.Host)

	summary, err := svc.RunFile(cmd.Context(), input)
	if err != nil {
		return err
	}

	slog.Info("pipeline finished",
		"run_id", summary.Run.ID,
		"job_uid", summary.Report.UID,
		"rows_loaded", summary.Run.RowsLoaded,
		"rows_validated", summary.Run.RowsValidated,
		"findings", len(summary.Report.Findings),
	)

	if summary.Report.Clean() {
		fmt.Fprintln(os.Stdout, "validation passed with no findings")
		return nil
	}
	for _, f := range summary.Report.Findings {
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", f.Severity, f.Type, f.Message)
	}
	return nil
}

// buildPipeline assembles the FMR client, registry client and pipeline
// service from config. The one-shot command runs without database, cache or
// VTL engine.
func buildPipeline(cfg *config.Config, output string) (*pipeline.Service, error) {
	validator, err := fmr.NewClient(fmr.Config{
		Host:      cfg.FMR.Host,
		Port:      cfg.FMR.Port,
		UseHTTPS:  cfg.FMR.UseHTTPS,
		Delimiter: cfg.FMR.Delimiter,
		Timeout:   cfg.FMR.HTTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create fmr client: %w", err)
	}

	reg := registry.NewHTTPClient(cfg.Registry.Endpoint, nil, cfg.Registry.Timeout)

	return pipeline.NewService(validator, reg, pipelineOptions(cfg, output)), nil
}

func pipelineOptions(cfg *config.Config, output string) pipeline.Options {
	return pipeline.Options{
		Budget: fmr.PollBudget{
			MaxAttempts: cfg.FMR.MaxAttempts,
			Interval:    cfg.FMR.PollInterval,
		},
		Delimiter:  cfg.FMR.Delimiter,
		RowLimit:   cfg.Pipeline.RowLimit,
		ActiveOnly: cfg.Pipeline.ActiveOnly,
		OutputPath: output,
		LogsDir:    cfg.Pipeline.LogsDir,
		Schema: pipeline.ArtifactRef{
			Agency:  cfg.Registry.SchemaAgency,
			ID:      cfg.Registry.SchemaID,
			Version: cfg.Registry.SchemaVersion,
		},
		Scheme: pipeline.ArtifactRef{
			Agency:  cfg.Registry.SchemeAgency,
			ID:      cfg.Registry.SchemeID,
			Version: cfg.Registry.SchemeVersion,
		},
	}
}
