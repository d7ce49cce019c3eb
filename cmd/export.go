package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imishinist/mlvc-cli/internal/archive"
	"github.com/imishinist/mlvc-cli/internal/logsink"
	"github.com/imishinist/mlvc-cli/internal/mlflow"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs to other tracking systems",
}

var exportMLflowCmd = &cobra.Command{
	Use:   "mlflow",
	Short: "Export a committed run to MLflow",
	Long: `Create an MLflow run mirroring a committed run: configuration as
parameters, the metric log as metric history, numeric results as final
metrics and the run archive as an artifact.`,
	Example: `  mlvc export mlflow --run-id <run-id> --tracking-uri http://localhost:5000 --experiment-id 1`,
	Args:    cobra.NoArgs,
	RunE:    exportMLflow,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportMLflowCmd)

	exportMLflowCmd.Flags().String("tracking-uri", "", "MLflow tracking URI (overrides MLVC_MLFLOW_TRACKING_URI)")
	exportMLflowCmd.Flags().String("experiment-id", "", "Experiment ID (overrides MLVC_MLFLOW_EXPERIMENT_ID)")
	exportMLflowCmd.Flags().String("time-resolution", "", "Time resolution (1s/1m/5m/1h)")
	exportMLflowCmd.Flags().String("time-alignment", "", "Time alignment (floor/ceil/round)")
	exportMLflowCmd.Flags().String("step-mode", "", "Step mode (auto/timestamp/sequence)")
	exportMLflowCmd.Flags().Bool("skip-artifact", false, "Do not upload the run archive")
	viper.BindPFlag("mlflow.tracking_uri", exportMLflowCmd.Flags().Lookup("tracking-uri"))
	viper.BindPFlag("mlflow.experiment_id", exportMLflowCmd.Flags().Lookup("experiment-id"))
	viper.BindPFlag("mlflow.time_resolution", exportMLflowCmd.Flags().Lookup("time-resolution"))
	viper.BindPFlag("mlflow.time_alignment", exportMLflowCmd.Flags().Lookup("time-alignment"))
	viper.BindPFlag("mlflow.step_mode", exportMLflowCmd.Flags().Lookup("step-mode"))
}

func exportMLflow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	client, err := mlflow.NewClient(&s.cfg.MLflow)
	if err != nil {
		return fmt.Errorf("failed to create MLflow client: %w", err)
	}

	run, err := s.manager.GetRun(ctx, s.runID())
	if err != nil {
		return err
	}
	history, err := logsink.ReadPayloads(filepath.Join(run.RunDir, run.Logs.Metric))
	if err != nil {
		return fmt.Errorf("failed to read metric log: %w", err)
	}

	archivePath := ""
	if skip, _ := cmd.Flags().GetBool("skip-artifact"); !skip {
		archivePath = s.manager.ArchivePath(run.RunID)
		if _, err := os.Stat(archivePath); errors.Is(err, os.ErrNotExist) {
			if err := archive.Build(run.RunDir, archivePath); err != nil {
				return fmt.Errorf("failed to package run: %w", err)
			}
		}
	}

	info, err := client.ExportRun(ctx, run, history, archivePath, s.logger)
	if err != nil {
		return fmt.Errorf("failed to export run: %w", err)
	}

	// Output only the MLflow run ID for shell scripting
	fmt.Printf("%s\n", info.RunID)
	return nil
}
