package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imishinist/mlvc-cli/internal/lifecycle"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage a run's configuration",
}

var configAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Merge parameters into the run configuration",
	Long: `Merge parameters into a draft run's configuration. Top-level keys
replace existing ones; the merged configuration is also written to
config.json in the run directory.`,
	Example: `  mlvc config add --param lr=0.01 --param batch_size=32
  mlvc config add --from-file params.yaml`,
	Args: cobra.NoArgs,
	RunE: configAdd,
}

var resultCmd = &cobra.Command{
	Use:   "result",
	Short: "Manage a run's results",
}

var resultAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Merge explicit results into the run",
	Long: `Merge results into a draft run. Explicit results take precedence over
values folded from the metric log on commit.`,
	Args: cobra.NoArgs,
	RunE: resultAdd,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configAddCmd)
	rootCmd.AddCommand(resultCmd)
	resultCmd.AddCommand(resultAddCmd)

	configAddCmd.Flags().StringArray("param", []string{}, "Parameters in key=value format")
	configAddCmd.Flags().String("from-file", "", "Load parameters from file (JSON/YAML object)")

	resultAddCmd.Flags().StringArray("result", []string{}, "Results in key=value format")
	resultAddCmd.Flags().String("from-file", "", "Load results from file (JSON/YAML object)")
}

func configAdd(cmd *cobra.Command, args []string) error {
	params, err := keyValueInput(cmd, "param")
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return fmt.Errorf("at least one --param or --from-file must be specified")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.AddConfig(ctx, s.runID(), params, lifecycle.InputJSON); err != nil {
		return fmt.Errorf("failed to add config: %w", err)
	}

	fmt.Printf("Successfully added %d parameters\n", len(params))
	printMap(params)
	return nil
}

func resultAdd(cmd *cobra.Command, args []string) error {
	results, err := keyValueInput(cmd, "result")
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("at least one --result or --from-file must be specified")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.AddResult(ctx, s.runID(), results); err != nil {
		return fmt.Errorf("failed to add results: %w", err)
	}

	fmt.Printf("Successfully added %d results\n", len(results))
	printMap(results)
	return nil
}
