package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imishinist/mlvc-cli/internal/parser"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Append to a run's logs",
	Long:  "Append free-form messages or metric records to a draft run's logs",
}

var logTextCmd = &cobra.Command{
	Use:   "text message",
	Short: "Append a message to the run log",
	Args:  cobra.MinimumNArgs(1),
	RunE:  logText,
}

var logMetricCmd = &cobra.Command{
	Use:   "metric",
	Short: "Append a metric record to the metric log",
	Long: `Append one metric record to the run's metric log. On commit the latest
value of every key is folded into the run's results.`,
	Example: `  mlvc log metric --metric epoch=1 --metric loss=0.9
  mlvc log metric --from-file metrics.json`,
	Args: cobra.NoArgs,
	RunE: logMetric,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logTextCmd)
	logCmd.AddCommand(logMetricCmd)

	logMetricCmd.Flags().StringArray("metric", []string{}, "Metrics in key=value format")
	logMetricCmd.Flags().String("from-file", "", "Load the record from file (JSON/YAML object)")
}

func logText(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Log(ctx, s.runID(), strings.Join(args, " ")); err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}
	return nil
}

func logMetric(cmd *cobra.Command, args []string) error {
	record, err := keyValueInput(cmd, "metric")
	if err != nil {
		return err
	}
	if len(record) == 0 {
		return fmt.Errorf("at least one --metric or --from-file must be specified")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.LogMetric(ctx, s.runID(), record); err != nil {
		return fmt.Errorf("failed to log metric: %w", err)
	}

	fmt.Printf("Successfully logged %d metrics\n", len(record))
	printMap(record)
	return nil
}

// keyValueInput merges the object in --from-file with repeated key=value
// flags; flags win.
func keyValueInput(cmd *cobra.Command, flag string) (map[string]any, error) {
	values := map[string]any{}

	fromFile, _ := cmd.Flags().GetString("from-file")
	if fromFile != "" {
		parsed, err := parser.ParseFile(fromFile)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", fromFile, err)
		}
		for k, v := range parsed {
			values[k] = v
		}
	}

	pairs, _ := cmd.Flags().GetStringArray(flag)
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid %s format: %s (expected key=value)", flag, pair)
		}
		values[parts[0]] = parts[1]
	}
	return values, nil
}

func printMap(values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, values[k])
	}
}
