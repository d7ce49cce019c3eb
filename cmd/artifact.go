package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imishinist/mlvc-cli/internal/lifecycle"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Attach files to a run",
	Long: `Copy files into a draft run's directory. JSON and CSV inputs are
detected from the file extension unless --type is given.`,
}

var artifactAnnotationCmd = &cobra.Command{
	Use:     "annotation",
	Short:   "Set the run's annotation file",
	Example: `  mlvc artifact annotation --file labels.json`,
	Args:    cobra.NoArgs,
	RunE:    artifactAnnotation,
}

var artifactDataCmd = &cobra.Command{
	Use:   "data",
	Short: "Add data files to the run",
	Example: `  # Add multiple data files
  mlvc artifact data --file train.csv --file eval.csv`,
	Args: cobra.NoArgs,
	RunE: artifactData,
}

var artifactCodeCmd = &cobra.Command{
	Use:   "code",
	Short: "Add source files to the run",
	Example: `  mlvc artifact code --file train.py --file model.py`,
	Args: cobra.NoArgs,
	RunE: artifactCode,
}

func init() {
	rootCmd.AddCommand(artifactCmd)
	artifactCmd.AddCommand(artifactAnnotationCmd)
	artifactCmd.AddCommand(artifactDataCmd)
	artifactCmd.AddCommand(artifactCodeCmd)

	artifactAnnotationCmd.Flags().String("file", "", "Annotation file (JSON/CSV) (required)")
	artifactAnnotationCmd.Flags().String("type", "", "Input type: json_file/csv_file (default: from extension)")
	artifactAnnotationCmd.MarkFlagRequired("file")

	artifactDataCmd.Flags().StringSlice("file", []string{}, "Data file (JSON/CSV) (can be specified multiple times)")
	artifactDataCmd.Flags().String("type", "", "Input type: json_file/csv_file (default: from extension)")
	artifactDataCmd.MarkFlagRequired("file")

	artifactCodeCmd.Flags().StringSlice("file", []string{}, "Source file (can be specified multiple times)")
	artifactCodeCmd.MarkFlagRequired("file")
}

// fileInputType picks the input type for a file argument.
func fileInputType(cmd *cobra.Command, path string) (string, error) {
	if t, _ := cmd.Flags().GetString("type"); t != "" {
		return t, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return lifecycle.InputJSONFile, nil
	case ".csv":
		return lifecycle.InputCSVFile, nil
	default:
		return "", fmt.Errorf("cannot infer input type of %s (supported: .json, .csv); pass --type", path)
	}
}

func artifactAnnotation(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	inputType, err := fileInputType(cmd, path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.AddAnnotation(ctx, s.runID(), path, inputType); err != nil {
		return fmt.Errorf("failed to add annotation: %w", err)
	}
	fmt.Printf("Successfully added annotation: %s\n", path)
	return nil
}

func artifactData(cmd *cobra.Command, args []string) error {
	files, _ := cmd.Flags().GetStringSlice("file")
	if len(files) == 0 {
		return fmt.Errorf("at least one file must be specified")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	for _, path := range files {
		inputType, err := fileInputType(cmd, path)
		if err != nil {
			return err
		}
		if err := s.manager.AddData(ctx, s.runID(), path, inputType); err != nil {
			return fmt.Errorf("failed to add data %s: %w", path, err)
		}
	}

	fmt.Printf("Successfully added %d data files\n", len(files))
	return nil
}

func artifactCode(cmd *cobra.Command, args []string) error {
	files, _ := cmd.Flags().GetStringSlice("file")

	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	successCount := 0
	for _, path := range files {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "File not found: %s\n", path)
			continue
		}
		if err := s.manager.AddCodeFile(ctx, s.runID(), path); err != nil {
			return fmt.Errorf("failed to add code file %s: %w", path, err)
		}
		successCount++
	}

	if successCount == 0 {
		return fmt.Errorf("failed to add any code files")
	}
	fmt.Printf("Successfully added %d/%d code files\n", successCount, len(files))
	return nil
}
