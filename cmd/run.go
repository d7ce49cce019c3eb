package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/imishinist/mlvc-cli/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage tracked runs",
	Long:  "Create, commit, upload and inspect tracked runs",
}

var runCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new draft run",
	Long: `Create a new draft run and print its ID.
Later commands select the run with --run-id or MLVC_RUN_ID.`,
	Example: `  export MLVC_RUN_ID=$(mlvc run create --name baseline)
  mlvc config add --param lr=0.01
  mlvc run commit`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var runExecCmd = &cobra.Command{
	Use:   "exec -- command [args...]",
	Short: "Run a training command inside a new run",
	Long: `Create a run, execute the command while sampling host telemetry and
teeing its stdout into the run, then commit the run. The child process sees
MLVC_RUN_ID, so it can log metrics with "mlvc log metric".`,
	Example: `  mlvc run exec --name baseline --upload -- python train.py --epochs 10`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runExec,
}

var runCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Finalise a draft run",
	Long:  "Fold the metric log into the run's results, record the training time and mark the run submitted",
	Args:  cobra.NoArgs,
	RunE:  runCommit,
}

var runUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a submitted run to the tracking service",
	Args:  cobra.NoArgs,
	RunE:  runUpload,
}

var runShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a run document as JSON",
	Args:  cobra.NoArgs,
	RunE:  runShow,
}

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var runCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every stored run, its directory and its archive",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runCreateCmd)
	runCmd.AddCommand(runExecCmd)
	runCmd.AddCommand(runCommitCmd)
	runCmd.AddCommand(runUploadCmd)
	runCmd.AddCommand(runShowCmd)
	runCmd.AddCommand(runListCmd)
	runCmd.AddCommand(runCleanCmd)

	for _, c := range []*cobra.Command{runCreateCmd, runExecCmd} {
		c.Flags().String("name", "", "Run name (default: timestamp-based)")
		c.Flags().String("description", "", "Run description")
		c.Flags().StringArray("tag", []string{}, "Tag to attach to the run (can be specified multiple times)")
	}

	runExecCmd.Flags().Bool("upload", false, "Upload the run after a successful commit")

	runCleanCmd.Flags().Bool("yes", false, "Confirm deletion of all runs")
}

func runName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = "run-" + time.Now().Format("20060102-150405")
	}
	return name
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{sourceControl: true})
	if err != nil {
		return err
	}
	defer s.Close()

	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetStringArray("tag")
	run, err := s.manager.CreateRun(ctx, runName(cmd), description, tags...)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	// Output only run ID for shell scripting
	fmt.Printf("%s\n", run.RunID)
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	upload, _ := cmd.Flags().GetBool("upload")
	s, err := openSession(ctx, sessionOptions{sourceControl: true, remote: upload})
	if err != nil {
		return err
	}
	defer s.Close()

	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetStringArray("tag")
	run, err := s.manager.CreateRun(ctx, runName(cmd), description, tags...)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	logger := s.logger.With().Str("run_id", run.RunID).Logger()

	child := exec.CommandContext(ctx, args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = s.manager.Stdout()
	child.Stderr = os.Stderr
	child.Env = append(os.Environ(), "MLVC_RUN_ID="+run.RunID, "MLVC_HOME="+s.cfg.Home)

	logger.Info().Strs("command", args).Msg("starting training command")
	if err := child.Run(); err != nil {
		// A failed command leaves the run as a draft for inspection.
		return fmt.Errorf("training command failed, run %s left as draft: %w", run.RunID, err)
	}

	committed, err := s.manager.Commit(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	logger.Info().Float64("training_time", committed.TrainingTime).Msg("run committed")

	if upload {
		if _, err := s.manager.Upload(ctx, run.RunID); err != nil {
			return fmt.Errorf("failed to upload run: %w", err)
		}
	}

	fmt.Printf("%s\n", run.RunID)
	return nil
}

func runCommit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.manager.Commit(ctx, s.runID())
	if err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	fmt.Printf("Run %s submitted (training time: %.1fs, %d results)\n", run.RunID, run.TrainingTime, len(run.Results))
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{remote: true})
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.manager.Upload(ctx, s.runID())
	if err != nil {
		return fmt.Errorf("failed to upload run: %w", err)
	}

	fmt.Printf("Run %s uploaded as %s\n", run.RunID, run.RemoteRunID)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.manager.GetRun(ctx, s.runID())
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(run)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.manager.ListRuns(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tNAME\tSTATUS\tCREATED\tREMOTE ID")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.RunID, run.Name, run.Status, run.CreatedAt.Local().Format(time.DateTime), remoteID(run))
	}
	return w.Flush()
}

func remoteID(run *models.Run) string {
	if run.RemoteRunID == "" {
		return "-"
	}
	return run.RemoteRunID
}

func runClean(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("refusing to delete all runs without --yes")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.RemoveAllRuns(ctx); err != nil {
		return fmt.Errorf("failed to remove runs: %w", err)
	}
	fmt.Println("All runs removed")
	return nil
}
