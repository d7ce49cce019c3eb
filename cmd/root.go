package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imishinist/mlvc-cli/internal/config"
	"github.com/imishinist/mlvc-cli/internal/gitinfo"
	"github.com/imishinist/mlvc-cli/internal/lifecycle"
	"github.com/imishinist/mlvc-cli/internal/mlvc"
	"github.com/imishinist/mlvc-cli/internal/objectstore"
	"github.com/imishinist/mlvc-cli/internal/store"
	"github.com/imishinist/mlvc-cli/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "mlvc",
	Short: "ML run version control CLI",
	Long: `A command line tool for tracking machine learning training runs.
Records configuration, metrics, artifacts, host telemetry and logs for each
run, and uploads finished runs to the MLVC tracking service.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("home", "", "Directory holding runs, archives and the run database (overrides MLVC_HOME)")
	rootCmd.PersistentFlags().String("api-url", "", "Tracking service URL (overrides MLVC_API_URL)")
	rootCmd.PersistentFlags().String("project-id", "", "Project ID (overrides MLVC_PROJECT_ID)")
	rootCmd.PersistentFlags().String("model-id", "", "Model ID (overrides MLVC_MODEL_ID)")
	rootCmd.PersistentFlags().String("run-id", "", "Run to operate on (overrides MLVC_RUN_ID)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace/debug/info/warn/error (overrides MLVC_LOG_LEVEL)")
	viper.BindPFlag("home", rootCmd.PersistentFlags().Lookup("home"))
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("project_id", rootCmd.PersistentFlags().Lookup("project-id"))
	viper.BindPFlag("model_id", rootCmd.PersistentFlags().Lookup("model-id"))
	viper.BindPFlag("run_id", rootCmd.PersistentFlags().Lookup("run-id"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Environment variables; nested keys map mlflow.tracking_uri to MLVC_MLFLOW_TRACKING_URI.
	viper.SetEnvPrefix("MLVC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Also bind Databricks environment variables
	viper.BindEnv("databricks_host", "DATABRICKS_HOST")
	viper.BindEnv("databricks_token", "DATABRICKS_TOKEN")

	// Set defaults
	viper.SetDefault("home", "~/.mlvc")
	viper.SetDefault("api_url", "http://localhost:8082")
	viper.SetDefault("sample_interval", time.Second)
	viper.SetDefault("http_timeout", 60*time.Second)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("mlflow.tracking_uri", "http://localhost:5000")
	viper.SetDefault("mlflow.time_resolution", "1m")
	viper.SetDefault("mlflow.time_alignment", "floor")
	viper.SetDefault("mlflow.step_mode", "auto")
	viper.SetDefault("object_store.region", "us-east-1")
}

// newLogger writes human-readable diagnostics to stderr so stdout stays
// free for command output.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

// session bundles what a command needs to operate on runs.
type session struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *store.Store
	manager *lifecycle.Manager
}

type sessionOptions struct {
	remote        bool
	sourceControl bool
}

// openSession loads configuration and opens the run database. The remote
// client and source control snapshot are wired only when requested.
func openSession(ctx context.Context, so sessionOptions) (*session, error) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)

	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return nil, err
	}

	opts := []lifecycle.Option{
		lifecycle.WithHome(cfg.Home),
		lifecycle.WithProject(cfg.ProjectID, cfg.ModelID),
		lifecycle.WithGPUReader(telemetry.NewNvidiaSMI()),
		lifecycle.WithSampleInterval(cfg.SampleInterval),
		lifecycle.WithCaptureStdout(cfg.CaptureStdout),
		lifecycle.WithLogger(logger),
	}

	if so.sourceControl {
		if wd, err := os.Getwd(); err == nil {
			if repo, err := gitinfo.Discover(ctx, wd); err == nil {
				opts = append(opts, lifecycle.WithSourceControl(repo))
			} else {
				logger.Debug().Err(err).Msg("no source control snapshot")
			}
		}
	}

	if so.remote {
		remoteOpts, err := remoteOptions(ctx, cfg, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		opts = append(opts, remoteOpts...)
	}

	return &session{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		manager: lifecycle.New(st, opts...),
	}, nil
}

func remoteOptions(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]lifecycle.Option, error) {
	if err := cfg.LoadCredentials(); err != nil {
		return nil, err
	}
	client, err := mlvc.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MLVC client: %w", err)
	}
	opts := []lifecycle.Option{lifecycle.WithRemote(client)}

	if cfg.ObjectStore.Enabled() {
		mirror, err := objectstore.NewMirror(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("bucket", mirror.Bucket()).Msg("archive mirror enabled")
		opts = append(opts, lifecycle.WithArchiveMirror(mirror))
	}
	return opts, nil
}

// runID returns the run selected by --run-id or MLVC_RUN_ID.
func (s *session) runID() string {
	return viper.GetString("run_id")
}

func (s *session) Close() error {
	err := s.manager.Close()
	if closeErr := s.store.Close(); err == nil {
		err = closeErr
	}
	return err
}
