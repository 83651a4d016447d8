package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresmejia3/facecrop/internal/config"
	"github.com/andresmejia3/facecrop/internal/detector"
	"github.com/andresmejia3/facecrop/internal/store"
	"github.com/andresmejia3/facecrop/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options holds detector and output settings shared by extract and batch
type Options struct {
	Detector           string
	CtxID              int
	DetectionThreshold float64
	Python             string
	WorkerScript       string
	WorkerTimeout      time.Duration
	ModelsDir          string
	AWSRegion          string
	NoProgress         bool
}

func (o Options) detectorOptions() detector.Options {
	return detector.Options{
		Backend:            o.Detector,
		CtxID:              o.CtxID,
		DetectionThreshold: o.DetectionThreshold,
		Python:             o.Python,
		WorkerScript:       o.WorkerScript,
		WorkerTimeout:      o.WorkerTimeout,
		ModelsDir:          o.ModelsDir,
		AWSRegion:          o.AWSRegion,
	}
}

var (
	// DB is the optional run history store; nil when no database is configured
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	opts Options

	// stdout receives result lines; swapped in tests
	stdout io.Writer = os.Stdout
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facecrop",
	Short:   "Batch face extraction with hair and neck padding",
	Version: Version, // This enables the --version flag
	// Execute prints errors itself so boxed errors are not repeated
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyConfig(cmd.Flags(), cfg, &opts)

		// If no flag was provided, try to build the connection string from the environment
		if dbURL == "" {
			dbURL = cfg.PostgresURL()
		}
		if dbURL == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// shownError marks an error that was already printed in a ShowError box.
type shownError struct {
	err error
}

func (e *shownError) Error() string { return e.err.Error() }
func (e *shownError) Unwrap() error { return e.err }

// showError prints the error box and returns err marked as shown.
func showError(context string, err error, s *utils.SafeCommand) error {
	utils.ShowError(context, err, s)
	return &shownError{err: err}
}

// printError prints err unless a box already showed it.
func printError(w io.Writer, err error) {
	var shown *shownError
	if errors.As(err, &shown) {
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

// applyConfig fills every option whose flag was not set explicitly from the environment config.
func applyConfig(flags *pflag.FlagSet, cfg *config.Config, o *Options) {
	unset := func(name string) bool { return !flags.Changed(name) }

	if unset("detector") {
		o.Detector = cfg.Detector
	}
	if unset("ctx-id") {
		o.CtxID = cfg.CtxID
	}
	if unset("det-thresh") {
		o.DetectionThreshold = cfg.DetectionThreshold
	}
	if unset("python") {
		o.Python = cfg.Python
	}
	if unset("worker-script") {
		o.WorkerScript = cfg.WorkerScript
	}
	if unset("worker-timeout") {
		o.WorkerTimeout = cfg.WorkerTimeout
	}
	if unset("models-dir") {
		o.ModelsDir = cfg.ModelsDir
	}
	if unset("aws-region") {
		o.AWSRegion = cfg.AWSRegion
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dbURL, "db", "", "PostgreSQL connection string for run history (default: built from POSTGRES_* env, disabled if unset)")
	pf.StringVar(&opts.Detector, "detector", "insightface", fmt.Sprintf("Face detector backend (compiled in: %v)", detector.Backends()))
	pf.IntVar(&opts.CtxID, "ctx-id", detector.CPU, "Compute context: -1 for CPU, >= 0 for accelerator id")
	pf.Float64Var(&opts.DetectionThreshold, "det-thresh", 0.5, "Face detection confidence threshold")
	pf.StringVar(&opts.Python, "python", "python3", "Python interpreter for the insightface worker")
	pf.StringVar(&opts.WorkerScript, "worker-script", "python/worker.py", "Path to the insightface worker script")
	pf.DurationVar(&opts.WorkerTimeout, "worker-timeout", 60*time.Second, "Timeout for the detector to process a single image")
	pf.StringVar(&opts.ModelsDir, "models-dir", "./models", "Model directory for the dlib and opencv backends")
	pf.StringVar(&opts.AWSRegion, "aws-region", "us-east-1", "AWS region for the rekognition backend")
	pf.BoolVar(&opts.NoProgress, "no-progress", false, "Disable the progress bar")
}
