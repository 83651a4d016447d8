package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/andresmejia3/facecrop/internal/detector"
	"github.com/andresmejia3/facecrop/internal/extract"
	"github.com/andresmejia3/facecrop/internal/store"
	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/andresmejia3/facecrop/internal/utils"
	"github.com/andresmejia3/facecrop/internal/worker"
	"github.com/spf13/cobra"
)

var (
	extractPadding float64
	extractAll     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <input> <output>",
	Short: "Crop the largest face out of every image in a directory",
	Long: `Detects faces in every .jpg, .jpeg and .png file directly inside <input> and writes the
largest one, padded for hair and neck, to <output>/<name>_face.jpg.
With --all every detected face is written as <output>/<name>_face_<i>.jpg.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg := extract.Config{
			InputDir:  args[0],
			OutputDir: args[1],
			Padding:   extractPadding,
			Mode:      extract.ModeLargest,
		}
		if extractAll {
			cfg.Mode = extract.ModeAll
		}
		return runExtract(cmd.Context(), cfg, opts)
	},
}

func init() {
	extractCmd.Flags().Float64VarP(&extractPadding, "padding", "p", extract.DefaultPadding, "Padding ratio added around the face on each side")
	extractCmd.Flags().BoolVar(&extractAll, "all", false, "Write every detected face instead of only the largest")
	rootCmd.AddCommand(extractCmd)
}

// runExtract loads the detector once and walks cfg.InputDir with it.
func runExtract(ctx context.Context, cfg extract.Config, o Options) error {
	fmt.Fprintf(stdout, "Input directory: %s\n", cfg.InputDir)
	fmt.Fprintf(stdout, "Output directory: %s\n", cfg.OutputDir)
	fmt.Fprintf(stdout, "Padding: %g\n", cfg.Padding)

	// Fail before paying for model load
	if err := validateConfig(cfg); err != nil {
		return showError("Invalid arguments", err, nil)
	}

	fmt.Fprintf(os.Stderr, "🚀 Loading %s detector...\n", o.Detector)
	det, err := detector.New(ctx, o.detectorOptions())
	if err != nil {
		return showError("Failed to initialize face detector", err, workerCmd(err))
	}
	defer det.Close()

	ex := extract.New(det, cfg)
	ex.Out = stdout
	if !o.NoProgress {
		ex.Progress = os.Stderr
	}

	var runID int64
	if DB != nil {
		runID, err = DB.StartRun(ctx, store.RunInfo{
			InputDir:  cfg.InputDir,
			OutputDir: cfg.OutputDir,
			Padding:   cfg.Padding,
			Mode:      cfg.Mode.String(),
			Detector:  o.Detector,
		})
		if err != nil {
			return showError("Failed to register run in database", err, nil)
		}
		ex.Recorder = runRecorder{db: DB, runID: runID}
	}

	sum, err := ex.ProcessDir(ctx)

	if DB != nil {
		// The run context may already be cancelled; the partial counts are still worth keeping
		if ferr := DB.FinishRun(context.Background(), runID, sum.Files, sum.Saved, sum.Skipped); ferr != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to finalize run %d: %v\n", runID, ferr)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\n🛑 Interrupted.")
		}
		return showError("Extraction aborted", err, workerCmd(err))
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Extraction Complete. %d face(s) saved from %d image(s), %d skipped.\n", sum.Saved, sum.Files, sum.Skipped)
	return nil
}

func validateConfig(cfg extract.Config) error {
	info, err := os.Stat(cfg.InputDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("input directory '%s' does not exist", cfg.InputDir)
	}
	if err != nil {
		return fmt.Errorf("cannot access input directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input '%s' is not a directory", cfg.InputDir)
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	if cfg.Padding < 0 || math.IsNaN(cfg.Padding) || math.IsInf(cfg.Padding, 0) {
		return fmt.Errorf("--padding must be a finite value >= 0, got %v", cfg.Padding)
	}
	return nil
}

// workerCmd digs the Python worker out of err so its logs can be shown.
func workerCmd(err error) *utils.SafeCommand {
	var werr *worker.Error
	if errors.As(err, &werr) {
		return werr.Cmd
	}
	return nil
}

// runRecorder files every saved crop under one run.
type runRecorder struct {
	db    *store.Store
	runID int64
}

func (r runRecorder) RecordCrop(ctx context.Context, c types.Crop) error {
	return r.db.RecordCrop(ctx, r.runID, c)
}
