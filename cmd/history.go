package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/andresmejia3/facecrop/internal/utils"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("no database configured (use --db or set POSTGRES_HOST)")

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [image]",
	Short: "List recorded extraction runs, or the crops taken from one image",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if DB == nil {
			return errNoDatabase
		}
		if len(args) == 1 {
			return runImageHistory(cmd.Context(), DB, args[0])
		}
		return runHistory(cmd.Context(), historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, limit int) error {
	runs, err := DB.ListRuns(ctx, limit)
	if err != nil {
		return showError("Failed to list runs", err, nil)
	}

	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded in database.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tMODE\tDETECTOR\tINPUT\tOUTPUT\tPADDING\tFILES\tSAVED\tSKIPPED")
	fmt.Fprintln(w, "--\t-------\t----\t--------\t-----\t------\t-------\t-----\t-----\t-------")

	for _, r := range runs {
		started := r.StartedAt.Local().Format("2006-01-02 15:04")
		if r.FinishedAt == nil {
			started += " (unfinished)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%g\t%d\t%d\t%d\n",
			r.ID, started, r.Mode, r.Detector, r.InputDir, r.OutputDir, r.Padding, r.Files, r.Saved, r.Skipped)
	}
	return w.Flush()
}

// cropFinder is the part of the store that image history reads.
type cropFinder interface {
	CropsForImage(ctx context.Context, imageID string) ([]types.Crop, error)
}

func runImageHistory(ctx context.Context, db cropFinder, path string) error {
	imageID, err := utils.GenerateImageID(path)
	if err != nil {
		return showError("Failed to read image", err, nil)
	}

	crops, err := db.CropsForImage(ctx, imageID)
	if err != nil {
		return showError("Failed to list crops", err, nil)
	}

	if len(crops) == 0 {
		fmt.Fprintf(stdout, "No crops recorded for %s.\n", path)
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tSCORE\tBOX\tCROP\tOUTPUT")
	fmt.Fprintln(w, "----\t-----\t---\t----\t------")
	for _, c := range crops {
		fmt.Fprintf(w, "%d\t%.2f\t%v\t%v\t%s\n", c.Index, c.Score, c.Face, c.Region, c.OutputPath)
	}
	return w.Flush()
}
