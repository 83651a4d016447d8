package cmd

import (
	"github.com/andresmejia3/facecrop/internal/extract"
	"github.com/spf13/cobra"
)

var batchCfg = extract.Config{Mode: extract.ModeAll}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Crop every face out of every image in a directory",
	Long: `Writes each face found in the images of --input as <output>/<name>_face_<i>.jpg,
in detection order starting at 0.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExtract(cmd.Context(), batchCfg, opts)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchCfg.InputDir, "input", "i", "./photos", "Directory of images to process")
	batchCmd.Flags().StringVarP(&batchCfg.OutputDir, "output", "o", "./extracted_faces", "Directory to write face crops to")
	batchCmd.Flags().Float64VarP(&batchCfg.Padding, "padding", "p", extract.DefaultPadding, "Padding ratio added around each face on each side")
	rootCmd.AddCommand(batchCmd)
}
