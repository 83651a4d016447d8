package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetYes     bool
	resetOutputs string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop the recorded run history",
	Long:  "Drops all history tables. With --outputs it also deletes a directory of extracted faces.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if DB == nil {
			return errNoDatabase
		}

		reader := bufio.NewReader(os.Stdin)

		if resetYes || confirm(reader, stdout, "⚠️  Are you sure you want to DROP all history tables?") {
			fmt.Fprintln(stdout, "🗑️  Clearing Database...")
			if err := DB.Reset(cmd.Context()); err != nil {
				return showError("Failed to reset database", err, nil)
			}
		}

		if resetOutputs != "" {
			if resetYes || confirm(reader, stdout, fmt.Sprintf("⚠️  Are you sure you want to delete '%s'?", resetOutputs)) {
				fmt.Fprintf(stdout, "🗑️  Clearing %s...\n", resetOutputs)
				removeDir(resetOutputs)
			}
		}

		fmt.Fprintln(stdout, "✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().StringVar(&resetOutputs, "outputs", "", "Also delete this output directory")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
