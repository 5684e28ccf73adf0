package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/polyfetch/internal/output"
	"github.com/tanq16/polyfetch/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up temporary files",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			target := "."
			if len(args) > 0 {
				target = args[0]
			}
			if err := utils.Clean(target); err != nil {
				output.PrintError(os.Stderr, "Error cleaning up temporary files")
				os.Exit(1)
			}
			output.PrintSuccess(os.Stdout, "Temporary files cleaned up")
		},
	}
}
