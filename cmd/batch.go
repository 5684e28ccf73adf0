package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/polyfetch/internal/jobs"
	"github.com/tanq16/polyfetch/internal/output"
	"github.com/tanq16/polyfetch/internal/scheduler"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Process multiple assets and file sets from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			jobList, err := jobs.LoadBatchFile(args[0])
			if err != nil {
				output.PrintError(os.Stderr, err.Error())
				os.Exit(1)
			}
			if len(jobList) == 0 {
				output.PrintError(os.Stderr, "No valid jobs found in the batch file")
				os.Exit(1)
			}
			output.PrintInfo(os.Stdout, fmt.Sprintf("Loaded %d jobs from %s", len(jobList), args[0]))
			if err := scheduler.Run(context.Background(), jobList, schedulerConfig()); err != nil {
				output.PrintError(os.Stderr, "Encountered failed operation(s)")
				os.Exit(1)
			}
		},
	}
	return cmd
}
