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

func newFilesCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "files [NAME=URL|URL...] [--output OUTPUT_PATH]",
		Short: "Download a set of files as one all-or-nothing batch",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var files []jobs.File
			for _, arg := range args {
				files = append(files, jobs.ParseFileArg(arg))
			}
			if outputPath == "" {
				outputPath = scheduler.OutputPathOrDefault("", scheduler.DefaultFilesDir)
				output.PrintWarning(os.Stderr, fmt.Sprintf("No output path given, saving to %s", outputPath))
			}
			job := jobs.NewFilesJob(files, outputPath)
			if err := scheduler.Run(context.Background(), []jobs.Job{job}, schedulerConfig()); err != nil {
				output.PrintError(os.Stderr, "Encountered failed operation(s)")
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output directory or s3://bucket/prefix")
	return cmd
}
