package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/polyfetch/internal/jobs"
	"github.com/tanq16/polyfetch/internal/output"
	"github.com/tanq16/polyfetch/internal/scheduler"
)

func newAssetCmd() *cobra.Command {
	var outputPath string
	var format string

	cmd := &cobra.Command{
		Use:   "asset [ASSET_ID|URL...] [--format FORMAT] [--output OUTPUT_PATH]",
		Short: "Download the files of one or more Poly assets",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var jobList []jobs.Job
			for _, arg := range args {
				op := outputPath
				if len(args) > 1 {
					op = "" // one directory per asset
				}
				jobList = append(jobList, jobs.NewAssetJob(arg, format, op))
			}
			if err := scheduler.Run(context.Background(), jobList, schedulerConfig()); err != nil {
				output.PrintError(os.Stderr, "Encountered failed operation(s)")
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output directory or s3://bucket/prefix (single asset only)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Format type to download (OBJ, GLTF2, FBX, ...)")
	return cmd
}
