package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/resolve"
	"github.com/tanq16/vidgrab/internal/scheduler"
)

var (
	getFormat string
	getName   string
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [video URL, ID or s3://bucket/key]...",
		Short: "Resolve items and download one format of each",
		Long: `Resolve items and download one format of each. --format accepts
best, worst, a resolution (720p), a container (mp4), both (mp4@720p)
or the 1-based number shown by the formats command.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if getName != "" && len(args) > 1 {
				output.PrintError("--name only works with a single item")
				os.Exit(1)
			}
			ctx, cancel := signalContext()
			var jobs []scheduler.Job
			for _, ref := range args {
				ds, err := resolveDescriptors(ctx, ref)
				if err != nil {
					output.PrintError(fmt.Sprintf("Resolving %s failed: %v", ref, err))
					continue
				}
				d, err := resolve.Select(ds, getFormat)
				if err != nil {
					output.PrintError(fmt.Sprintf("%s: %v", ref, err))
					continue
				}
				log.Debug().Str("op", "cmd/get").Msgf("selected %s for %s", d, ref)
				name := d.FileName()
				if getName != "" {
					name = getName
				}
				jobs = append(jobs, scheduler.Job{URL: d.URL, FileName: name})
			}
			cancel()
			if len(jobs) == 0 {
				os.Exit(1)
			}
			runJobs(jobs)
		},
	}
	cmd.Flags().StringVarP(&getFormat, "format", "f", "best", "Format to download")
	cmd.Flags().StringVarP(&getName, "name", "n", "", "File name to save as")
	return cmd
}
