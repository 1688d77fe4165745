package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/output"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "formats [video URL, ID or s3://bucket/key]",
		Aliases: []string{"info"},
		Short:   "List the downloadable formats of an item",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			defer cancel()
			ds, err := resolveDescriptors(ctx, args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Resolving formats failed: %v", err))
				os.Exit(1)
			}
			if len(ds) == 0 {
				output.PrintWarning("No downloadable formats")
				return
			}
			output.PrintHeader(ds[0].Title)
			printDescriptors(ds)
		},
	}
}
