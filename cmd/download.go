package cmd

import (
	"net/url"
	"os"
	"path"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/scheduler"
)

var downloadName string

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "download [URL]...",
		Aliases: []string{"http"},
		Short:   "Download direct HTTP(S) URLs",
		Args:    cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if downloadName != "" && len(args) > 1 {
				output.PrintError("--name only works with a single URL")
				os.Exit(1)
			}
			jobs := make([]scheduler.Job, 0, len(args))
			for _, link := range args {
				name := downloadName
				if name == "" {
					name = fileNameFromURL(link)
				}
				jobs = append(jobs, scheduler.Job{URL: link, FileName: name})
			}
			runJobs(jobs)
		},
	}
	cmd.Flags().StringVarP(&downloadName, "name", "n", "", "File name to save as")
	return cmd
}

// fileNameFromURL uses the last path segment, or "download" when there is none.
func fileNameFromURL(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}
