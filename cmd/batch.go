package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/resolve"
	"github.com/tanq16/vidgrab/internal/scheduler"
	"gopkg.in/yaml.v3"
)

type BatchEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	Link       string `yaml:"link"`
	Format     string `yaml:"format,omitempty"`
}

// BatchFile groups entries by source type: http, youtube or s3.
type BatchFile map[string][]BatchEntry

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Long: `Process multiple downloads from a YAML file, for example:

  http:
    - link: https://example.com/video.mp4
      op: clip.mp4
  youtube:
    - link: https://www.youtube.com/watch?v=dQw4w9WgXcQ
      format: mp4@720p
  s3:
    - link: s3://bucket/videos/talk.mp4`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error reading YAML file: %v", err))
				os.Exit(1)
			}
			var batchFile BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				output.PrintError(fmt.Sprintf("Error parsing YAML file: %v", err))
				os.Exit(1)
			}
			ctx, cancel := signalContext()
			jobs := buildJobsFromBatch(ctx, batchFile)
			cancel()
			if len(jobs) == 0 {
				output.PrintError("No valid jobs found in the batch file")
				os.Exit(1)
			}
			runJobs(jobs)
		},
	}
	return cmd
}

func buildJobsFromBatch(ctx context.Context, batchFile BatchFile) []scheduler.Job {
	types := make([]string, 0, len(batchFile))
	for jobType := range batchFile {
		types = append(types, jobType)
	}
	sort.Strings(types)

	var jobs []scheduler.Job
	for _, jobType := range types {
		normalizedType := normalizeJobType(jobType)
		if normalizedType == "" {
			output.PrintWarning(fmt.Sprintf("Unknown job type '%s', skipping", jobType))
			continue
		}
		for _, entry := range batchFile[jobType] {
			if entry.Link == "" {
				output.PrintWarning(fmt.Sprintf("Empty link found in %s section, skipping", jobType))
				continue
			}
			job, err := buildJob(ctx, normalizedType, entry)
			if err != nil {
				output.PrintWarning(fmt.Sprintf("%s: %v, skipping", entry.Link, err))
				continue
			}
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func buildJob(ctx context.Context, jobType string, entry BatchEntry) (scheduler.Job, error) {
	if jobType == "http" {
		name := entry.OutputPath
		if name == "" {
			name = fileNameFromURL(entry.Link)
		}
		return scheduler.Job{URL: entry.Link, FileName: name}, nil
	}
	if jobType == "s3" && !strings.HasPrefix(entry.Link, "s3://") {
		return scheduler.Job{}, fmt.Errorf("not an s3:// link")
	}
	ds, err := resolveDescriptors(ctx, entry.Link)
	if err != nil {
		return scheduler.Job{}, err
	}
	d, err := resolve.Select(ds, entry.Format)
	if err != nil {
		return scheduler.Job{}, err
	}
	name := entry.OutputPath
	if name == "" {
		name = d.FileName()
	}
	return scheduler.Job{URL: d.URL, FileName: name}, nil
}

func normalizeJobType(jobType string) string {
	switch strings.ToLower(strings.TrimSpace(jobType)) {
	case "http", "https", "direct":
		return "http"
	case "youtube", "yt":
		return "youtube"
	case "s3", "aws-s3":
		return "s3"
	default:
		return ""
	}
}
