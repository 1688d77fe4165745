package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/catalog/s3"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/paging"
	"github.com/tanq16/vidgrab/internal/scheduler"
)

func newS3Cmd() *cobra.Command {
	var profile, region, endpoint string

	cmd := &cobra.Command{
		Use:   "s3",
		Short: "List and download objects from AWS S3 or compatible stores",
		Long: `List and download objects from AWS S3 or compatible stores.

Examples:
  vidgrab s3 ls s3://mybucket/videos/
  vidgrab s3 get mybucket/videos/talk.mp4
  vidgrab s3 get s3://mybucket/videos/ --profile myprofile`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd, args); err != nil {
				return err
			}
			if profile != "" {
				cfg.AWS.Profile = profile
			}
			if region != "" {
				cfg.AWS.Region = region
			}
			if endpoint != "" {
				cfg.AWS.Endpoint = endpoint
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS profile to use")
	cmd.PersistentFlags().StringVar(&region, "region", "", "AWS region")
	cmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Endpoint of an S3-compatible store")

	cmd.AddCommand(newS3ListCmd())
	cmd.AddCommand(newS3GetCmd())
	return cmd
}

func newS3ListCmd() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:     "ls [s3://BUCKET/PREFIX]",
		Aliases: []string{"list"},
		Short:   "List objects page by page",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			defer cancel()
			bucket, prefix, err := s3.ParseURI(toS3URI(args[0]))
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			list, err := newObjectList(ctx, bucket, prefix)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			for page := 1; page < pages && !list.Exhausted(); page++ {
				if _, err := list.LoadNextPage(ctx); err != nil {
					output.PrintError(fmt.Sprintf("Loading page %d failed: %v", page+1, err))
					break
				}
			}
			objects := list.Items()
			if len(objects) == 0 {
				output.PrintWarning("No objects found")
				return
			}
			for i, obj := range objects {
				output.PrintDetail(fmt.Sprintf("%3d. %-10s %s  %s", i+1,
					output.FormatBytes(uint64(obj.Size)),
					obj.LastModified.Format("2006-01-02 15:04"),
					obj.Key))
			}
			if !list.Exhausted() {
				output.PrintDebug("More objects available, raise --pages to see them")
			}
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	return cmd
}

func newS3GetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [BUCKET/KEY or s3://BUCKET/KEY]...",
		Short: "Download objects; a key ending in / downloads everything under it",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			client, err := newS3Client(ctx)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			var jobs []scheduler.Job
			for _, arg := range args {
				found, err := s3Jobs(ctx, client, toS3URI(arg))
				if err != nil {
					output.PrintError(fmt.Sprintf("%s: %v", arg, err))
					continue
				}
				jobs = append(jobs, found...)
			}
			cancel()
			if len(jobs) == 0 {
				os.Exit(1)
			}
			runJobs(jobs)
		},
	}
	return cmd
}

func toS3URI(arg string) string {
	if strings.HasPrefix(arg, "s3://") {
		return arg
	}
	return "s3://" + arg
}

func newObjectList(ctx context.Context, bucket, prefix string) (*paging.List[s3.Object], error) {
	client, err := newS3Client(ctx)
	if err != nil {
		return nil, err
	}
	source, err := paging.New[s3.Object](client.Bucket(bucket), cfg.PageSize)
	if err != nil {
		return nil, err
	}
	list := paging.NewList[s3.Object](source, paging.DefaultThreshold)
	if _, err := list.Reload(ctx, prefix); err != nil {
		return nil, fmt.Errorf("error listing s3://%s/%s: %v", bucket, prefix, err)
	}
	return list, nil
}

// s3Jobs presigns one object, or every object under a prefix.
func s3Jobs(ctx context.Context, client *s3.Client, uri string) ([]scheduler.Job, error) {
	bucket, key, err := s3.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		ds, err := client.Resolve(ctx, uri)
		if err != nil {
			return nil, err
		}
		return []scheduler.Job{{URL: ds[0].URL, FileName: ds[0].FileName()}}, nil
	}
	source, err := paging.New[s3.Object](client.Bucket(bucket), 1000)
	if err != nil {
		return nil, err
	}
	source.CreateCriteria(key)
	var jobs []scheduler.Job
	for !source.Exhausted() {
		objects, err := source.LoadNextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range objects {
			ds, err := client.Resolve(ctx, "s3://"+obj.Bucket+"/"+obj.Key)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, scheduler.Job{URL: ds[0].URL, FileName: obj.Name()})
		}
	}
	return jobs, nil
}
