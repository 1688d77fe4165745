package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/catalog/youtube"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/paging"
	"github.com/tanq16/vidgrab/internal/resolve"
	"github.com/tanq16/vidgrab/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

var (
	searchPages       int
	searchPageSize    int
	searchShowFormats bool
	searchBrowse      bool
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search YouTube videos page by page",
		Args:  cobra.ArbitraryArgs,
		Run:   runSearch,
	}
	cmd.Flags().IntVar(&searchPages, "pages", 1, "Number of result pages to load")
	cmd.Flags().IntVar(&searchPageSize, "page-size", 0, "Results per page (default from config)")
	cmd.Flags().BoolVarP(&searchShowFormats, "formats", "f", false, "Resolve and show the formats of every result")
	cmd.Flags().BoolVarP(&searchBrowse, "browse", "b", false, "Browse results interactively and pick one to download")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newYouTubeClient(ctx)
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
	pageSize := cfg.PageSize
	if searchPageSize > 0 {
		pageSize = searchPageSize
	}
	source, err := paging.New[youtube.Video](client, pageSize)
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
	list := paging.NewList[youtube.Video](source, paging.DefaultThreshold)
	if _, err := list.Reload(ctx, query); err != nil {
		output.PrintError(fmt.Sprintf("Search failed: %v", err))
		os.Exit(1)
	}
	log.Debug().Str("op", "cmd/search").Msgf("first page for %q has %d videos", query, list.Len())

	if searchBrowse {
		browseVideos(ctx, list)
		return
	}
	for page := 1; page < searchPages && !list.Exhausted(); page++ {
		if _, err := list.LoadNextPage(ctx); err != nil {
			output.PrintError(fmt.Sprintf("Loading page %d failed: %v", page+1, err))
			break
		}
	}
	videos := list.Items()
	if len(videos) == 0 {
		output.PrintWarning("No videos found")
		return
	}
	var formats [][]resolve.Descriptor
	if searchShowFormats {
		formats = resolveAll(ctx, videos)
	}
	output.PrintHeader(fmt.Sprintf("Results for %q", query))
	for i, v := range videos {
		printVideo(i, v)
		if formats != nil {
			printDescriptors(formats[i])
		}
	}
}

// resolveAll resolves the formats of every video, a few at a time. A video
// that cannot be resolved gets an empty list.
func resolveAll(ctx context.Context, videos []youtube.Video) [][]resolve.Descriptor {
	resolver, err := newResolver(ctx)
	if err != nil {
		output.PrintError(err.Error())
		return nil
	}
	results := make([][]resolve.Descriptor, len(videos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, v := range videos {
		i, v := i, v
		g.Go(func() error {
			ds, err := resolver.Resolve(gctx, v.URL())
			if err != nil {
				log.Debug().Str("op", "cmd/search").Msgf("resolving %s failed: %v", v.ID, err)
				return nil
			}
			results[i] = ds
			return nil
		})
	}
	g.Wait()
	return results
}

func printVideo(i int, v youtube.Video) {
	output.PrintInfo(fmt.Sprintf("%3d. %s", i+1, v.Title))
	output.PrintDetail(fmt.Sprintf("     %s  %s  %s", v.ChannelTitle, v.PublishedAt.Format("2006-01-02"), output.FDebug(v.URL())))
}

// browseVideos prints results as they load. Enter scrolls forward, a number
// picks a video, /text starts a new search and q quits.
func browseVideos(ctx context.Context, list *paging.List[youtube.Video]) {
	in := bufio.NewScanner(os.Stdin)
	shown := 0
	for {
		items := list.Items()
		for ; shown < len(items); shown++ {
			printVideo(shown, items[shown])
		}
		hint := "[enter] more, [n] download, [/text] search, [q] quit"
		if list.Exhausted() {
			hint = "[n] download, [/text] search, [q] quit"
		}
		fmt.Print(output.FPending(hint + ": "))
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "q" || line == "quit":
			return
		case line == "":
			if list.Exhausted() {
				output.PrintWarning("No more results")
				continue
			}
			if _, err := list.OnScroll(ctx, shown-1); err != nil {
				output.PrintError(fmt.Sprintf("Loading more failed: %v", err))
			}
		case strings.HasPrefix(line, "/"):
			shown = 0
			if _, err := list.Reload(ctx, strings.TrimPrefix(line, "/")); err != nil {
				output.PrintError(fmt.Sprintf("Search failed: %v", err))
			}
		default:
			idx, err := strconv.Atoi(line)
			if err != nil || idx < 1 || idx > len(items) {
				output.PrintError("Pick a listed number")
				continue
			}
			pickVideo(ctx, in, items[idx-1])
		}
	}
}

func pickVideo(ctx context.Context, in *bufio.Scanner, v youtube.Video) {
	ds, err := resolveDescriptors(ctx, v.URL())
	if err != nil {
		output.PrintError(fmt.Sprintf("Resolving formats failed: %v", err))
		return
	}
	printDescriptors(ds)
	fmt.Print(output.FPending("format (number, 720p, mp4, best) [best]: "))
	if !in.Scan() {
		return
	}
	d, err := resolve.Select(ds, in.Text())
	if err != nil {
		output.PrintError(err.Error())
		return
	}
	if err := downloadJobs([]scheduler.Job{{URL: d.URL, FileName: d.FileName()}}, false); err != nil {
		output.PrintError(err.Error())
	}
}
