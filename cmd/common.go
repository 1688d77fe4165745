package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/catalog/s3"
	"github.com/tanq16/vidgrab/internal/catalog/youtube"
	"github.com/tanq16/vidgrab/internal/config"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/registry"
	"github.com/tanq16/vidgrab/internal/resolve"
	"github.com/tanq16/vidgrab/internal/scheduler"
	"github.com/tanq16/vidgrab/internal/utils"
)

func newHTTPClient() *utils.HTTPClient {
	return utils.NewHTTPClient(globalHTTPConfig)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runJobs downloads jobs with live progress and exits non-zero when any of
// them did not finish.
func runJobs(jobs []scheduler.Job) {
	err := downloadJobs(jobs, interactive)
	if errors.Is(err, context.Canceled) {
		output.PrintWarning("Interrupted, unfinished downloads were cancelled")
		os.Exit(1)
	}
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

// downloadJobs runs jobs through a fresh registry. With control set, stdin
// takes pause/resume/stop commands while the downloads run.
func downloadJobs(jobs []scheduler.Job, control bool) error {
	if len(jobs) == 0 {
		output.PrintWarning("Nothing to download")
		return nil
	}
	renameDuplicates(jobs, cfg.SaveDir)
	ctx, cancel := signalContext()
	defer cancel()

	reg := registry.New(
		registry.WithSaveDir(cfg.SaveDir),
		registry.WithChunkSize(cfg.ChunkSize),
		registry.WithClient(newHTTPClient()),
	)
	defer reg.Close()

	mgr := output.NewManager()
	mgr.StartDisplay()
	if control {
		go scheduler.Control(ctx, os.Stdin, os.Stdout, reg, mgr)
	}
	result, err := scheduler.Run(ctx, reg, jobs, scheduler.Options{Output: mgr, Workers: workers})
	mgr.StopDisplay()
	log.Debug().Str("op", "cmd/common").Msgf("finished %d, failed %d, cancelled %d",
		result.Finished, result.Failed, result.Cancelled)
	return err
}

// renameDuplicates gives every job a destination that neither exists yet nor
// is used by an earlier job in the list.
func renameDuplicates(jobs []scheduler.Job, dir string) {
	taken := make(map[string]bool)
	for i := range jobs {
		name := utils.SanitizeFileName(jobs[i].FileName)
		if name == "" {
			name = "download"
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil || taken[path] {
			path = utils.RenewOutputPath(path, taken)
			log.Debug().Str("op", "cmd/common").Msgf("renamed %s to %s", name, filepath.Base(path))
		}
		jobs[i].FileName = filepath.Base(path)
		taken[path] = true
	}
}

func newResolver(ctx context.Context) (*resolve.YtDlp, error) {
	path, err := resolve.EnsureYtdlp(ctx, cfg.YtdlpPath, config.Dir(), newHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("yt-dlp unavailable: %v", err)
	}
	return &resolve.YtDlp{Path: path}, nil
}

// youtubeCredential returns the API key when one is configured, otherwise an
// OAuth access token obtained through the credentials file.
func youtubeCredential(ctx context.Context) (string, error) {
	if cfg.YouTube.APIKey != "" {
		return cfg.YouTube.APIKey, nil
	}
	if cfg.YouTube.CredentialsFile == "" {
		return "", fmt.Errorf("no YouTube credential: set %s, youtube.api_key or youtube.credentials_file", config.APIKeyEnv)
	}
	return youtube.AccessTokenFromCredentials(ctx, cfg.YouTube.CredentialsFile, cfg.YouTube.TokenFile)
}

func newYouTubeClient(ctx context.Context) (*youtube.Client, error) {
	credential, err := youtubeCredential(ctx)
	if err != nil {
		return nil, err
	}
	return youtube.NewClient(newHTTPClient(), credential), nil
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	return s3.NewClient(ctx, s3.Options{
		Profile:  cfg.AWS.Profile,
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
		Expiry:   cfg.AWS.PresignExpiry,
		HTTP:     newHTTPClient().StandardClient(),
	})
}

// resolverFor picks the resolver that understands ref.
func resolverFor(ctx context.Context, ref string) (resolve.Resolver, error) {
	if strings.HasPrefix(ref, "s3://") {
		client, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	ytdlp, err := newResolver(ctx)
	if err != nil {
		return nil, err
	}
	return ytdlp, nil
}

// normalizeRef turns a bare video ID into a watch URL.
func normalizeRef(ref string) string {
	if strings.HasPrefix(ref, "s3://") {
		return ref
	}
	if id, err := youtube.ExtractVideoID(ref); err == nil {
		return youtube.WatchURL(id)
	}
	return ref
}

func resolveDescriptors(ctx context.Context, ref string) ([]resolve.Descriptor, error) {
	r, err := resolverFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, normalizeRef(ref))
}

func printDescriptors(ds []resolve.Descriptor) {
	for i, d := range ds {
		size := "unknown size"
		if d.Size > 0 {
			size = output.FormatBytes(uint64(d.Size))
		}
		line := fmt.Sprintf("%2d. %-8s %-5s %s", i+1, d.Resolution, d.Format, size)
		if d.Note != "" {
			line += " " + output.FDebug(d.Note)
		}
		output.PrintDetail(line)
	}
}
