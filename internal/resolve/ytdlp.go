package resolve

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/download"
	"github.com/tanq16/vidgrab/internal/utils"
)

// YtDlp resolves video pages by asking yt-dlp for its JSON description.
type YtDlp struct {
	Path string
}

type ytdlpInfo struct {
	Title   string        `json:"title"`
	Formats []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	URL            string  `json:"url"`
	Protocol       string  `json:"protocol"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	FileSize       int64   `json:"filesize"`
	FileSizeApprox int64   `json:"filesize_approx"`
	FormatNote     string  `json:"format_note"`
}

func (y *YtDlp) Resolve(ctx context.Context, ref string) ([]Descriptor, error) {
	cmd := exec.CommandContext(ctx, y.Path, "-J", "--no-playlist", "--no-warnings", ref)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debug().Str("op", "resolve/ytdlp").Msgf("running %s -J %s", y.Path, ref)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseFormats(stdout.Bytes())
}

// parseFormats keeps the single-file renditions (audio and video muxed, or
// audio only) served over plain HTTP, best first, one per (format, resolution).
func parseFormats(data []byte) ([]Descriptor, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("error parsing yt-dlp output: %v", err)
	}
	var ds []Descriptor
	for _, f := range info.Formats {
		if f.URL == "" || (f.Protocol != "https" && f.Protocol != "http") {
			continue
		}
		if f.ACodec == "none" || f.ACodec == "" {
			continue
		}
		d := Descriptor{
			URL:    f.URL,
			Title:  info.Title,
			Format: f.Ext,
			Height: f.Height,
			Size:   f.FileSize,
			Note:   f.FormatNote,
		}
		if d.Size == 0 {
			d.Size = f.FileSizeApprox
		}
		if f.VCodec == "none" {
			d.Resolution = "audio"
			d.Height = 0
		} else {
			d.Resolution = fmt.Sprintf("%dp", f.Height)
			if f.FPS > 30 {
				d.Resolution += fmt.Sprintf("%.0f", f.FPS)
			}
		}
		ds = append(ds, d)
	}
	slices.SortStableFunc(ds, func(a, b Descriptor) int {
		if a.Height != b.Height {
			return b.Height - a.Height
		}
		return cmp.Compare(b.Size, a.Size)
	})
	return Dedupe(ds), nil
}

// EnsureYtdlp finds a yt-dlp binary: the configured path, then PATH, then next
// to the running executable, then the cache directory. When none exists it
// downloads the latest release into cacheDir.
func EnsureYtdlp(ctx context.Context, configured, cacheDir string, client utils.HTTPDoer) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured yt-dlp not found: %v", err)
		}
		return configured, nil
	}
	if path, err := exec.LookPath("yt-dlp"); err == nil {
		return path, nil
	}
	name := "yt-dlp"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	cached := filepath.Join(cacheDir, name)
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}
	return downloadYtdlp(ctx, cacheDir, name, client)
}

func downloadYtdlp(ctx context.Context, cacheDir, name string, client utils.HTTPDoer) (string, error) {
	goos := runtime.GOOS
	goarch := runtime.GOARCH
	var asset string
	switch {
	case goos == "windows" && goarch == "amd64":
		asset = "yt-dlp.exe"
	case goos == "windows" && goarch == "arm64":
		asset = "yt-dlp_arm64.exe"
	case goos == "linux" && goarch == "amd64":
		asset = "yt-dlp_linux"
	case goos == "linux" && goarch == "arm64":
		asset = "yt-dlp_linux_aarch64"
	case goos == "darwin":
		asset = "yt-dlp_macos"
	default:
		return "", fmt.Errorf("unsupported OS/arch: %s/%s", goos, goarch)
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("error creating cache directory: %v", err)
	}
	url := "https://github.com/yt-dlp/yt-dlp/releases/latest/download/" + asset
	log.Info().Str("op", "resolve/ytdlp").Msgf("yt-dlp not found, fetching %s", url)
	task := download.New(url, name, download.WithSaveDir(cacheDir), download.WithClient(client))
	if err := task.Start(); err != nil {
		return "", err
	}
	if err := task.Wait(ctx); err != nil {
		task.Stop()
		return "", err
	}
	if task.State() != download.Finished {
		return "", fmt.Errorf("error downloading yt-dlp: %v", task.Err())
	}
	if goos != "windows" {
		if err := os.Chmod(task.Path(), 0755); err != nil {
			return "", fmt.Errorf("error setting permissions: %v", err)
		}
	}
	return task.Path(), nil
}
