package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/config"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/utils"
)

var (
	cfgFile       string
	saveDir       string
	chunkSize     int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	largeBuffers  bool
	debug         bool
	logFile       string
	workers       int
	interactive   bool
)

var (
	cfg              config.Config
	globalHTTPConfig utils.HTTPClientConfig
)

var VidgrabVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "vidgrab",
	Short: "Search video catalogs and download with pause, resume and cancel",
	Long: `vidgrab searches YouTube (or lists an S3 bucket), resolves the downloadable
formats of a result and downloads them with live progress.

While downloads run, --interactive accepts line commands on stdin:
  p [n]  pause      r [n]  resume      s [n]  stop
  d n    remove     l      list`,
	Version:           VidgrabVersion,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", config.DefaultPath(), "Path to the YAML settings file")
	flags.StringVarP(&saveDir, "output", "o", "", "Directory downloads are saved to (default from config)")
	flags.IntVar(&chunkSize, "chunk-size", utils.DefaultChunkSize, "Bytes read per step; bounds pause and stop latency")
	flags.IntVarP(&workers, "workers", "w", 0, "Maximum downloads running at once (0 for no limit)")
	flags.DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Connection and response header timeout (eg. 5s, 10m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	flags.BoolVar(&largeBuffers, "large-buffers", false, "Use 1 MiB socket buffers")
	flags.BoolVarP(&interactive, "interactive", "i", false, "Read pause/resume/stop commands from stdin while downloading")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr (e.g. "+utils.LogFile+")")

	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newFormatsCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newS3Cmd())
	rootCmd.AddCommand(newConfigCmd())
}

// setup loads settings, lets explicitly set flags override them and builds
// the shared HTTP client configuration.
func setup(cmd *cobra.Command, args []string) error {
	utils.InitLogger(debug)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("unable to open log file: %v", err)
		}
		utils.SetLogOutput(f)
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		output.PrintError(err.Error())
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.SaveDir = utils.ExpandHome(saveDir)
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.HTTP.KeepAlive = kaTimeout
	}
	if flags.Changed("user-agent") {
		cfg.HTTP.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		cfg.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	if flags.Changed("header") {
		cfg.HTTP.Headers = append(cfg.HTTP.Headers, headers...)
	}
	if flags.Changed("large-buffers") {
		cfg.HTTP.LargeBuffers = largeBuffers
	}
	if err := cfg.Validate(); err != nil {
		output.PrintError(err.Error())
		return err
	}

	// credentials embedded in the proxy URL move to the dedicated fields
	parsedProxy, err := u.Parse(cfg.HTTP.Proxy)
	if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
		cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.HTTP.Proxy = parsedProxy.String()
	}
	globalHTTPConfig = cfg.HTTPClientConfig()
	log.Debug().Str("op", "cmd/root").Msgf("save dir %s, chunk size %d", cfg.SaveDir, cfg.ChunkSize)
	return nil
}
