package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/utils"
	"gopkg.in/yaml.v3"
)

const APIKeyEnv = "VIDGRAB_YOUTUBE_API_KEY"

type Config struct {
	SaveDir   string        `yaml:"save_dir"`
	ChunkSize int           `yaml:"chunk_size"`
	PageSize  int           `yaml:"page_size"`
	YtdlpPath string        `yaml:"ytdlp_path,omitempty"`
	YouTube   YouTubeConfig `yaml:"youtube"`
	AWS       AWSConfig     `yaml:"aws"`
	HTTP      HTTPConfig    `yaml:"http"`
}

type YouTubeConfig struct {
	APIKey          string `yaml:"api_key,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	TokenFile       string `yaml:"token_file"`
}

type AWSConfig struct {
	Profile       string        `yaml:"profile,omitempty"`
	Region        string        `yaml:"region,omitempty"`
	Endpoint      string        `yaml:"endpoint,omitempty"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	KeepAlive     time.Duration `yaml:"keep_alive"`
	UserAgent     string        `yaml:"user_agent,omitempty"`
	Proxy         string        `yaml:"proxy,omitempty"`
	ProxyUsername string        `yaml:"proxy_username,omitempty"`
	ProxyPassword string        `yaml:"proxy_password,omitempty"`
	Headers       []string      `yaml:"headers,omitempty"`
	LargeBuffers  bool          `yaml:"large_buffers,omitempty"`
}

func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vidgrab")
	}
	return ".vidgrab"
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func Default() Config {
	saveDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		saveDir = filepath.Join(home, "Videos", "vidgrab")
	}
	return Config{
		SaveDir:   saveDir,
		ChunkSize: utils.DefaultChunkSize,
		PageSize:  utils.DefaultPageSize,
		YouTube: YouTubeConfig{
			TokenFile: filepath.Join(Dir(), "youtube-token.json"),
		},
		AWS: AWSConfig{
			PresignExpiry: time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout:   60 * time.Second,
			KeepAlive: 90 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not an
// error. The API key environment variable wins over the file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("op", "config/config").Msgf("no config at %s, using defaults", path)
	case err != nil:
		return cfg, fmt.Errorf("error reading config: %v", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config %s: %v", path, err)
		}
		log.Debug().Str("op", "config/config").Msgf("loaded config from %s", path)
	}
	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.YouTube.APIKey = key
	}
	cfg.SaveDir = utils.ExpandHome(cfg.SaveDir)
	cfg.YtdlpPath = utils.ExpandHome(cfg.YtdlpPath)
	cfg.YouTube.CredentialsFile = utils.ExpandHome(cfg.YouTube.CredentialsFile)
	cfg.YouTube.TokenFile = utils.ExpandHome(cfg.YouTube.TokenFile)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	// search.list caps maxResults at 50
	if c.PageSize <= 0 || c.PageSize > 50 {
		return fmt.Errorf("page_size must be between 1 and 50, got %d", c.PageSize)
	}
	if c.SaveDir == "" {
		return errors.New("save_dir must not be empty")
	}
	return nil
}

// Save writes c to path, creating parent directories.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %v", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error encoding config: %v", err)
	}
	return os.WriteFile(path, data, 0600)
}

// HTTPClientConfig turns the http section into the client settings used everywhere.
func (c Config) HTTPClientConfig() utils.HTTPClientConfig {
	cfg := utils.HTTPClientConfig{
		Timeout:       c.HTTP.Timeout,
		KATimeout:     c.HTTP.KeepAlive,
		ProxyURL:      c.HTTP.Proxy,
		ProxyUsername: c.HTTP.ProxyUsername,
		ProxyPassword: c.HTTP.ProxyPassword,
		UserAgent:     c.HTTP.UserAgent,
		Headers:       utils.ParseHeaderArgs(c.HTTP.Headers),
		LargeBuffers:  c.HTTP.LargeBuffers,
	}
	if cfg.UserAgent == "randomize" {
		cfg.UserAgent = utils.GetRandomUserAgent()
	}
	return cfg
}
