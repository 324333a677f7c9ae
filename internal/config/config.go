package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Server  ServerConfig  `envPrefix:"SERVER_"`
	Upload  UploadConfig  `envPrefix:"UPLOAD_"`
	Storage StorageConfig `envPrefix:"STORAGE_"`
	Capture CaptureConfig `envPrefix:"CAPTURE_"`
	View    ViewConfig    `envPrefix:"VIEW_"`
	Log     LogConfig     `envPrefix:"LOG_"`
}

// ServerConfig points at the remote interpretation service.
type ServerConfig struct {
	BaseURL string `env:"BASE_URL"`
}

type UploadConfig struct {
	// Timeout is a Go duration string. Empty or "0" keeps the transport default.
	Timeout string `env:"TIMEOUT"`
}

type StorageConfig struct {
	DataDir  string `env:"DATA_DIR"`
	CacheDir string `env:"CACHE_DIR"`
}

// CaptureConfig describes the external recorder used by "record" selections.
// Command may contain the placeholder {output}, replaced by the capture file path.
type CaptureConfig struct {
	Command string `env:"COMMAND"`
	Dir     string `env:"DIR"`
}

type ViewConfig struct {
	Port int `env:"PORT"`
	// Token, when set, is required as a bearer token on the HTTP view.
	Token string `env:"TOKEN"`
}

type LogConfig struct {
	Level string `env:"LEVEL"`
}

const envPrefix = "SIGNCHAT_"

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Storage: StorageConfig{
			DataDir:  dataDir,
			CacheDir: defaultCacheDir(),
		},
		Capture: CaptureConfig{
			Dir: defaultMoviesDir(dataDir),
		},
		View: ViewConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and SIGNCHAT_*
// environment variables, in that order of precedence (env wins).
//
// The file lives at $XDG_CONFIG_HOME/signchat/config.json.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("missing required config: server base URL. " +
			"Set it with `signchat config set server.base_url http://host:8000` " +
			"or the environment variable " + envPrefix + "SERVER_BASE_URL")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server.base_url %q: %w", c.Server.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q: want http(s)://host[:port]", c.Server.BaseURL)
	}
	if _, err := c.UploadTimeout(); err != nil {
		return err
	}
	return nil
}

// UploadTimeout parses Upload.Timeout. Zero means no override.
func (c Config) UploadTimeout() (time.Duration, error) {
	if c.Upload.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Upload.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid upload.timeout %q: %w", c.Upload.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid upload.timeout %q: must not be negative", c.Upload.Timeout)
	}
	return d, nil
}
