package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "ytgrab"
)

// ConfigDir returns the standard config directory for ytgrab.
// Windows: %APPDATA%\ytgrab\
// macOS/Linux: ~/.config/ytgrab/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

type Config struct {
	// OutputDir is the directory holding in-progress and completed downloads
	OutputDir string `yaml:"output_dir,omitempty"`

	// YouTubeAPIKey enables the Data API v3 as the primary metadata source
	YouTubeAPIKey string `yaml:"youtube_api_key,omitempty"`

	// Proxy is forwarded to both the extraction engine and the headless browser
	Proxy string `yaml:"proxy,omitempty"`

	// CookiesContent is Netscape-format cookie data handed to the extraction engine
	CookiesContent string `yaml:"cookies_content,omitempty"`

	// FFmpegPath overrides the ffmpeg binary location
	FFmpegPath string `yaml:"ffmpeg_path,omitempty"`

	// YtDlpPath overrides the extraction engine binary (default: yt-dlp from PATH)
	YtDlpPath string `yaml:"ytdlp_path,omitempty"`

	Server ServerConfig `yaml:"server,omitempty"`
	Probe  ProbeConfig  `yaml:"probe,omitempty"`
}

// ServerConfig holds HTTP server settings for `ytgrab serve`
type ServerConfig struct {
	// Port is the HTTP listen port (default: 8080)
	Port int `yaml:"port,omitempty"`

	// APIKey for authentication (if set, requests must include X-API-Key)
	APIKey string `yaml:"api_key,omitempty"`

	// RetentionMinutes keeps terminal jobs retrievable before eviction (default: 60)
	RetentionMinutes int `yaml:"retention_minutes,omitempty"`
}

// ProbeConfig holds player-instrumentation probe settings
type ProbeConfig struct {
	// Disabled turns the headless-browser probe off entirely
	Disabled bool `yaml:"disabled,omitempty"`

	// TimeoutSeconds is the hard wall-clock limit for one probe run (default: 20)
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// SettleMillis is how long to wait after playback starts before
	// reading the quality tiers (default: 1500)
	SettleMillis int `yaml:"settle_millis,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputDir: DefaultDownloadDir(),
	}
}

// DefaultDownloadDir returns the default download directory
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./downloads"
	}
	switch runtime.GOOS {
	case "darwin", "windows":
		return filepath.Join(home, "Downloads", "ytgrab")
	default:
		return filepath.Join(home, "downloads")
	}
}

// Exists checks if the config file exists
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the config from ~/.config/ytgrab/config.yml
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads the config file, falling back to defaults, then
// applies a .env file (if present) and environment overrides. Environment
// always wins over the file so deployments can configure without a config
// file at all.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		cfg = DefaultConfig()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultDownloadDir()
	}

	// Ignore the error: a missing .env file is the normal case.
	_ = godotenv.Load()
	loadEnv(cfg)
	return cfg
}

// loadEnv applies environment variable overrides to cfg.
func loadEnv(cfg *Config) {
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTubeAPIKey = v
	}
	if v := os.Getenv("YTGRAB_PROXY_URL"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("YTGRAB_COOKIES_CONTENT"); v != "" {
		cfg.CookiesContent = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv("YTGRAB_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("YTGRAB_DISABLE_PROBE"); v == "true" || v == "1" || v == "yes" {
		cfg.Probe.Disabled = true
	}
}

// Save writes the config to ~/.config/ytgrab/config.yml
func Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ProbeTimeoutSeconds returns the configured probe timeout with its default.
func (c *Config) ProbeTimeoutSeconds() int {
	if c.Probe.TimeoutSeconds > 0 {
		return c.Probe.TimeoutSeconds
	}
	return 20
}

// ProbeSettleMillis returns the configured settle delay with its default.
func (c *Config) ProbeSettleMillis() int {
	if c.Probe.SettleMillis > 0 {
		return c.Probe.SettleMillis
	}
	return 1500
}

// RetentionMinutes returns the terminal-job retention window with its default.
func (c *Config) RetentionMinutes() int {
	if c.Server.RetentionMinutes > 0 {
		return c.Server.RetentionMinutes
	}
	return 60
}
