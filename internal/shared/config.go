package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig    `toml:"credentials"`
	MediaServer MediaServerConfig    `toml:"media_server"`
	Database    DatabaseConfig       `toml:"database"`
	Lock        LockConfig           `toml:"lock"`
	Download    DownloadConfig       `toml:"download"`
	Matching    MatchingConfig       `toml:"matching"`
	Jobs        map[string]JobConfig `toml:"jobs"`
	Server      ServerConfig         `toml:"server"`
	Log         LogConfig            `toml:"log"`
}

// CredentialsConfig contains catalog provider credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Deezer  DeezerConfig  `toml:"deezer"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DeezerConfig toggles the Deezer catalog provider, which needs no credentials for public playlists.
type DeezerConfig struct {
	Enabled bool `toml:"enabled"`
}

// MediaServerConfig contains the Jellyfin server address and API token.
type MediaServerConfig struct {
	URL         string `toml:"url"`
	AccessToken string `toml:"access_token"`
	UserID      string `toml:"user_id"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LockConfig selects the lock store backend: "sqlite", "redis" or "memory".
type LockConfig struct {
	Backend  string `toml:"backend"`
	RedisURL string `toml:"redis_url"`
}

// DownloadConfig controls the download tool invocation.
type DownloadConfig struct {
	OutputTemplate        string   `toml:"output_template"`
	Timeout               Duration `toml:"timeout"`
	SearchBeforeDownload  bool     `toml:"search_before_download"`
	RefreshLibrariesAfter bool     `toml:"refresh_libraries_after"`
	CookieFile            string   `toml:"cookie_file"`
	Tool                  string   `toml:"tool"`
}

// MatchingConfig controls track identity resolution.
type MatchingConfig struct {
	FingerprintFallback  bool     `toml:"fingerprint_fallback"`
	FingerprintThreshold float64  `toml:"fingerprint_threshold"`
	SingleResultFastPath bool     `toml:"single_result_fast_path"`
	DeepQualityAnalysis  bool     `toml:"deep_quality_analysis"`
	ProbeTimeout         Duration `toml:"probe_timeout"`
	PreviewTimeout       Duration `toml:"preview_timeout"`
}

// JobConfig holds per-job lock TTL and schedule interval.
type JobConfig struct {
	TTL      Duration `toml:"ttl"`
	Interval Duration `toml:"interval"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration decodes TOML strings such as "90s" or "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: bad duration %q", ErrInvalidConfig, text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process environment.
// Missing files are ignored; variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values with environment variables when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(dst *bool, key string) {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.MediaServer.URL, "JELLYFIN_SERVER_URL")
	setString(&c.MediaServer.AccessToken, "JELLYFIN_ACCESS_TOKEN")
	setString(&c.MediaServer.UserID, "JELLYFIN_USER_ID")
	setString(&c.Lock.RedisURL, "REDIS_URL")
	setString(&c.Lock.Backend, "JELLYSYNC_LOCK_BACKEND")
	setString(&c.Database.Path, "JELLYSYNC_DATABASE_PATH")
	setString(&c.Download.OutputTemplate, "JELLYSYNC_OUTPUT_TEMPLATE")
	setString(&c.Download.CookieFile, "JELLYSYNC_COOKIE_FILE")
	setString(&c.Log.Level, "JELLYSYNC_LOG_LEVEL")
	setBool(&c.Download.SearchBeforeDownload, "JELLYSYNC_SEARCH_BEFORE_DOWNLOAD")
	setBool(&c.Download.RefreshLibrariesAfter, "JELLYSYNC_REFRESH_LIBRARIES_AFTER_DOWNLOAD")
	setBool(&c.Matching.FingerprintFallback, "JELLYSYNC_FINGERPRINT_FALLBACK")
	setBool(&c.Matching.DeepQualityAnalysis, "JELLYSYNC_DEEP_QUALITY_ANALYSIS")
	setBool(&c.Credentials.Deezer.Enabled, "JELLYSYNC_DEEZER_ENABLED")
	if v := getenv("JELLYSYNC_FINGERPRINT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Matching.FingerprintThreshold = f
		}
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	switch c.Lock.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("%w: lock.redis_url is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown lock backend %q", ErrInvalidConfig, c.Lock.Backend)
	}
	if t := c.Matching.FingerprintThreshold; t <= 0 || t > 100 {
		return fmt.Errorf("%w: matching.fingerprint_threshold must be in (0, 100], got %v", ErrInvalidConfig, t)
	}
	if c.Download.Timeout.Duration <= 0 {
		return fmt.Errorf("%w: download.timeout must be positive", ErrInvalidConfig)
	}
	for name, job := range c.Jobs {
		if job.TTL.Duration <= 0 {
			return fmt.Errorf("%w: jobs.%s.ttl must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}

// JobTTL returns the configured lock TTL for a job, or fallback when unset.
func (c *Config) JobTTL(name string, fallback time.Duration) time.Duration {
	if job, ok := c.Jobs[name]; ok && job.TTL.Duration > 0 {
		return job.TTL.Duration
	}
	return fallback
}

// JobInterval returns the configured schedule interval for a job, or fallback when unset.
func (c *Config) JobInterval(name string, fallback time.Duration) time.Duration {
	if job, ok := c.Jobs[name]; ok && job.Interval.Duration > 0 {
		return job.Interval.Duration
	}
	return fallback
}
