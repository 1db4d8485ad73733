package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"trackmix/internal/encoder"
	"trackmix/internal/timeline"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Media    MediaConfig    `toml:"media"`
	Mixdown  MixdownConfig  `toml:"mixdown"`
	Encoder  EncoderConfig  `toml:"encoder"`
	Export   ExportConfig   `toml:"export"`
	Tunnel   TunnelConfig   `toml:"tunnel"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port          string `toml:"port"`
	Host          string `toml:"host"`
	EnableCORS    bool   `toml:"enable_cors"`
	ReadTimeout   int    `toml:"read_timeout_seconds"`
	ExportTimeout int    `toml:"export_timeout_seconds"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// MediaConfig describes where uploaded and built-in audio lives
type MediaConfig struct {
	Root               string   `toml:"root"`
	URLPrefix          string   `toml:"url_prefix"`
	EffectsDir         string   `toml:"effects_dir"`
	SupportedFormats   []string `toml:"supported_formats"`
	WatchEffects       bool     `toml:"watch_effects"`
	MaxUploadSizeMB    int64    `toml:"max_upload_size_mb"`
	MaxUploadsPerOwner int      `toml:"max_uploads_per_owner"`
}

// MixdownConfig controls timeline normalization and the output format.
// Zero sample rate or channels means derive from the decoded clips.
type MixdownConfig struct {
	StartTimeUnit    string `toml:"start_time_unit"`
	SampleRate       int    `toml:"sample_rate"`
	Channels         int    `toml:"channels"`
	DecodeSampleRate int    `toml:"decode_sample_rate"`
	DecodeChannels   int    `toml:"decode_channels"`
}

// EncoderConfig selects the export codec
type EncoderConfig struct {
	Format      string `toml:"format"`
	FFmpegPath  string `toml:"ffmpeg_path"`
	Codec       string `toml:"codec"`
	BitrateKbps int    `toml:"bitrate_kbps"`
}

// ExportConfig controls the in-memory cache of encoded exports.
// A zero TTL disables caching.
type ExportConfig struct {
	CacheTTLSeconds int   `toml:"cache_ttl_seconds"`
	CacheMaxMB      int64 `toml:"cache_max_mb"`
}

// TunnelConfig contains ngrok tunnel configuration
type TunnelConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			Host:          "0.0.0.0",
			EnableCORS:    true,
			ReadTimeout:   30,
			ExportTimeout: 120,
		},
		Database: DatabaseConfig{
			Path:           "./trackmix.db",
			MaxConnections: 5,
		},
		Media: MediaConfig{
			Root:               "./media",
			URLPrefix:          "/media/",
			EffectsDir:         "./media/effects",
			SupportedFormats:   []string{".mp3", ".wav", ".flac", ".m4a", ".ogg", ".webm"},
			WatchEffects:       true,
			MaxUploadSizeMB:    50,
			MaxUploadsPerOwner: 0,
		},
		Mixdown: MixdownConfig{
			StartTimeUnit:    string(timeline.Seconds),
			DecodeSampleRate: 44100,
			DecodeChannels:   2,
		},
		Encoder: EncoderConfig{
			Format:      "mp3",
			FFmpegPath:  "ffmpeg",
			Codec:       encoder.DefaultCodec,
			BitrateKbps: encoder.DefaultBitrateKbps,
		},
		Export: ExportConfig{
			CacheTTLSeconds: 300,
			CacheMaxMB:      128,
		},
		Tunnel: TunnelConfig{
			Enabled:      false,
			AuthProvider: "google",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			RequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Config file doesn't exist, create it with defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Environment overrides, applied after the config file
const (
	EnvPort          = "TRACKMIX_PORT"
	EnvDatabasePath  = "TRACKMIX_DB_PATH"
	EnvMediaRoot     = "TRACKMIX_MEDIA_ROOT"
	EnvFFmpegPath    = "TRACKMIX_FFMPEG"
	EnvLogLevel      = "TRACKMIX_LOG_LEVEL"
	EnvStartTimeUnit = "TRACKMIX_START_TIME_UNIT"
	EnvBitrate       = "TRACKMIX_BITRATE_KBPS"
)

// ApplyEnv overrides file values with TRACKMIX_* environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPort); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvMediaRoot); v != "" {
		c.Media.Root = v
		c.Media.EffectsDir = filepath.Join(v, "effects")
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		c.Encoder.FFmpegPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvStartTimeUnit); v != "" {
		c.Mixdown.StartTimeUnit = v
	}
	if v := os.Getenv(EnvBitrate); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Encoder.BitrateKbps = n
		}
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# trackmix configuration
# Timeline mixdown and export server. start_time_unit decides how stored clip
# start times (startTime / start_time) are read: "seconds" or "milliseconds".

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	enc := toml.NewEncoder(file)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.ExportTimeout < 0 {
		return fmt.Errorf("server export timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Media.Root == "" {
		return fmt.Errorf("media root cannot be empty")
	}
	if c.Media.URLPrefix == "" || c.Media.URLPrefix[0] != '/' {
		return fmt.Errorf("media url prefix must start with /")
	}
	if c.Media.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if c.Media.MaxUploadsPerOwner < 0 {
		return fmt.Errorf("max uploads per owner must not be negative")
	}
	if len(c.Media.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	if _, err := timeline.ParseUnit(c.Mixdown.StartTimeUnit); err != nil {
		return err
	}
	if c.Mixdown.SampleRate < 0 || c.Mixdown.Channels < 0 {
		return fmt.Errorf("mixdown sample rate and channels must not be negative")
	}
	if c.Mixdown.DecodeSampleRate <= 0 || c.Mixdown.DecodeChannels <= 0 {
		return fmt.Errorf("mixdown decode sample rate and channels must be positive")
	}

	switch c.Encoder.Format {
	case "mp3", "wav":
	default:
		return fmt.Errorf("invalid encoder format: %s (must be mp3 or wav)", c.Encoder.Format)
	}
	if c.Encoder.BitrateKbps <= 0 {
		return fmt.Errorf("encoder bitrate must be positive")
	}

	if c.Export.CacheTTLSeconds < 0 || c.Export.CacheMaxMB < 0 {
		return fmt.Errorf("export cache settings must not be negative")
	}

	if c.Tunnel.EnableAuth && c.Tunnel.AuthProvider == "" {
		return fmt.Errorf("tunnel auth provider is required when tunnel auth is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// LocalURL returns a URL that reaches the server from this machine.
func (c *Config) LocalURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + host + ":" + c.Server.Port
}

// StartTimeUnit returns the validated start time unit.
func (c *Config) StartTimeUnit() timeline.Unit {
	unit, err := timeline.ParseUnit(c.Mixdown.StartTimeUnit)
	if err != nil {
		return timeline.Seconds
	}
	return unit
}

// EncoderSettings converts encoder settings for encoder.New.
func (c *Config) EncoderSettings() encoder.Config {
	return encoder.Config{
		Format:      c.Encoder.Format,
		FFmpegPath:  c.Encoder.FFmpegPath,
		Codec:       c.Encoder.Codec,
		BitrateKbps: c.Encoder.BitrateKbps,
	}
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Media.SupportedFormats {
		if supported == format {
			return true
		}
	}
	return false
}
