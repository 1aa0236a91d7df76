package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for kemonosync
type Config struct {
	// Upstream site and credentials
	API APIConfig `yaml:"api" json:"api"`

	// Download behaviour
	Download DownloadConfig `yaml:"download" json:"download"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Run metrics export
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// APIConfig holds upstream-specific configuration
type APIConfig struct {
	Hostname        string        `yaml:"hostname" json:"hostname"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"-"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Threads         int    `yaml:"threads" json:"threads"`
	AcceptReencoded bool   `yaml:"accept_reencoded" json:"accept_reencoded"`
	NameFilter      string `yaml:"name_filter" json:"name_filter"`
	PageRetries     int    `yaml:"page_retries" json:"page_retries"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// RateLimitConfig holds request pacing configuration. Zero requests per
// minute disables pacing.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int `yaml:"burst" json:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// MetricsConfig holds metrics export configuration
type MetricsConfig struct {
	// Textfile is a path the run counters are written to in Prometheus
	// text format, for node_exporter's textfile collector. Empty disables it.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			UserAgent:       "kemonosync/1.0",
			RequestTimeout:  30 * time.Second,
			DownloadTimeout: 10 * time.Minute,
		},
		Download: DownloadConfig{
			Threads:         2,
			AcceptReencoded: false,
			PageRetries:     3,
		},
		Output: OutputConfig{
			BaseDirectory: "./download",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 0,
			Burst:             1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from KEMONO_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if hostname := os.Getenv("KEMONO_HOSTNAME"); hostname != "" {
		c.API.Hostname = hostname
	}
	if username := os.Getenv("KEMONO_USERNAME"); username != "" {
		c.API.Username = username
	}
	if password := os.Getenv("KEMONO_PASSWORD"); password != "" {
		c.API.Password = password
	}
	if userAgent := os.Getenv("KEMONO_USER_AGENT"); userAgent != "" {
		c.API.UserAgent = userAgent
	}

	if threads := os.Getenv("KEMONO_THREADS"); threads != "" {
		val, err := strconv.Atoi(threads)
		if err != nil {
			errs = append(errs, fmt.Errorf("KEMONO_THREADS: %w", err))
		} else {
			c.Download.Threads = val
		}
	}
	if mkvs := os.Getenv("KEMONO_MKVS"); mkvs != "" {
		val, err := strconv.ParseBool(mkvs)
		if err != nil {
			errs = append(errs, fmt.Errorf("KEMONO_MKVS: %w", err))
		} else {
			c.Download.AcceptReencoded = val
		}
	}
	if filter := os.Getenv("KEMONO_FILENAME"); filter != "" {
		c.Download.NameFilter = filter
	}

	if outputDir := os.Getenv("KEMONO_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}

	if rpm := os.Getenv("KEMONO_REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil {
			errs = append(errs, fmt.Errorf("KEMONO_REQUESTS_PER_MINUTE: %w", err))
		} else {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	if logLevel := os.Getenv("KEMONO_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if debug := os.Getenv("KEMONO_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && val {
			c.Logging.Level = "debug"
		}
	}

	if textfile := os.Getenv("KEMONO_METRICS_TEXTFILE"); textfile != "" {
		c.Metrics.Textfile = textfile
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".kemonosync.yaml",
		".kemonosync.yml",
		filepath.Join(home, ".config", "kemonosync", "config.yaml"),
		filepath.Join(home, ".config", "kemonosync", "config.yml"),
		filepath.Join(home, ".kemonosync.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.Hostname) == "" {
		errs = append(errs, errors.New("hostname is required (--hostname or KEMONO_HOSTNAME)"))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.API.DownloadTimeout < 0 {
		errs = append(errs, errors.New("download timeout cannot be negative"))
	}
	if c.API.Username != "" && c.API.Password == "" {
		errs = append(errs, errors.New("password is required when a username is set"))
	}

	if c.Download.Threads <= 0 {
		errs = append(errs, errors.New("threads must be positive"))
	}
	if c.Download.Threads > 32 {
		errs = append(errs, errors.New("threads should not exceed 32"))
	}
	if c.Download.PageRetries < 1 {
		errs = append(errs, errors.New("page retries must be at least 1"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive when rate limiting is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if hostname, ok := flags["hostname"].(string); ok && hostname != "" {
		c.API.Hostname = hostname
	}
	if threads, ok := flags["threads"].(int); ok && threads > 0 {
		c.Download.Threads = threads
	}
	if mkvs, ok := flags["mkvs"].(bool); ok {
		c.Download.AcceptReencoded = mkvs
	}
	if filter, ok := flags["filename"].(string); ok {
		c.Download.NameFilter = filter
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if debug, ok := flags["debug"].(bool); ok && debug {
		c.Logging.Level = "debug"
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm >= 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if textfile, ok := flags["metrics-textfile"].(string); ok && textfile != "" {
		c.Metrics.Textfile = textfile
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	config, err := LoadUnvalidated(configPath, flags)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadUnvalidated resolves configuration like Load but skips validation
func LoadUnvalidated(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".kemonosync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	return config, nil
}
