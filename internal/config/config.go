// Package config loads r2d2 settings from a config file and the environment.
//
// Settings are flat keys named after their environment variables
// (R2_ACCOUNT_ID, R2_BUCKET, ...). A config file may be yaml, json or a
// dotenv file; environment variables always take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/upload"
)

// Candidates are the files checked in the working directory, in order
var Candidates = []string{".r2", ".env"}

// Config holds all configuration for r2d2
type Config struct {
	AccountID       string `mapstructure:"r2_account_id" yaml:"r2_account_id,omitempty"`
	APIKey          string `mapstructure:"r2_api_key" yaml:"r2_api_key,omitempty"`
	Bucket          string `mapstructure:"r2_bucket" yaml:"r2_bucket,omitempty"`
	AccessKeyID     string `mapstructure:"r2_access_key_id" yaml:"r2_access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"r2_secret_access_key" yaml:"r2_secret_access_key,omitempty"`

	Endpoint     string `mapstructure:"r2_endpoint" yaml:"r2_endpoint,omitempty"`
	Region       string `mapstructure:"r2_region" yaml:"r2_region,omitempty"`
	Driver       string `mapstructure:"r2_driver" yaml:"r2_driver,omitempty"`         // s3, minio, local, memory
	LocalPath    string `mapstructure:"r2_local_path" yaml:"r2_local_path,omitempty"` // Root for the local driver
	PublicDomain string `mapstructure:"r2_public_domain" yaml:"r2_public_domain,omitempty"`
	PathStyle    bool   `mapstructure:"r2_path_style" yaml:"r2_path_style,omitempty"`

	ChunkSize         string `mapstructure:"r2_chunk_size" yaml:"r2_chunk_size,omitempty"` // Human size, e.g. 50MiB
	MaxChunks         int    `mapstructure:"r2_max_chunks" yaml:"r2_max_chunks,omitempty"`
	UploadConcurrency int    `mapstructure:"r2_upload_concurrency" yaml:"r2_upload_concurrency,omitempty"` // 0 = unbounded
	MaxBandwidth      string `mapstructure:"r2_max_bandwidth" yaml:"r2_max_bandwidth,omitempty"`           // Human size per second, empty = unlimited
	CallTimeout       string `mapstructure:"r2_call_timeout" yaml:"r2_call_timeout,omitempty"`             // Per storage call, e.g. 5m; empty = no limit

	LogLevel  string `mapstructure:"r2_log_level" yaml:"r2_log_level,omitempty"`
	LogFormat string `mapstructure:"r2_log_format" yaml:"r2_log_format,omitempty"`

	// Source is the file the config was read from, empty for environment only
	Source string `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns a configuration with defaults only
func DefaultConfig() *Config {
	return &Config{
		Region:    "auto",
		Driver:    "s3",
		ChunkSize: "50MiB",
		MaxChunks: upload.MaxChunks,
		LogLevel:  "warn",
		LogFormat: "console",
	}
}

// Guess finds the configuration. An explicit path wins; otherwise the first
// existing candidate file in the working directory is used, and when none
// exists the environment alone.
func Guess(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, apperr.Configuration(fmt.Sprintf("config file %s not found", path))
		}
		return Load(path)
	}

	for _, candidate := range Candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return Load(candidate)
		}
	}
	return Load("")
}

// Load reads the given file (if any), overlays the environment and validates
// the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, apperr.Wrap(apperr.KindConfiguration, "failed to read config file", err).
				With("path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "failed to parse configuration", err)
	}
	cfg.Source = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setupViper registers defaults for every key so AutomaticEnv can populate
// keys absent from the file.
func setupViper(v *viper.Viper, path string) {
	d := DefaultConfig()
	v.SetDefault("r2_account_id", "")
	v.SetDefault("r2_api_key", "")
	v.SetDefault("r2_bucket", "")
	v.SetDefault("r2_access_key_id", "")
	v.SetDefault("r2_secret_access_key", "")
	v.SetDefault("r2_endpoint", "")
	v.SetDefault("r2_region", d.Region)
	v.SetDefault("r2_driver", d.Driver)
	v.SetDefault("r2_local_path", "")
	v.SetDefault("r2_public_domain", "")
	v.SetDefault("r2_path_style", false)
	v.SetDefault("r2_chunk_size", d.ChunkSize)
	v.SetDefault("r2_max_chunks", d.MaxChunks)
	v.SetDefault("r2_upload_concurrency", 0)
	v.SetDefault("r2_max_bandwidth", "")
	v.SetDefault("r2_call_timeout", "")
	v.SetDefault("r2_log_level", d.LogLevel)
	v.SetDefault("r2_log_format", d.LogFormat)

	v.AutomaticEnv()

	if path == "" {
		return
	}
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".toml":
	default:
		// .r2, .env and extensionless files are dotenv
		v.SetConfigType("env")
	}
}

// Validate checks values that do not depend on the command being run
func (c *Config) Validate() error {
	switch c.Driver {
	case "s3", "minio", "local", "memory":
	default:
		return apperr.Configuration(fmt.Sprintf("unknown storage driver %q (use s3, minio, local or memory)", c.Driver))
	}

	size, err := c.ChunkSizeBytes()
	if err != nil {
		return err
	}
	if size < upload.MinChunkSize {
		return apperr.Configuration(fmt.Sprintf("chunk size %s is below the minimum of %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(upload.MinChunkSize)))
	}

	if c.MaxChunks < 1 || c.MaxChunks > upload.MaxChunks {
		return apperr.Configuration(fmt.Sprintf("max chunks must be between 1 and %d", upload.MaxChunks))
	}
	if c.UploadConcurrency < 0 {
		return apperr.Configuration("upload concurrency cannot be negative")
	}
	if _, err := c.MaxBandwidthBytes(); err != nil {
		return err
	}
	if _, err := c.CallTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// RequireAPI checks the settings needed for Cloudflare API calls
func (c *Config) RequireAPI() error {
	var missing []string
	if c.AccountID == "" {
		missing = append(missing, "R2_ACCOUNT_ID")
	}
	if c.APIKey == "" {
		missing = append(missing, "R2_API_KEY")
	}
	return missingError(missing)
}

// RequireStorage checks the settings needed to reach the object store
func (c *Config) RequireStorage() error {
	var missing []string
	switch c.Driver {
	case "local":
		if c.LocalPath == "" {
			missing = append(missing, "R2_LOCAL_PATH")
		}
	case "memory":
	default:
		if c.AccessKeyID == "" {
			missing = append(missing, "R2_ACCESS_KEY_ID")
		}
		if c.SecretAccessKey == "" {
			missing = append(missing, "R2_SECRET_ACCESS_KEY")
		}
		if c.Bucket == "" {
			missing = append(missing, "R2_BUCKET")
		}
		if c.Endpoint == "" && c.AccountID == "" {
			missing = append(missing, "R2_ACCOUNT_ID")
		}
	}
	return missingError(missing)
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return apperr.Configuration(fmt.Sprintf("missing configuration: %s", strings.Join(missing, ", ")))
}

// ChunkSizeBytes parses ChunkSize
func (c *Config) ChunkSizeBytes() (int64, error) {
	if c.ChunkSize == "" {
		return upload.DefaultChunkSize, nil
	}
	n, err := humanize.ParseBytes(c.ChunkSize)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindConfiguration, fmt.Sprintf("invalid chunk size %q", c.ChunkSize), err)
	}
	return int64(n), nil
}

// MaxBandwidthBytes parses MaxBandwidth, 0 means unlimited
func (c *Config) MaxBandwidthBytes() (int64, error) {
	if c.MaxBandwidth == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxBandwidth)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindConfiguration, fmt.Sprintf("invalid max bandwidth %q", c.MaxBandwidth), err)
	}
	return int64(n), nil
}

// CallTimeoutDuration parses CallTimeout, 0 means no limit
func (c *Config) CallTimeoutDuration() (time.Duration, error) {
	if c.CallTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindConfiguration, fmt.Sprintf("invalid call timeout %q", c.CallTimeout), err)
	}
	if d < 0 {
		return 0, apperr.Configuration(fmt.Sprintf("call timeout %s must not be negative", c.CallTimeout))
	}
	return d, nil
}

// EndpointURL returns the explicit endpoint or the account's R2 endpoint
func (c *Config) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.AccountID == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// Backend returns the storage driver settings
func (c *Config) Backend() backend.Config {
	bw, _ := c.MaxBandwidthBytes()
	return backend.Config{
		Driver:          c.Driver,
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.EndpointURL(),
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UsePathStyle:    c.PathStyle,
		LocalPath:       c.LocalPath,
		MaxBandwidth:    bw,
	}
}

// UploadOptions returns the upload engine settings
func (c *Config) UploadOptions() upload.Options {
	size, err := c.ChunkSizeBytes()
	if err != nil {
		size = upload.DefaultChunkSize
	}
	return upload.Options{
		ChunkSize:      size,
		MaxChunks:      c.MaxChunks,
		Concurrency:    c.UploadConcurrency,
		PublicDomain:   c.PublicDomain,
		AbortOnFailure: true,
		Bucket:         c.Bucket,
	}
}

// Save writes the configuration as yaml. The file holds credentials and is
// created with mode 0600.
func (c *Config) Save(path string) error {
	if path == "" {
		return errors.New("config path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
