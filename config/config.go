// Package config loads and validates the settings shared by every
// subcommand: bucket, prefix, endpoint and credentials profile, upload
// tuning, and per-filesystem backup defaults. It layers viper over a TOML
// file and ZFS3BACKUP_-prefixed environment variables, generalizing the
// per-filesystem INI sections the original Python tool read with
// configparser into viper's nested-key support.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Filesystem holds the backup defaults for one ZFS filesystem, sourced from
// a [fs.<name>] table in the config file.
type Filesystem struct {
	Name           string
	SnapshotPrefix string
	Compressor     string
}

// Config holds every setting this module's subcommands read.
type Config struct {
	// Bucket, Prefix, Endpoint and Profile address the S3-compatible
	// object store backing the object catalog.
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	Profile  string

	// Concurrency and MaxRetries tune the multipart uploader. ChunkSize is
	// loaded and validated only; backups size their parts with
	// uploader.OptimizeChunkSize from the estimated stream size.
	Concurrency int
	ChunkSize   int64
	MaxRetries  uint64

	StorageClass string
	Compressor   string // default compressor label, overridable per filesystem

	DryRun          bool
	ShutdownTimeout time.Duration

	Filesystems map[string]Filesystem
}

// Defaults returns a Config populated with the same defaults Load applies
// before overlaying file and environment settings, useful for tests that
// construct a Config directly.
func Defaults() Config {
	return Config{
		Prefix:          "",
		Region:          "us-east-1",
		Concurrency:     4,
		MaxRetries:      5,
		StorageClass:    "STANDARD",
		Compressor:      "pigz4",
		ShutdownTimeout: 30 * time.Second,
		Filesystems:     map[string]Filesystem{},
	}
}

// Load reads configuration from, in increasing priority order: built-in
// defaults, a TOML file (configPath, or ~/.zfs3backup.toml if empty and
// present), then ZFS3BACKUP_-prefixed environment variables. configPath may
// be empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("zfs3backup")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("prefix", "")
	v.SetDefault("region", "us-east-1")
	v.SetDefault("concurrency", 4)
	v.SetDefault("max_retries", 5)
	v.SetDefault("storage_class", "STANDARD")
	v.SetDefault("compressor", "pigz4")
	v.SetDefault("shutdown_timeout", "30s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".zfs3backup")
		v.SetConfigType("toml")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	shutdownTimeout, err := time.ParseDuration(v.GetString("shutdown_timeout"))
	if err != nil {
		shutdownTimeout = 30 * time.Second
	}

	cfg := &Config{
		Bucket:          v.GetString("bucket"),
		Prefix:          v.GetString("prefix"),
		Region:          v.GetString("region"),
		Endpoint:        v.GetString("endpoint"),
		Profile:         v.GetString("profile"),
		Concurrency:     v.GetInt("concurrency"),
		ChunkSize:       v.GetInt64("chunk_size"),
		MaxRetries:      uint64(v.GetInt("max_retries")),
		StorageClass:    v.GetString("storage_class"),
		Compressor:      v.GetString("compressor"),
		DryRun:          v.GetBool("dry_run"),
		ShutdownTimeout: shutdownTimeout,
		Filesystems:     map[string]Filesystem{},
	}

	fsTable := v.GetStringMap("fs")
	for name := range fsTable {
		sub := v.Sub("fs." + name)
		fs := Filesystem{Name: name, Compressor: cfg.Compressor}
		if sub != nil {
			if p := sub.GetString("snapshot_prefix"); p != "" {
				fs.SnapshotPrefix = p
			}
			if c := sub.GetString("compressor"); c != "" {
				fs.Compressor = c
			}
		}
		cfg.Filesystems[name] = fs
	}

	return cfg, nil
}

// FilesystemDefaults returns the configured defaults for a filesystem, or
// module-wide defaults if it has no [fs.<name>] section.
func (c *Config) FilesystemDefaults(name string) Filesystem {
	if fs, ok := c.Filesystems[name]; ok {
		return fs
	}
	return Filesystem{Name: name, Compressor: c.Compressor}
}

// Validate ensures the settings required to talk to S3 and run an upload
// are present and in range.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("config: bucket is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be at least 1")
	}
	if c.ChunkSize != 0 && c.ChunkSize < 5<<20 {
		return fmt.Errorf("config: chunk size must be at least 5 MiB")
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("config: shutdown timeout must be at least 1 second")
	}
	return nil
}
