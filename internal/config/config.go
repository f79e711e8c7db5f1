// Package config loads the shopfront.json configuration file.
//
// Every field has a working default: a missing file yields a server on
// :8080 with in-memory storage and the mock identity provider, which is
// the development setup. Environment variables override the file for
// the values that differ between deployments.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "shopfront.json"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Upload backends.
const (
	UploadDisk = "disk"
	UploadS3   = "s3"
)

// Config is the complete shopfront.json configuration.
type Config struct {
	// Name is the deployment name, used as a metrics label.
	Name string `json:"name,omitempty"`

	// Addr is the listen address.
	Addr string `json:"addr,omitempty"`

	// Storage selects and configures the durable state backend.
	Storage StorageConfig `json:"storage,omitempty"`

	// Identity configures the sign-in collaborator.
	Identity IdentityConfig `json:"identity,omitempty"`

	// Admin configures the admin collaborator.
	Admin AdminConfig `json:"admin,omitempty"`

	// Uploads configures product image uploads.
	Uploads UploadConfig `json:"uploads,omitempty"`

	// ImageDir is the directory published images are served from.
	ImageDir string `json:"imageDir,omitempty"`

	// configPath stores the path the config was loaded from.
	configPath string
}

// StorageConfig selects the key-value backend for per-browser state.
type StorageConfig struct {
	// Backend is one of "memory", "redis", "postgres".
	Backend string `json:"backend,omitempty"`

	// Redis settings, used when Backend is "redis".
	Redis RedisConfig `json:"redis,omitempty"`

	// PostgresDSN is the connection string when Backend is "postgres".
	PostgresDSN string `json:"postgresDsn,omitempty"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`

	// Prefix namespaces keys and event channels.
	Prefix string `json:"prefix,omitempty"`
}

// IdentityConfig configures the sign-in collaborator.
type IdentityConfig struct {
	// URL is the collaborator's base URL.
	URL string `json:"url,omitempty"`

	// Mock replaces the collaborator with the accept-anything provider.
	// Development only.
	Mock bool `json:"mock,omitempty"`
}

// AdminConfig configures the admin collaborator.
type AdminConfig struct {
	// URL is the collaborator's base URL.
	URL string `json:"url,omitempty"`
}

// UploadConfig configures product image uploads.
type UploadConfig struct {
	// Backend is "disk" or "s3".
	Backend string `json:"backend,omitempty"`

	// Dir is the temp directory for the disk backend.
	Dir string `json:"dir,omitempty"`

	// Bucket and Prefix locate temp objects for the s3 backend.
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`

	// MaxFileSize limits individual uploads in bytes.
	MaxFileSize int64 `json:"maxFileSize,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the config file at path. A missing file is not an error;
// defaults apply. Environment variables override the file either way.
func Load(path string) (*Config, error) {
	c := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		c.configPath = path
	}

	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns where the config was loaded from, or "" for defaults.
func (c *Config) Path() string {
	return c.configPath
}

// applyEnv applies the SHOPFRONT_* overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("SHOPFRONT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SHOPFRONT_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("SHOPFRONT_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv("SHOPFRONT_REDIS_PASSWORD"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := os.Getenv("SHOPFRONT_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Storage.Redis.DB = db
		}
	}
	if v := os.Getenv("SHOPFRONT_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("SHOPFRONT_IDENTITY_URL"); v != "" {
		c.Identity.URL = v
	}
	if v := os.Getenv("SHOPFRONT_ADMIN_URL"); v != "" {
		c.Admin.URL = v
	}
	if v := os.Getenv("SHOPFRONT_UPLOAD_BUCKET"); v != "" {
		c.Uploads.Bucket = v
		c.Uploads.Backend = UploadS3
	}
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "shopfront"
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageMemory
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "localhost:6379"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "shopfront"
	}

	// No identity URL means development: the mock provider.
	if c.Identity.URL == "" {
		c.Identity.Mock = true
	}
	if c.Admin.URL == "" {
		c.Admin.URL = "http://localhost:9000"
	}

	if c.Uploads.Backend == "" {
		c.Uploads.Backend = UploadDisk
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.Prefix == "" {
		c.Uploads.Prefix = "uploads/temp/"
	}
	if c.Uploads.MaxFileSize == 0 {
		c.Uploads.MaxFileSize = 5 * 1024 * 1024
	}

	if c.ImageDir == "" {
		c.ImageDir = "images"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == StoragePostgres && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: storage backend %q needs postgresDsn", StoragePostgres)
	}

	switch c.Uploads.Backend {
	case UploadDisk, UploadS3:
	default:
		return fmt.Errorf("config: unknown upload backend %q", c.Uploads.Backend)
	}
	if c.Uploads.Backend == UploadS3 && c.Uploads.Bucket == "" {
		return fmt.Errorf("config: upload backend %q needs a bucket", UploadS3)
	}
	return nil
}
