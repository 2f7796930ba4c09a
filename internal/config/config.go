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

// Config holds all memkeeper configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Images   ImagesConfig   `yaml:"images"`
	CORS     CORSConfig     `yaml:"cors"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file
	URL    string `yaml:"url"`    // postgres connection string
}

type AuthConfig struct {
	SecretKey    string        `yaml:"secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	BcryptCost   int           `yaml:"bcrypt_cost"`
	UserCacheTTL time.Duration `yaml:"user_cache_ttl"`
}

type ImagesConfig struct {
	Store           string           `yaml:"store"` // "local" or "cloudinary"
	PublicBaseURL   string           `yaml:"public_base_url"`
	MaxUploadBytes  int64            `yaml:"max_upload_bytes"`
	Local           LocalImages      `yaml:"local"`
	Cloudinary      CloudinaryConfig `yaml:"cloudinary"`
	JanitorInterval time.Duration    `yaml:"janitor_interval"`
	JanitorGrace    time.Duration    `yaml:"janitor_grace"`
}

type LocalImages struct {
	Dir string `yaml:"dir"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8000,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "", // resolved at runtime via store.DefaultDBPath()
		},
		Auth: AuthConfig{
			TokenTTL:     24 * time.Hour,
			BcryptCost:   10,
			UserCacheTTL: time.Minute,
		},
		Images: ImagesConfig{
			Store:           "local",
			MaxUploadBytes:  10 << 20,
			JanitorInterval: time.Hour,
			JanitorGrace:    10 * time.Minute,
			Cloudinary: CloudinaryConfig{
				Folder: "memkeeper",
			},
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultPath returns ~/.memkeeper/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".memkeeper", "config.yaml"), nil
}

// ResolvePath picks the config file: the explicit path, then
// MEMKEEPER_CONFIG, then the default path if it exists. Returns "" when no
// file applies.
func ResolvePath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("MEMKEEPER_CONFIG")); p != "" {
		return p
	}
	if p, err := DefaultPath(); err == nil {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// a .env file in the working directory, and the environment, in that order
// of increasing precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.Server.Bind, "MEMKEEPER_BIND")
	if v := os.Getenv("MEMKEEPER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEMKEEPER_PORT: %w", err)
		}
		c.Server.Port = port
	} else if v := os.Getenv("PORT"); v != "" {
		// Hosting platforms inject PORT; bind publicly when they do.
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
		c.Server.Bind = "0.0.0.0"
	}

	setString(&c.Database.Path, "MEMKEEPER_DB")
	setString(&c.Database.URL, "MEMKEEPER_DATABASE_URL", "DATABASE_URL")
	setString(&c.Database.Driver, "MEMKEEPER_DB_DRIVER")
	if c.Database.URL != "" && os.Getenv("MEMKEEPER_DB_DRIVER") == "" &&
		(strings.HasPrefix(c.Database.URL, "postgres://") || strings.HasPrefix(c.Database.URL, "postgresql://")) {
		c.Database.Driver = "postgres"
	}

	setString(&c.Auth.SecretKey, "MEMKEEPER_SECRET_KEY", "SECRET_KEY")
	if v := os.Getenv("MEMKEEPER_TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MEMKEEPER_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = ttl
	}

	setString(&c.Images.Store, "MEMKEEPER_IMAGE_STORE")
	setString(&c.Images.PublicBaseURL, "MEMKEEPER_PUBLIC_URL")
	setString(&c.Images.Local.Dir, "MEMKEEPER_UPLOAD_DIR")
	setString(&c.Images.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	setString(&c.Images.Cloudinary.APIKey, "CLOUDINARY_API_KEY")
	setString(&c.Images.Cloudinary.APISecret, "CLOUDINARY_API_SECRET")
	if c.Images.Cloudinary.APIKey != "" && c.Images.Cloudinary.APISecret != "" &&
		os.Getenv("MEMKEEPER_IMAGE_STORE") == "" && c.Images.Store == "local" {
		c.Images.Store = "cloudinary"
	}

	if v := os.Getenv("MEMKEEPER_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowedOrigins = origins
	}

	setString(&c.Log.Level, "MEMKEEPER_LOG_LEVEL")
	setString(&c.Log.Format, "MEMKEEPER_LOG_FORMAT")
	return nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	switch c.Images.Store {
	case "local":
	case "cloudinary":
		cl := c.Images.Cloudinary
		if cl.CloudName == "" || cl.APIKey == "" || cl.APISecret == "" {
			return fmt.Errorf("cloudinary image store requires cloud_name, api_key and api_secret")
		}
	default:
		return fmt.Errorf("unknown image store: %q", c.Images.Store)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.Images.MaxUploadBytes <= 0 {
		return fmt.Errorf("images.max_upload_bytes must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %q", c.Log.Format)
	}
	return nil
}
