// Package config loads service settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreJSON     = "json"
	StorePostgres = "postgres"
	BlobLocal     = "local"
	BlobMinio     = "minio"
)

var DefaultAllowedExtensions = []string{"pdf", "doc", "docx", "ppt", "pptx", "txt", "zip", "jpg", "jpeg", "png"}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

type SMTP struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type Config struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"base_url"`
	Env     string `yaml:"env"`

	AdminPassword string        `yaml:"admin_password"`
	AdminEmail    string        `yaml:"admin_email"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SessionDir    string        `yaml:"session_dir"`

	// TrustedProxies may set X-Forwarded-For; addresses or CIDR ranges.
	TrustedProxies []string `yaml:"trusted_proxies"`

	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`

	DataDir     string `yaml:"data_dir"`
	UploadDir   string `yaml:"upload_dir"`
	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"database_url"`
	Blob        string `yaml:"blob"`
	S3          S3     `yaml:"s3"`
	SMTP        SMTP   `yaml:"smtp"`

	parseErrs []ValidationError
}

// Defaults returns the settings used when neither file nor environment
// provides a value.
func Defaults() Config {
	return Config{
		Addr:              ":8080",
		BaseURL:           "http://localhost:8080",
		SessionTTL:        12 * time.Hour,
		MaxUploadBytes:    16 << 20,
		AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
		DataDir:           "data",
		UploadDir:         "uploads",
		Store:             StoreJSON,
		Blob:              BlobLocal,
		SMTP:              SMTP{Port: "587"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides. A missing file is an error only when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if cfg.SessionDir == "" {
		cfg.SessionDir = filepath.Join(cfg.DataDir, "sessions")
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Addr, "LIBRARY_ADDR")
	if os.Getenv("LIBRARY_ADDR") == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Addr = ":" + port
		}
	}
	setString(&c.BaseURL, "LIBRARY_BASE_URL")
	setString(&c.Env, "LIBRARY_ENV")

	setString(&c.AdminPassword, "LIBRARY_ADMIN_PASSWORD")
	setString(&c.AdminEmail, "LIBRARY_ADMIN_EMAIL")
	setString(&c.SessionSecret, "LIBRARY_SESSION_SECRET")
	setString(&c.SessionDir, "LIBRARY_SESSION_DIR")
	if v := os.Getenv("LIBRARY_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			c.parseErrs = append(c.parseErrs, ValidationError{"LIBRARY_SESSION_TTL", "must be a duration such as 12h"})
		} else {
			c.SessionTTL = d
		}
	}

	if v := os.Getenv("LIBRARY_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.parseErrs = append(c.parseErrs, ValidationError{"LIBRARY_MAX_UPLOAD_BYTES", "must be a valid integer"})
		} else {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("LIBRARY_TRUSTED_PROXIES"); v != "" {
		c.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("LIBRARY_ALLOWED_EXTENSIONS"); v != "" {
		c.AllowedExtensions = strings.Split(v, ",")
	}

	setString(&c.DataDir, "LIBRARY_DATA_DIR")
	setString(&c.UploadDir, "LIBRARY_UPLOAD_DIR")
	setString(&c.Store, "LIBRARY_STORE")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.Blob, "LIBRARY_BLOB")
	setString(&c.S3.Endpoint, "LIBRARY_S3_ENDPOINT")
	setString(&c.S3.AccessKey, "LIBRARY_S3_ACCESS_KEY")
	setString(&c.S3.SecretKey, "LIBRARY_S3_SECRET_KEY")
	setString(&c.S3.Bucket, "LIBRARY_BUCKET")

	if v := os.Getenv("LIBRARY_SMTP_ENABLED"); v != "" {
		c.SMTP.Enabled = v == "true"
	}
	setString(&c.SMTP.Host, "LIBRARY_SMTP_HOST")
	setString(&c.SMTP.Port, "LIBRARY_SMTP_PORT")
	setString(&c.SMTP.User, "LIBRARY_SMTP_USER")
	setString(&c.SMTP.Password, "LIBRARY_SMTP_PASSWORD")
	setString(&c.SMTP.From, "LIBRARY_SMTP_FROM")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	v := NewValidator()
	for _, e := range c.parseErrs {
		v.AddError(e.Field, e.Message)
	}

	v.ValidateRequired("LIBRARY_ADMIN_PASSWORD", c.AdminPassword)
	v.ValidateRequired("LIBRARY_SESSION_SECRET", c.SessionSecret)
	v.ValidateMinLength("LIBRARY_SESSION_SECRET", c.SessionSecret, 16)
	v.ValidateAddr("LIBRARY_ADDR", c.Addr)
	v.ValidateURL("LIBRARY_BASE_URL", c.BaseURL)
	v.ValidatePositive("LIBRARY_MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	if c.SessionTTL <= 0 {
		v.AddError("LIBRARY_SESSION_TTL", "must be positive")
	}

	exts := 0
	for _, e := range c.AllowedExtensions {
		if strings.TrimSpace(e) != "" {
			exts++
		}
	}
	if exts == 0 {
		v.AddError("LIBRARY_ALLOWED_EXTENSIONS", "at least one extension is required")
	}

	for _, p := range c.TrustedProxies {
		v.ValidateAddrOrPrefix("LIBRARY_TRUSTED_PROXIES", strings.TrimSpace(p))
	}

	v.ValidateEnum("LIBRARY_STORE", c.Store, []string{StoreJSON, StorePostgres})
	switch c.Store {
	case StoreJSON:
		v.ValidateRequired("LIBRARY_DATA_DIR", c.DataDir)
	case StorePostgres:
		v.ValidateRequired("DATABASE_URL", c.DatabaseURL)
		if c.DatabaseURL != "" &&
			!strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			v.AddError("DATABASE_URL", "must be a valid PostgreSQL connection string")
		}
	}

	v.ValidateEnum("LIBRARY_BLOB", c.Blob, []string{BlobLocal, BlobMinio})
	switch c.Blob {
	case BlobLocal:
		v.ValidateRequired("LIBRARY_UPLOAD_DIR", c.UploadDir)
	case BlobMinio:
		v.ValidateRequired("LIBRARY_S3_ENDPOINT", c.S3.Endpoint)
		v.ValidateRequired("LIBRARY_S3_ACCESS_KEY", c.S3.AccessKey)
		v.ValidateRequired("LIBRARY_S3_SECRET_KEY", c.S3.SecretKey)
		v.ValidateRequired("LIBRARY_BUCKET", c.S3.Bucket)
		if strings.Contains(c.S3.Endpoint, "://") {
			v.ValidateURL("LIBRARY_S3_ENDPOINT", c.S3.Endpoint)
		}
	}

	if c.SMTP.Enabled {
		v.ValidateRequired("LIBRARY_SMTP_HOST", c.SMTP.Host)
		v.ValidateRequired("LIBRARY_ADMIN_EMAIL", c.AdminEmail)
		if _, err := strconv.Atoi(c.SMTP.Port); err != nil {
			v.AddError("LIBRARY_SMTP_PORT", "must be a valid integer")
		}
		v.ValidateEmailAddress("LIBRARY_SMTP_FROM", c.SMTP.From)
	}
	v.ValidateEmailAddress("LIBRARY_ADMIN_EMAIL", c.AdminEmail)

	v.ValidateEnum("LIBRARY_ENV", c.Env, []string{"", "development", "production", "staging"})

	return v.Err()
}

// Warnings lists optional settings that are unset but recommended.
func (c Config) Warnings() []string {
	var out []string
	if !c.SMTP.Enabled {
		out = append(out, "SMTP disabled - registration notices are only logged")
	}
	if c.Store == StoreJSON {
		out = append(out, "JSON store in use - consider postgres for shared deployments")
	}
	if os.Getenv("LIBRARY_LOG_FORMAT") == "" && c.Env == "" {
		out = append(out, "LIBRARY_LOG_FORMAT not set - using text format (consider 'json' for production)")
	}
	return out
}
