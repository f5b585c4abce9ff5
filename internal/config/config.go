package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Database      DatabaseConfig     `json:"database"`
	JWTSecret     string             `json:"jwt_secret"`
	Port          int                `json:"port"`
	JWTTTLHours   int                `json:"jwt_ttl_hours"`
	LogConfig     logger.LogConfig   `json:"log_config"`
	ContentStore  ContentStoreConfig `json:"content_store"`
	CORSAllowlist []string           `json:"cors_allowlist"`
	AuthRateLimit int                `json:"auth_rate_limit_ms"`
	Backup        BackupConfig       `json:"backup"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type ContentStoreConfig struct {
	Type string `json:"type"`
	// PresignTTLSeconds bounds every issued upload/download URL.
	PresignTTLSeconds int              `json:"presign_ttl_seconds"`
	Local             LocalStoreConfig `json:"local"`
	S3                S3Config         `json:"s3"`
}

type LocalStoreConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
	Secret  string `json:"secret"`
}

type S3Config struct {
	Endpoint     string `json:"endpoint"`
	SecretID     string `json:"secret_id"`
	SecretKey    string `json:"secret_key"`
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	Prefix       string `json:"prefix"`
	PublicURL    string `json:"public_url"`
	UseSSL       bool   `json:"use_ssl"`
	UsePathStyle bool   `json:"use_path_style"`
}

type BackupConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec"`
	KeepDays int    `json:"keep_days"`
}

// Args returns the backend-specific section for the configured type.
func (c ContentStoreConfig) Args() interface{} {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "local":
		return c.Local
	case "s3":
		return c.S3
	}
	return nil
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AuthRateLimit == 0 {
		cfg.AuthRateLimit = 1000
	}
	if cfg.Backup.Spec == "" {
		cfg.Backup.Spec = "0 5 * * *"
	}
	if cfg.Backup.KeepDays <= 0 {
		cfg.Backup.KeepDays = 30
	}
	store := &cfg.ContentStore
	if store.Type == "" {
		store.Type = "local"
	}
	if store.PresignTTLSeconds <= 0 {
		store.PresignTTLSeconds = 3600
	}
	switch store.Type {
	case "local":
		if store.Local.Dir == "" {
			return fmt.Errorf("content_store.local.dir is required for local store")
		}
		if store.Local.BaseURL == "" {
			store.Local.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
		}
		if store.Local.Secret == "" {
			store.Local.Secret = cfg.JWTSecret
		}
	case "s3":
		if store.S3.Endpoint == "" || store.S3.Bucket == "" || store.S3.SecretID == "" || store.S3.SecretKey == "" {
			return fmt.Errorf("content_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
		if store.S3.Region == "" {
			store.S3.Region = "us-east-1"
		}
	default:
		return fmt.Errorf("content_store.type must be local or s3")
	}
	return nil
}
