package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the service
// working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`
	RedisAddr   string `yaml:"redisAddr"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AuthTokenSecret   string `yaml:"authTokenSecret"`
	AuthTokenIssuer   string `yaml:"authTokenIssuer"`
	AuthTokenAudience string `yaml:"authTokenAudience"`

	DeckTTLSeconds        int  `yaml:"deckTTLSeconds"`
	DeckMinSize           int  `yaml:"deckMinSize"`
	DeckMaxSize           int  `yaml:"deckMaxSize"`
	MatchRequireAvailable bool `yaml:"matchRequireAvailable"`

	ResizeStream string `yaml:"resizeStream"`
	ThumbnailTag string `yaml:"thumbnailTag"`

	SwipesPerMinute  int   `yaml:"swipesPerMinute"`
	UploadsPerMinute int   `yaml:"uploadsPerMinute"`
	MaxUploadBytes   int64 `yaml:"maxUploadBytes"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("PAWMATCH_TOKEN_SECRET"); v != "" {
		cfg.AuthTokenSecret = v
	}
	if v := os.Getenv("MATCHMAKER_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DeckTTLSeconds <= 0 {
		cfg.DeckTTLSeconds = 3600
	}
	if cfg.DeckMinSize <= 0 {
		cfg.DeckMinSize = 10
	}
	if cfg.DeckMaxSize <= 0 {
		cfg.DeckMaxSize = 100
	}
	if cfg.ResizeStream == "" {
		cfg.ResizeStream = "pawmatch:resize"
	}
	if cfg.ThumbnailTag == "" {
		cfg.ThumbnailTag = "w256"
	}
	if cfg.SwipesPerMinute <= 0 {
		cfg.SwipesPerMinute = 120
	}
	if cfg.UploadsPerMinute <= 0 {
		cfg.UploadsPerMinute = 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.AuthTokenSecret == "" {
		return errors.New("config: authTokenSecret is required (set in config.yaml or PAWMATCH_TOKEN_SECRET)")
	}
	if cfg.DeckMinSize > cfg.DeckMaxSize {
		return errors.New("config: deckMinSize must not exceed deckMaxSize")
	}
	return nil
}
