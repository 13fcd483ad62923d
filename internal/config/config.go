package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddr  = ":5000"
	DefaultAPIURL      = "http://127.0.0.1:5000"
	DefaultDBFileName  = "imgshelf.db"
	DefaultUploadDir   = "uploads"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultCORSOrigin  = "http://localhost:5174"
	DefaultCacheTTLSec = 30
	DefaultRateBurst   = 10

	DefaultMaxOpenConns  = 10
	DefaultBusyTimeoutMS = 5000

	DefaultMaxUploadBytes     int64 = 5 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024

	StorageBackendLocal  = "local"
	StorageBackendBucket = "bucket"

	configFileName           = ".imgshelf.toml"
	configDirEnvKey          = "IMGSHELF_CONFIG_DIR"
	trustProjectConfigEnvKey = "IMGSHELF_TRUST_PROJECT_CONFIG"
)

// DatabaseConfig tunes the SQLite connection pool.
type DatabaseConfig struct {
	MaxOpenConns  int `toml:"max_open_conns"`
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
}

// StorageConfig selects where uploaded bytes live.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	BucketURL string `toml:"bucket_url"`
}

// UploadConfig bounds upload requests.
type UploadConfig struct {
	MaxUploadBytes     int64 `toml:"max_upload_bytes"`
	MultipartMaxMemory int64 `toml:"multipart_max_memory"`
}

// CORSConfig controls cross-origin access for browser clients.
type CORSConfig struct {
	AllowedOrigins   []string `toml:"allowed_origins"`
	AllowCredentials bool     `toml:"allow_credentials"`
}

// CacheConfig enables the Redis listing cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

// RateLimitConfig throttles uploads. A zero rate disables throttling.
type RateLimitConfig struct {
	UploadsPerSecond float64 `toml:"uploads_per_second"`
	Burst            int     `toml:"burst"`
}

// Config defines runtime configuration for imgshelf.
type Config struct {
	ListenAddr               string          `toml:"listen_addr"`
	APIURL                   string          `toml:"api_url"`
	DBPath                   string          `toml:"db_path"`
	LogLevel                 string          `toml:"log_level"`
	LogFormat                string          `toml:"log_format"`
	TrustProxyHeaders        bool            `toml:"trust_proxy_headers"`
	Database                 DatabaseConfig  `toml:"database"`
	Storage                  StorageConfig   `toml:"storage"`
	Uploads                  UploadConfig    `toml:"uploads"`
	CORS                     CORSConfig      `toml:"cors"`
	Cache                    CacheConfig     `toml:"cache"`
	RateLimit                RateLimitConfig `toml:"rate_limit"`
	TrustedProjectConfigPath string          `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		APIURL:     DefaultAPIURL,
		DBPath:     "",
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		Database: DatabaseConfig{
			MaxOpenConns:  DefaultMaxOpenConns,
			BusyTimeoutMS: DefaultBusyTimeoutMS,
		},
		Storage: StorageConfig{
			Backend: StorageBackendLocal,
		},
		Uploads: UploadConfig{
			MaxUploadBytes:     DefaultMaxUploadBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{DefaultCORSOrigin},
			AllowCredentials: true,
		},
		Cache: CacheConfig{
			TTLSeconds: DefaultCacheTTLSec,
		},
		RateLimit: RateLimitConfig{
			Burst: DefaultRateBurst,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				loaded, err := loadFileIfExists(projectPath, &cfg)
				if err != nil {
					return nil, err
				}
				if loaded {
					cfg.TrustedProjectConfigPath = projectPath
				}
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cwd, err := os.Getwd(); err == nil {
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
		if cfg.Storage.Dir == "" {
			cfg.Storage.Dir = filepath.Join(cwd, DefaultUploadDir)
		}
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if addr := strings.TrimSpace(os.Getenv("IMGSHELF_LISTEN")); addr != "" {
		cfg.ListenAddr = addr
	}
	if apiURL := strings.TrimSpace(os.Getenv("IMGSHELF_API_URL")); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := strings.TrimSpace(os.Getenv("IMGSHELF_DB")); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if dir := strings.TrimSpace(os.Getenv("IMGSHELF_UPLOAD_DIR")); dir != "" {
		cfg.Storage.Dir = dir
	}
	if bucketURL := strings.TrimSpace(os.Getenv("IMGSHELF_BUCKET_URL")); bucketURL != "" {
		cfg.Storage.Backend = StorageBackendBucket
		cfg.Storage.BucketURL = bucketURL
	}
	if redisAddr := strings.TrimSpace(os.Getenv("IMGSHELF_REDIS_ADDR")); redisAddr != "" {
		cfg.Cache.RedisAddr = redisAddr
	}
	if origins := strings.TrimSpace(os.Getenv("IMGSHELF_CORS_ORIGINS")); origins != "" {
		cfg.CORS.AllowedOrigins = splitCSV(origins)
	}
	if raw := strings.TrimSpace(os.Getenv("IMGSHELF_TRUST_PROXY_HEADERS")); raw != "" {
		if trust, err := strconv.ParseBool(raw); err == nil {
			cfg.TrustProxyHeaders = trust
		}
	}
}

// Validate reports settings that cannot be normalized into something usable.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackendLocal:
	case StorageBackendBucket:
		if strings.TrimSpace(c.Storage.BucketURL) == "" {
			return fmt.Errorf("storage.bucket_url is required when storage.backend is %q", StorageBackendBucket)
		}
	default:
		return fmt.Errorf("invalid storage.backend %q (expected %q or %q)", c.Storage.Backend, StorageBackendLocal, StorageBackendBucket)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (expected text or json)", c.LogFormat)
	}
	return nil
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.Database.BusyTimeoutMS <= 0 {
		c.Database.BusyTimeoutMS = DefaultBusyTimeoutMS
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendLocal
	}
	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = DefaultCacheTTLSec
	}
	if c.RateLimit.UploadsPerSecond < 0 {
		c.RateLimit.UploadsPerSecond = 0
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = DefaultRateBurst
	}
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
