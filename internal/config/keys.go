package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

var allowedKeys = []string{
	"listen_addr",
	"api_url",
	"db_path",
	"log_level",
	"log_format",
	"trust_proxy_headers",
	"database.max_open_conns",
	"database.busy_timeout_ms",
	"storage.backend",
	"storage.dir",
	"storage.bucket_url",
	"uploads.max_upload_bytes",
	"uploads.multipart_max_memory",
	"cors.allowed_origins",
	"cors.allow_credentials",
	"cache.redis_addr",
	"cache.redis_password",
	"cache.redis_db",
	"cache.ttl_seconds",
	"rate_limit.uploads_per_second",
	"rate_limit.burst",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "listen_addr":
		return c.ListenAddr, nil
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "trust_proxy_headers":
		return strconv.FormatBool(c.TrustProxyHeaders), nil
	case "database.max_open_conns":
		return strconv.Itoa(c.Database.MaxOpenConns), nil
	case "database.busy_timeout_ms":
		return strconv.Itoa(c.Database.BusyTimeoutMS), nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.dir":
		return c.Storage.Dir, nil
	case "storage.bucket_url":
		return c.Storage.BucketURL, nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "cors.allowed_origins":
		return strings.Join(c.CORS.AllowedOrigins, ","), nil
	case "cors.allow_credentials":
		return strconv.FormatBool(c.CORS.AllowCredentials), nil
	case "cache.redis_addr":
		return c.Cache.RedisAddr, nil
	case "cache.redis_password":
		if c.Cache.RedisPassword == "" {
			return "", nil
		}
		return "********", nil
	case "cache.redis_db":
		return strconv.Itoa(c.Cache.RedisDB), nil
	case "cache.ttl_seconds":
		return strconv.Itoa(c.Cache.TTLSeconds), nil
	case "rate_limit.uploads_per_second":
		return strconv.FormatFloat(c.RateLimit.UploadsPerSecond, 'f', -1, 64), nil
	case "rate_limit.burst":
		return strconv.Itoa(c.RateLimit.Burst), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "database.max_open_conns", "database.busy_timeout_ms", "cache.ttl_seconds", "rate_limit.burst":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "cache.redis_db":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return int64(parsed), nil
	case "rate_limit.uploads_per_second":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative number", key)
		}
		return parsed, nil
	case "cors.allow_credentials", "trust_proxy_headers":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "cors.allowed_origins":
		return splitCSV(value), nil
	case "storage.backend":
		backend := strings.ToLower(value)
		if backend != StorageBackendLocal && backend != StorageBackendBucket {
			return nil, fmt.Errorf("%s must be %q or %q", key, StorageBackendLocal, StorageBackendBucket)
		}
		return backend, nil
	case "log_format":
		format := strings.ToLower(value)
		if format != "text" && format != "json" {
			return nil, fmt.Errorf("%s must be text or json", key)
		}
		return format, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
