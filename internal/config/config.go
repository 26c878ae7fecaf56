package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"doit/pkg/kvstore"
)

// ConfigPath is the default config location, relative to the working
// directory.
const ConfigPath = "config.yaml"

const (
	defaultBaseURL        = "http://localhost:8000"
	defaultLogLevel       = "info"
	defaultRequestTimeout = "10s"
	defaultKVPath         = "data/settings.json"
	defaultChatReplyDelay = "1s"
	defaultOTPCode        = "1234"
	defaultSignInLimit    = 5
	defaultSignInWindow   = "1m"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	BaseURL        string `yaml:"baseURL"`
	LogLevel       string `yaml:"logLevel"`
	LogFile        string `yaml:"logFile"`
	RequestTimeout string `yaml:"requestTimeout"`
	KVBackend      string `yaml:"kvBackend"`
	KVPath         string `yaml:"kvPath"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	RedisPrefix    string `yaml:"redisPrefix"`
	DatabaseURL    string `yaml:"databaseURL"`
	ChatReplyDelay string `yaml:"chatReplyDelay"`
	OTPCode        string `yaml:"otpCode"`
	SignInLimit    int    `yaml:"signInLimit"`
	SignInWindow   string `yaml:"signInWindow"`
}

// Default returns the configuration used when no file is present.
func Default() FileConfig {
	return FileConfig{
		BaseURL:        defaultBaseURL,
		LogLevel:       defaultLogLevel,
		RequestTimeout: defaultRequestTimeout,
		KVBackend:      kvstore.BackendFile,
		KVPath:         defaultKVPath,
		ChatReplyDelay: defaultChatReplyDelay,
		OTPCode:        defaultOTPCode,
		SignInLimit:    defaultSignInLimit,
		SignInWindow:   defaultSignInWindow,
	}
}

// Load reads config from path (defaults to config.yaml). A missing default
// file is not an error; a missing explicit path is. Values from .env and the
// environment override the file.
func Load(path string) (FileConfig, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Existing environment variables win over .env entries.
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"DOIT_BASE_URL", &cfg.BaseURL},
		{"DOIT_LOG_LEVEL", &cfg.LogLevel},
		{"DOIT_LOG_FILE", &cfg.LogFile},
		{"DOIT_REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"DOIT_KV_BACKEND", &cfg.KVBackend},
		{"DOIT_KV_PATH", &cfg.KVPath},
		{"REDIS_ADDR", &cfg.RedisAddr},
		{"REDIS_PASSWORD", &cfg.RedisPassword},
		{"DOIT_REDIS_PREFIX", &cfg.RedisPrefix},
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"DOIT_CHAT_REPLY_DELAY", &cfg.ChatReplyDelay},
		{"DOIT_OTP_CODE", &cfg.OTPCode},
		{"DOIT_SIGNIN_WINDOW", &cfg.SignInWindow},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("DOIT_SIGNIN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignInLimit = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("config: baseURL is required (set in config.yaml or DOIT_BASE_URL)")
	}
	if _, err := ParseDuration("requestTimeout", cfg.RequestTimeout); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if d, err := ParseDuration("chatReplyDelay", cfg.ChatReplyDelay); err != nil {
		return fmt.Errorf("config: %w", err)
	} else if d <= 0 {
		return errors.New("config: chatReplyDelay must be > 0")
	}
	if cfg.SignInLimit < 0 {
		return errors.New("config: signInLimit must be >= 0")
	}
	if _, err := ParseDuration("signInWindow", cfg.SignInWindow); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(cfg.OTPCode) == "" {
		return errors.New("config: otpCode must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.KVBackend)) {
	case kvstore.BackendMemory:
	case "", kvstore.BackendFile, kvstore.BackendSQLite:
		if strings.TrimSpace(cfg.KVPath) == "" {
			return fmt.Errorf("config: kvPath is required for kvBackend=%s", cfg.KVBackend)
		}
	case kvstore.BackendRedis:
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for kvBackend=redis (set in config.yaml or REDIS_ADDR)")
		}
	case kvstore.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for kvBackend=postgres (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown kvBackend %q", cfg.KVBackend)
	}
	return nil
}

// ParseDuration parses an optional duration setting. Empty means zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	return dur, nil
}

// KVConfig maps the settings store keys onto kvstore.Config.
func (c FileConfig) KVConfig() kvstore.Config {
	return kvstore.Config{
		Backend:       c.KVBackend,
		Path:          c.KVPath,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisPrefix:   c.RedisPrefix,
		DatabaseURL:   c.DatabaseURL,
	}
}
