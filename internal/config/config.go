package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keys, shared by the config file, CHATSYNC_* environment variables
// and bound command-line flags.
const (
	KeyAPIURL             = "api_url"
	KeyRequestTimeout     = "request_timeout"
	KeyChatTimeout        = "chat_timeout"
	KeyStorePath          = "store_path"
	KeyCacheDir           = "cache_dir"
	KeyHistoryTurns       = "history_turns"
	KeyListLimit          = "list_limit"
	KeySupabaseURL        = "supabase_url"
	KeySupabaseAnonKey    = "supabase_anon_key"
	KeyAccessToken        = "access_token"
	KeyMigrateConcurrency = "migrate_concurrency"
	KeyLogLevel           = "log_level"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CHATSYNC"

// Config holds all application configuration
type Config struct {
	// Chat backend
	APIURL         string
	RequestTimeout time.Duration
	ChatTimeout    time.Duration
	HistoryTurns   int
	ListLimit      int

	// Local persistence
	StorePath string
	CacheDir  string

	// Auth platform
	SupabaseURL     string
	SupabaseAnonKey string
	AccessToken     string

	MigrateConcurrency int
	LogLevel           string

	// ConfigFile is the file that was read, empty when none was found
	ConfigFile string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		APIURL:             "http://localhost:8000",
		RequestTimeout:     30 * time.Second,
		ChatTimeout:        60 * time.Second,
		HistoryTurns:       10,
		ListLimit:          50,
		StorePath:          filepath.Join(DefaultDir(), "chatsync.db"),
		CacheDir:           filepath.Join(DefaultDir(), "cache"),
		MigrateConcurrency: 4,
		LogLevel:           "info",
	}
}

// DefaultDir returns ~/.chatsync, or .chatsync when no home is known
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".chatsync"
	}
	return filepath.Join(home, ".chatsync")
}

// SetDefaults registers the defaults of NewConfig on v
func SetDefaults(v *viper.Viper) {
	d := NewConfig()
	v.SetDefault(KeyAPIURL, d.APIURL)
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyChatTimeout, d.ChatTimeout)
	v.SetDefault(KeyHistoryTurns, d.HistoryTurns)
	v.SetDefault(KeyListLimit, d.ListLimit)
	v.SetDefault(KeyStorePath, d.StorePath)
	v.SetDefault(KeyCacheDir, d.CacheDir)
	v.SetDefault(KeySupabaseURL, "")
	v.SetDefault(KeySupabaseAnonKey, "")
	v.SetDefault(KeyAccessToken, "")
	v.SetDefault(KeyMigrateConcurrency, d.MigrateConcurrency)
	v.SetDefault(KeyLogLevel, d.LogLevel)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration into v and returns the resolved Config.
// Precedence, lowest first: defaults, config file, environment, flags bound
// on v by the caller. configFile overrides the ~/.chatsync/config.yaml lookup.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := LoadDotEnv(".env", filepath.Join(DefaultDir(), ".env")); err != nil {
		return nil, err
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// the auth platform's own variable names are honored too
	_ = v.BindEnv(KeySupabaseURL, EnvPrefix+"_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv(KeySupabaseAnonKey, EnvPrefix+"_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		APIURL:             strings.TrimRight(v.GetString(KeyAPIURL), "/"),
		RequestTimeout:     v.GetDuration(KeyRequestTimeout),
		ChatTimeout:        v.GetDuration(KeyChatTimeout),
		HistoryTurns:       v.GetInt(KeyHistoryTurns),
		ListLimit:          v.GetInt(KeyListLimit),
		StorePath:          expandHome(v.GetString(KeyStorePath)),
		CacheDir:           expandHome(v.GetString(KeyCacheDir)),
		SupabaseURL:        strings.TrimRight(v.GetString(KeySupabaseURL), "/"),
		SupabaseAnonKey:    v.GetString(KeySupabaseAnonKey),
		AccessToken:        v.GetString(KeyAccessToken),
		MigrateConcurrency: v.GetInt(KeyMigrateConcurrency),
		LogLevel:           v.GetString(KeyLogLevel),
		ConfigFile:         v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api URL cannot be empty")
	}
	if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api URL %q is not an absolute URL", c.APIURL)
	}
	if c.SupabaseURL != "" {
		if u, err := url.Parse(c.SupabaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("supabase URL %q is not an absolute URL", c.SupabaseURL)
		}
		if c.SupabaseAnonKey == "" {
			return fmt.Errorf("supabase anon key is required when supabase URL is set")
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.ChatTimeout <= 0 {
		return fmt.Errorf("chat timeout must be positive")
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("history turns cannot be negative")
	}
	if c.ListLimit < 1 {
		return fmt.Errorf("list limit must be at least 1")
	}
	if c.MigrateConcurrency < 1 {
		return fmt.Errorf("migrate concurrency must be at least 1")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	return nil
}

// AuthConfigured reports whether an auth platform is configured
func (c *Config) AuthConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
