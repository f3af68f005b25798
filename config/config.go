// Package config loads the daemon settings from YAML, a .env file and the
// process environment, in that order of precedence from lowest to highest.
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

	auth "github.com/goliatone/go-credauth"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env" json:"env"`
		LogLevel string `yaml:"log_level" json:"log_level"`
	} `yaml:"app" json:"app"`

	Server struct {
		Addr            string        `yaml:"addr" json:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
		MetricsPath     string        `yaml:"metrics_path" json:"metrics_path"`
	} `yaml:"server" json:"server"`

	Storage struct {
		// sqlite | postgres
		Driver       string        `yaml:"driver" json:"driver"`
		DSN          string        `yaml:"dsn" json:"-"`
		Debug        bool          `yaml:"debug" json:"debug"`
		MaxOpenConns int           `yaml:"max_open_conns" json:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns" json:"max_idle_conns"`
		ConnLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	} `yaml:"storage" json:"storage"`

	JWT struct {
		SigningKey string        `yaml:"signing_key" json:"-"`
		Issuer     string        `yaml:"issuer" json:"issuer"`
		Audience   []string      `yaml:"audience" json:"audience"`
		AccessTTL  time.Duration `yaml:"access_ttl" json:"access_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl" json:"refresh_ttl"`
	} `yaml:"jwt" json:"jwt"`

	Security struct {
		MaxLoginAttempts  int           `yaml:"max_login_attempts" json:"max_login_attempts"`
		LockoutDuration   time.Duration `yaml:"lockout_duration" json:"lockout_duration"`
		PasswordMinLength int           `yaml:"password_min_length" json:"password_min_length"`
		PasswordHashCost  int           `yaml:"password_hash_cost" json:"password_hash_cost"`
		HashidAccountIDs  bool          `yaml:"hashid_account_ids" json:"hashid_account_ids"`
	} `yaml:"security" json:"security"`

	Cleanup struct {
		Interval  time.Duration `yaml:"interval" json:"interval"`
		Timeout   time.Duration `yaml:"timeout" json:"timeout"`
		BatchSize int           `yaml:"batch_size" json:"batch_size"`
	} `yaml:"cleanup" json:"cleanup"`
}

// Default returns a config carrying every default value.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path, which may be empty, then the optional env files and the
// environment. Missing env files are ignored, a missing YAML path is not.
func Load(path string, envFiles ...string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = "file:credauth.db?cache=shared&_pragma=busy_timeout(5000)"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "credauth"
	}
	if c.JWT.AccessTTL <= 0 {
		c.JWT.AccessTTL = auth.DefaultAccessTokenTTL
	}
	if c.JWT.RefreshTTL <= 0 {
		c.JWT.RefreshTTL = auth.DefaultRefreshTokenTTL
	}
	if c.Security.MaxLoginAttempts <= 0 {
		c.Security.MaxLoginAttempts = auth.DefaultMaxLoginAttempts
	}
	if c.Security.LockoutDuration <= 0 {
		c.Security.LockoutDuration = auth.DefaultLockoutDuration
	}
	if c.Security.PasswordMinLength <= 0 {
		c.Security.PasswordMinLength = auth.DefaultPasswordMinLength
	}
	if c.Security.PasswordHashCost <= 0 {
		c.Security.PasswordHashCost = auth.DefaultPasswordHashCost
	}
	if c.Cleanup.Interval <= 0 {
		c.Cleanup.Interval = time.Hour
	}
	if c.Cleanup.Timeout <= 0 {
		c.Cleanup.Timeout = 5 * time.Minute
	}
	if c.Cleanup.BatchSize <= 0 {
		c.Cleanup.BatchSize = 100
	}
}

func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvBool("STORAGE_DEBUG"); ok {
		c.Storage.Debug = v
	}
	if v, ok := getEnvInt("STORAGE_MAX_OPEN_CONNS"); ok {
		c.Storage.MaxOpenConns = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_SIGNING_KEY"); ok {
		c.JWT.SigningKey = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvCSV("JWT_AUDIENCE"); ok {
		c.JWT.Audience = v
	}
	if v, ok := getEnvDur("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvDur("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}

	// SECURITY
	if v, ok := getEnvInt("SECURITY_MAX_LOGIN_ATTEMPTS"); ok {
		c.Security.MaxLoginAttempts = v
	}
	if v, ok := getEnvDur("SECURITY_LOCKOUT_DURATION"); ok {
		c.Security.LockoutDuration = v
	}
	if v, ok := getEnvInt("SECURITY_PASSWORD_MIN_LENGTH"); ok {
		c.Security.PasswordMinLength = v
	}
	if v, ok := getEnvInt("SECURITY_PASSWORD_HASH_COST"); ok {
		c.Security.PasswordHashCost = v
	}
	if v, ok := getEnvBool("SECURITY_HASHID_ACCOUNT_IDS"); ok {
		c.Security.HashidAccountIDs = v
	}

	// CLEANUP
	if v, ok := getEnvDur("CLEANUP_INTERVAL"); ok {
		c.Cleanup.Interval = v
	}
	if v, ok := getEnvInt("CLEANUP_BATCH_SIZE"); ok {
		c.Cleanup.BatchSize = v
	}
}

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return errors.New("storage.dsn is required")
	}
	if c.App.Env == "prod" && len(c.JWT.SigningKey) < 32 {
		return errors.New("jwt.signing_key must be at least 32 bytes in prod")
	}
	return nil
}

// AuthOptions maps the settings onto the auth package options.
func (c *Config) AuthOptions() auth.Options {
	return auth.Options{
		SigningKey:        c.JWT.SigningKey,
		Issuer:            c.JWT.Issuer,
		Audience:          c.JWT.Audience,
		AccessTokenTTL:    c.JWT.AccessTTL,
		RefreshTokenTTL:   c.JWT.RefreshTTL,
		MaxLoginAttempts:  c.Security.MaxLoginAttempts,
		LockoutDuration:   c.Security.LockoutDuration,
		PasswordMinLength: c.Security.PasswordMinLength,
		PasswordHashCost:  c.Security.PasswordHashCost,
	}
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
