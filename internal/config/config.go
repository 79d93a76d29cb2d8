package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AppConfig struct {
	ServiceName string     `mapstructure:"service_name"`
	Env         string     `mapstructure:"env"`
	LogLevel    string     `mapstructure:"log_level"`
	MetricsPath string     `mapstructure:"metrics_path"`
	HTTP        HTTPConfig `mapstructure:"http"`
}

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// IdentityScheme controls how the username column is derived at registration.
// Resolved once at startup, never inferred per request.
type IdentityScheme string

const (
	// IdentityEmail mirrors the registration email into the username column.
	IdentityEmail IdentityScheme = "email"
	// IdentityLocalPart uses the part of the email before the '@'.
	IdentityLocalPart IdentityScheme = "username"
)

type Config struct {
	App             AppConfig
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	IdentityScheme  IdentityScheme
	Argon2          Argon2Params
	DB              DBConfig
}

func Load() (*Config, error) {
	// .env is optional; OS environment always wins.
	_ = godotenv.Load()

	appCfg, err := loadApp(os.Getenv("NOTE_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:             *appCfg,
		JWTSecret:       envString("NOTE_JWT_SECRET", ""),
		JWTIssuer:       envString("NOTE_JWT_ISSUER", "turbonote"),
		AccessTokenTTL:  envDuration("NOTE_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: envDuration("NOTE_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		IdentityScheme:  IdentityScheme(envString("NOTE_IDENTITY_SCHEME", string(IdentityEmail))),
		Argon2: Argon2Params{
			Memory:      uint32(envInt("NOTE_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(envInt("NOTE_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(envInt("NOTE_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(envInt("NOTE_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(envInt("NOTE_ARGON2_KEY_LENGTH", 32)),
		},
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "turbonote"),
			User:     envString("POSTGRES_USER", "turbonote"),
			Password: envString("POSTGRES_PASSWORD", "turbonote"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("NOTE_JWT_SECRET must be set")
	}
	switch cfg.IdentityScheme {
	case IdentityEmail, IdentityLocalPart:
	default:
		return nil, fmt.Errorf("NOTE_IDENTITY_SCHEME must be %q or %q, got %q", IdentityEmail, IdentityLocalPart, cfg.IdentityScheme)
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func loadApp(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("NOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "turbonote")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
