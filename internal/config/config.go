// Package config loads service configuration from the environment, optionally
// layered over a YAML file named by CONFIG_FILE. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eddisonso.com/edd-blog/pkg/events"
)

// Users configures the user service.
type Users struct {
	HTTPAddr      string        `yaml:"http_addr"`
	LogLevel      string        `yaml:"log_level"`
	DatabaseURL   string        `yaml:"database_url"`
	JWTSecret     string        `yaml:"jwt_secret"`
	ServiceAPIKey string        `yaml:"service_api_key"`
	BrokerURL     string        `yaml:"broker_url"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	CORSOrigins   []string      `yaml:"cors_origins"`

	// Peers allowed to set X-Forwarded-For.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Posts configures the post service.
type Posts struct {
	HTTPAddr       string        `yaml:"http_addr"`
	LogLevel       string        `yaml:"log_level"`
	DatabaseURL    string        `yaml:"database_url"`
	JWTSecret      string        `yaml:"jwt_secret"`
	BrokerURL      string        `yaml:"broker_url"`
	ConsumerName   string        `yaml:"consumer_name"`
	UserServiceURL string        `yaml:"user_service_url"`
	ServiceAPIKey  string        `yaml:"service_api_key"`
	TombstoneTTL   time.Duration `yaml:"tombstone_ttl"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

func LoadUsers() (Users, error) {
	cfg := Users{
		HTTPAddr: ":8080",
		LogLevel: "info",
		TokenTTL: 24 * time.Hour,
	}
	if err := loadFile(&cfg); err != nil {
		return Users{}, err
	}

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.ServiceAPIKey, "SERVICE_API_KEY")
	setString(&cfg.BrokerURL, "BROKER_URL")
	setList(&cfg.CORSOrigins, "CORS_ORIGINS")
	setList(&cfg.TrustedProxies, "TRUSTED_PROXIES")
	if err := setDuration(&cfg.TokenTTL, "TOKEN_TTL"); err != nil {
		return Users{}, err
	}

	if cfg.DatabaseURL == "" {
		return Users{}, errors.New("missing DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return Users{}, errors.New("missing JWT_SECRET")
	}
	if cfg.ServiceAPIKey == "" {
		return Users{}, errors.New("missing SERVICE_API_KEY")
	}
	if cfg.TokenTTL <= 0 {
		return Users{}, errors.New("TOKEN_TTL must be positive")
	}
	return cfg, nil
}

func LoadPosts() (Posts, error) {
	cfg := Posts{
		HTTPAddr:     ":8080",
		LogLevel:     "info",
		ConsumerName: "posts",
		TombstoneTTL: events.StreamMaxAge,
	}
	if err := loadFile(&cfg); err != nil {
		return Posts{}, err
	}

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.BrokerURL, "BROKER_URL")
	setString(&cfg.ConsumerName, "CONSUMER_NAME")
	setString(&cfg.UserServiceURL, "USER_SERVICE_URL")
	setString(&cfg.ServiceAPIKey, "SERVICE_API_KEY")
	setList(&cfg.CORSOrigins, "CORS_ORIGINS")
	if err := setDuration(&cfg.TombstoneTTL, "TOMBSTONE_TTL"); err != nil {
		return Posts{}, err
	}

	if cfg.DatabaseURL == "" {
		return Posts{}, errors.New("missing DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return Posts{}, errors.New("missing JWT_SECRET")
	}
	if cfg.BrokerURL == "" {
		return Posts{}, errors.New("missing BROKER_URL")
	}
	// Tombstones must outlive any event the broker can still redeliver.
	if cfg.TombstoneTTL < events.StreamMaxAge {
		return Posts{}, fmt.Errorf("TOMBSTONE_TTL must be at least %s", events.StreamMaxAge)
	}
	return cfg, nil
}

func loadFile(v any) error {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList reads a comma-separated list.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
