// Package config содержит логику чтения конфигурации сервиса бонусов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultRunAddress = "localhost:8080"

// envFile загружается до чтения переменных окружения, если существует.
var envFile = ".env"

// Config содержит параметры конфигурации сервиса бонусов.
type Config struct {
	RunAddress           string   `env:"RUN_ADDRESS"`
	DatabaseURI          string   `env:"DATABASE_URI"`
	NotifyWebhookAddress string   `env:"NOTIFY_WEBHOOK_ADDRESS"`
	RedisAddr            string   `env:"REDIS_ADDR"`
	RedisPassword        string   `env:"REDIS_PASSWORD"`
	AuthSecret           string   `env:"AUTH_SECRET"`
	Timezone             string   `env:"TIMEZONE"`
	CORSOrigins          []string `env:"CORS_ORIGINS" envSeparator:","`
	RateLimitPerMinute   int      `env:"RATE_LIMIT_PER_MINUTE"`
	SecureCookie         bool     `env:"SECURE_COOKIE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{}
	var corsOrigins string

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.NotifyWebhookAddress, "w", "", "approval webhook receiver address")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "redis address for shared rate limits")
	flag.StringVar(&cfg.AuthSecret, "s", "", "auth cookie signing secret")
	flag.StringVar(&cfg.Timezone, "tz", "UTC", "IANA time zone for bonus weeks")
	flag.StringVar(&corsOrigins, "cors", "", "comma separated allowed CORS origins")
	flag.IntVar(&cfg.RateLimitPerMinute, "rl", 10, "login and approval requests per minute per client")

	flag.Parse()

	cfg.CORSOrigins = splitList(corsOrigins)

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimitPerMinute)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location возвращает часовой пояс, в котором считаются бонусные недели.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
