// Package config загружает настройки сервиса из файла .env, флагов и переменных окружения.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит настройки приложения
type Config struct {
	RunAddr           string
	GRPCAddr          string
	BaseURL           string
	RootDomain        string
	DevHosts          []string
	DatabaseDSN       string
	FileStoragePath   string
	RedisURL          string
	JWTSecret         string
	FingerprintSecret string
	RateLimitMax      int
	TrustedSubnet     string
	ClientIPHeader    string
	CountryHeader     string
	RedirectRPS       float64
	RedirectBurst     int
	ClickTimeout      time.Duration
	LogLevel          string
}

// NewConfig читает .env (если он есть), флаги командной строки и переменные окружения.
// Переменные окружения имеют приоритет над флагами.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Load(os.Args[1:], os.Getenv)
}

// Load разбирает аргументы args и применяет переменные окружения, прочитанные через getenv
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	var devHosts string

	flags := flag.NewFlagSet("redirector", flag.ContinueOnError)
	flags.StringVar(&cfg.RunAddr, "a", ":8080", "address and port to run HTTP server")
	flags.StringVar(&cfg.GRPCAddr, "g", "", "address and port to run gRPC server")
	flags.StringVar(&cfg.BaseURL, "b", "http://localhost:8080", "base URL for short links")
	flags.StringVar(&cfg.RootDomain, "r", "localhost", "root domain; subdomains of it are partitions")
	flags.StringVar(&devHosts, "dev-hosts", "localhost,127.0.0.1", "comma separated hosts treated as the root domain")
	flags.StringVar(&cfg.DatabaseDSN, "d", "", "database DSN for PostgreSQL")
	flags.StringVar(&cfg.FileStoragePath, "f", "", "path to journal file for storing links")
	flags.StringVar(&cfg.RedisURL, "redis", "", "Redis URL for rate limit counters")
	flags.StringVar(&cfg.JWTSecret, "j", "", "secret used to verify owner tokens")
	flags.StringVar(&cfg.FingerprintSecret, "fingerprint-secret", "", "secret used to hash visitor addresses")
	flags.IntVar(&cfg.RateLimitMax, "rate-limit", 5, "anonymous link creations per source per day")
	flags.StringVar(&cfg.TrustedSubnet, "t", "", "CIDR of the edge proxy allowed to set the client IP header")
	flags.StringVar(&cfg.ClientIPHeader, "client-ip-header", "X-Real-IP", "header carrying the client IP")
	flags.StringVar(&cfg.CountryHeader, "country-header", "CF-IPCountry", "header carrying the visitor country")
	flags.Float64Var(&cfg.RedirectRPS, "redirect-rps", 20, "redirects per second per client IP, 0 disables")
	flags.IntVar(&cfg.RedirectBurst, "redirect-burst", 40, "redirect burst per client IP")
	flags.DurationVar(&cfg.ClickTimeout, "click-timeout", 5*time.Second, "timeout for recording one click")
	flags.StringVar(&cfg.LogLevel, "l", "info", "log level")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	// Проверяем переменные окружения
	envString(getenv, "SERVER_ADDRESS", &cfg.RunAddr)
	envString(getenv, "GRPC_ADDRESS", &cfg.GRPCAddr)
	envString(getenv, "BASE_URL", &cfg.BaseURL)
	envString(getenv, "ROOT_DOMAIN", &cfg.RootDomain)
	envString(getenv, "DEV_HOSTS", &devHosts)
	envString(getenv, "DATABASE_DSN", &cfg.DatabaseDSN)
	envString(getenv, "FILE_STORAGE_PATH", &cfg.FileStoragePath)
	envString(getenv, "REDIS_URL", &cfg.RedisURL)
	envString(getenv, "JWT_SECRET", &cfg.JWTSecret)
	envString(getenv, "FINGERPRINT_SECRET", &cfg.FingerprintSecret)
	envString(getenv, "TRUSTED_SUBNET", &cfg.TrustedSubnet)
	envString(getenv, "CLIENT_IP_HEADER", &cfg.ClientIPHeader)
	envString(getenv, "COUNTRY_HEADER", &cfg.CountryHeader)
	envString(getenv, "LOG_LEVEL", &cfg.LogLevel)

	var err error
	if cfg.RateLimitMax, err = envInt(getenv, "RATE_LIMIT_MAX", cfg.RateLimitMax); err != nil {
		return nil, err
	}
	if cfg.RedirectBurst, err = envInt(getenv, "REDIRECT_BURST", cfg.RedirectBurst); err != nil {
		return nil, err
	}
	if v := getenv("REDIRECT_RPS"); v != "" {
		if cfg.RedirectRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid REDIRECT_RPS %q: %w", v, err)
		}
	}
	if v := getenv("CLICK_TIMEOUT"); v != "" {
		if cfg.ClickTimeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid CLICK_TIMEOUT %q: %w", v, err)
		}
	}

	cfg.DevHosts = splitList(devHosts)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if !strings.Contains(cfg.RunAddr, ":") {
		cfg.RunAddr = ":" + cfg.RunAddr
	}
	if cfg.GRPCAddr != "" && !strings.Contains(cfg.GRPCAddr, ":") {
		cfg.GRPCAddr = ":" + cfg.GRPCAddr
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		cfg.BaseURL = "http://" + cfg.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.RootDomain = strings.ToLower(strings.TrimSpace(cfg.RootDomain))
	if cfg.RootDomain == "" {
		return errors.New("root domain is required")
	}
	if cfg.TrustedSubnet != "" {
		if _, _, err := net.ParseCIDR(cfg.TrustedSubnet); err != nil {
			return fmt.Errorf("invalid trusted subnet %q: %w", cfg.TrustedSubnet, err)
		}
	}
	if cfg.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimitMax)
	}
	if cfg.FileStoragePath != "" {
		// Создаём директорию для файла, если она не существует
		if err := os.MkdirAll(filepath.Dir(cfg.FileStoragePath), 0755); err != nil {
			return err
		}
	}
	return nil
}

func envString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func envInt(getenv func(string) string, key string, current int) (int, error) {
	v := getenv(key)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
