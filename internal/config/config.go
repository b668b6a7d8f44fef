package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN         string
	Environment   string
	HTTPAddr      string
	JWTSecret     string
	TelegramToken string

	// ExpireAfter возраст, после которого WAITING-запрос истекает
	ExpireAfter time.Duration
	// ExpireInterval период проверки просроченных запросов
	ExpireInterval time.Duration

	CreateRatePerSec float64
	CreateRateBurst  int
}

var ErrMissingDSN = errors.New("DB_DSN is required but not set")

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// Отсутствие .env не ошибка, значения берутся из окружения
	_ = godotenv.Load(".env")

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфиг из функции поиска переменных
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBDSN:         getenv("DB_DSN"),
		Environment:   getenv("ENV"),
		HTTPAddr:      getenv("HTTP_ADDR"),
		JWTSecret:     getenv("JWT_SECRET"),
		TelegramToken: getenv("TELEGRAM_TOKEN"),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	var err error
	if cfg.ExpireAfter, err = duration(getenv, "EXPIRE_AFTER", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ExpireInterval, err = duration(getenv, "EXPIRE_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	cfg.CreateRatePerSec = 1
	if v := getenv("CREATE_RATE_PER_SEC"); v != "" {
		cfg.CreateRatePerSec, err = strconv.ParseFloat(v, 64)
		if err != nil || cfg.CreateRatePerSec <= 0 {
			return nil, fmt.Errorf("CREATE_RATE_PER_SEC: invalid value %q", v)
		}
	}

	cfg.CreateRateBurst = 5
	if v := getenv("CREATE_RATE_BURST"); v != "" {
		cfg.CreateRateBurst, err = strconv.Atoi(v)
		if err != nil || cfg.CreateRateBurst <= 0 {
			return nil, fmt.Errorf("CREATE_RATE_BURST: invalid value %q", v)
		}
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, ErrMissingDSN
	}

	return cfg, nil
}

// RequireJWT проверяет настройки, нужные HTTP-серверу
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve HTTP")
	}
	return nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
