package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultAuthSecret = "dev-change-me"

type Config struct {
	Port               string
	AppEnv             string
	LogLevel           string
	AllowedOrigin      string
	DatabaseURL        string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CartTTL            time.Duration
	DefaultWarehouseID string
	MaxFrozenOrders    int
	SagaStepTimeout    time.Duration
	VoucherValidity    int
	KafkaBrokers       []string
	KafkaTopic         string
	AuthSecret         string
	AccessTokenTTL     time.Duration
	ManagerPIN         string
}

func Load() Config {
	return Config{
		Port:               getEnv("PORT", "8080"),
		AppEnv:             strings.ToLower(getEnv("APP_ENV", "development")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGINS", "http://127.0.0.1:3000"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxOpenConns:     getInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:     getInt("DB_MAX_IDLE_CONNS", 5),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getIntAllowZero("REDIS_DB", 0),
		CartTTL:            time.Duration(getInt("CART_TTL_HOURS", 12)) * time.Hour,
		DefaultWarehouseID: getEnv("DEFAULT_WAREHOUSE_ID", "wh-main"),
		MaxFrozenOrders:    getInt("MAX_FROZEN_ORDERS", 3),
		SagaStepTimeout:    time.Duration(getInt("SAGA_STEP_TIMEOUT_SECONDS", 10)) * time.Second,
		VoucherValidity:    getInt("VOUCHER_VALIDITY_MONTHS", 12),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "pos-notifications"),
		AuthSecret:         strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTL:     time.Duration(getInt("ACCESS_TOKEN_TTL_MINUTES", 720)) * time.Minute,
		ManagerPIN:         strings.TrimSpace(os.Getenv("MANAGER_PIN")),
	}
}

// Validate refuses development credentials in production.
func (c Config) Validate() error {
	if c.AppEnv != "production" {
		return nil
	}
	var errs []error
	if c.AuthSecret == "" || c.AuthSecret == defaultAuthSecret {
		errs = append(errs, errors.New("AUTH_SECRET must be set in production"))
	}
	if c.ManagerPIN == "" {
		errs = append(errs, errors.New("MANAGER_PIN must be set in production"))
	}
	return errors.Join(errs...)
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back on unparsable or non-positive values.
func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getIntAllowZero(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
