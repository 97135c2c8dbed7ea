package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，通过环境变量注入（可选 .env 文件预加载）。
type AppConfig struct {
	HTTPAddr string

	// DBDriver 取值 sqlite / postgres
	DBDriver string
	DBDSN    string

	// RedisAddr 为空时关闭订单锁、幂等缓存与限流
	RedisAddr string
	RedisDB   int

	// KafkaBrokers 为空时不发布订单事件
	KafkaBrokers []string
	KafkaTopic   string

	// 支付网关
	StripeSecretKey    string
	PaymentCurrency    string
	PaymentTimeout     time.Duration
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// 下单接口限流
	OrderRateLimit  int
	OrderRateWindow time.Duration

	OrderLockTTL   time.Duration
	IdempotencyTTL time.Duration

	CORSOrigins []string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:              getEnv("DB_DSN", "restaurant_orders.db"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "restaurant-order-events"),
		StripeSecretKey:    getEnv("STRIPE_SECRET_KEY", ""),
		PaymentCurrency:    strings.ToLower(getEnv("PAYMENT_CURRENCY", "eur")),
		PaymentTimeout:     10 * time.Second,
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/payment/cancel?session_id={CHECKOUT_SESSION_ID}"),
		OrderRateLimit:     30,
		OrderRateWindow:    time.Minute,
		OrderLockTTL:       15 * time.Second,
		IdempotencyTTL:     24 * time.Hour,
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "*")),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	timeoutSec, err := getEnvPositive("PAYMENT_TIMEOUT_SEC", int(cfg.PaymentTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.PaymentTimeout = time.Duration(timeoutSec) * time.Second

	rateLimit, err := getEnvPositive("ORDER_RATE_LIMIT", cfg.OrderRateLimit)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.OrderRateLimit = rateLimit

	rateWindowSec, err := getEnvPositive("ORDER_RATE_WINDOW_SEC", int(cfg.OrderRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.OrderRateWindow = time.Duration(rateWindowSec) * time.Second

	lockTTLSec, err := getEnvPositive("ORDER_LOCK_TTL_SEC", int(cfg.OrderLockTTL.Seconds()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.OrderLockTTL = time.Duration(lockTTLSec) * time.Second

	idemTTLHour, err := getEnvPositive("IDEMPOTENCY_TTL_HOUR", int(cfg.IdempotencyTTL.Hours()))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.IdempotencyTTL = time.Duration(idemTTLHour) * time.Hour

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		return AppConfig{}, fmt.Errorf("DB_DSN must not be empty")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
	}
	if cfg.PaymentCurrency == "" {
		return AppConfig{}, fmt.Errorf("PAYMENT_CURRENCY must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvPositive(key string, fallback int) (int, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return n, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
