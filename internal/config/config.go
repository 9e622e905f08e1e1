package config

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	Port              string
	GinMode           string
	MongoURI          string
	DBName            string
	JWTSecret         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	RedisAddr         string
	CacheTTL          time.Duration
	KafkaBrokers      []string
	KafkaOrderTopic   string
	UploadDir         string
	LowStockThreshold int
}

// Load reads .env (when present) and the process environment into AppEnv.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] [INFO] .env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() Config {
	return Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		GinMode:           getEnvOrDefault("GIN_MODE", "debug"),
		MongoURI:          getEnvOrDefault("MONGO_URI", ""),
		DBName:            getEnvOrDefault("DB_NAME", "storefront"),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:    getDurationEnv("ACCESS_TOKEN_TTL", 60, time.Minute),
		RefreshTokenTTL:   getDurationEnv("REFRESH_TOKEN_TTL", 7, 24*time.Hour),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", ""),
		CacheTTL:          getDurationEnv("CACHE_TTL", 300, time.Second),
		KafkaBrokers:      getListEnv("KAFKA_BROKERS"),
		KafkaOrderTopic:   getEnvOrDefault("KAFKA_ORDER_TOPIC", "storefront.orders"),
		UploadDir:         getEnvOrDefault("UPLOAD_DIR", "./public"),
		LowStockThreshold: getIntEnv("LOW_STOCK_THRESHOLD", 5),
	}
}

// Validate reports the settings the HTTP server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}
