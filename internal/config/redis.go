package config

import (
	"os"
	"strconv"
)

type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	SubscriptionsKey string
	Stream           string
}

// GetRedisConfig resolves the Redis connection, the environment wins over config.yaml
func GetRedisConfig() RedisConfig {
	defaults := Default().Redis
	if instance != nil {
		defaults = instance.Redis
	}

	db := defaults.DB
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			db = parsed
		}
	}

	return RedisConfig{
		Addr:             getEnv("REDIS_ADDR", defaults.Addr),
		Password:         getEnv("REDIS_PASSWORD", defaults.Password),
		DB:               db,
		SubscriptionsKey: getEnv("REDIS_SUBSCRIPTIONS_KEY", defaults.SubscriptionsKey),
		Stream:           getEnv("REDIS_STREAM", defaults.Stream),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
