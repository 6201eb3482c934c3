package config

import (
	"github.com/deepgram/connected/pkg/logger"
)

func GetRedisURL() string {
	logger.Debug(logger.CONFIG, "Attempting to retrieve Redis URL from environment")
	value := GetEnvOrDefault("REDIS_URL", "")
	if value == "" {
		logger.Info(logger.CONFIG, "REDIS_URL not set - session store will be in-memory")
	} else {
		logger.Info(logger.CONFIG, "Redis URL successfully loaded")
	}
	return value
}

func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}

// GetSessionStorePrefix namespaces session keys in Redis so several
// profiles can share one instance.
func GetSessionStorePrefix() string {
	return GetEnvOrDefault("SESSION_STORE_PREFIX", "connected")
}
