package config

import (
	"time"

	"github.com/deepgram/connected/pkg/logger"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := GetEnvOrDefault("RATELIMIT_ENABLED", "false") == "true"

	configs := map[string]RateLimitConfig{
		"auth": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_AUTH", 10), // 10 login/signup attempts per minute
			Window:  time.Minute,
		},
		"drills": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_DRILLS", 60),
			Window:  time.Minute,
		},
	}

	if cfg, exists := configs[key]; exists {
		return cfg
	}

	logger.Warn(logger.CONFIG, "No rate limit config found for key: %s", key)
	return RateLimitConfig{Enabled: false}
}
