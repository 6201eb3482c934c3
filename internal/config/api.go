package config

import (
	"strings"
	"time"

	"github.com/deepgram/connected/pkg/logger"
)

const defaultAPIURL = "http://localhost:8001"

// GetAPIBaseURL returns the backend base URL without a trailing slash
func GetAPIBaseURL() string {
	value := strings.TrimRight(GetEnvOrDefault("CONNECTED_API_URL", defaultAPIURL), "/")
	logger.Debug(logger.CONFIG, "Using backend API at %s", value)
	return value
}

// GetLoginPath is where unauthenticated flows are sent
func GetLoginPath() string {
	return GetEnvOrDefault("CONNECTED_LOGIN_PATH", "/login")
}

func GetHTTPTimeout() time.Duration {
	return parseEnvDuration("CONNECTED_HTTP_TIMEOUT", 15*time.Second)
}

func GetListenAddr() string {
	return GetEnvOrDefault("CONNECTED_LISTEN_ADDR", ":8080")
}
