package cmd

import (
	"os"
	"strconv"
	"time"
)

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt is getEnv for integers. Unparsable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

// getEnvFloat is getEnv for floats. Unparsable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return defaultValue
}

// getEnvDuration is getEnv for durations such as "5s" or "1m30s".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return defaultValue
}

// getEnvBool treats "true" and "1" as true.
func getEnvBool(key string) bool {
	v := getEnv(key, "")
	return v == "true" || v == "1"
}
