package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// client
	APIURL          string
	HTTPTimeout     time.Duration
	CacheKeepUnused time.Duration
	RefetchWorkers  int
	LogFile         string

	// reference server
	Port        string
	DatabaseURL string
	PerPage     int
}

func Load() Config {
	return Config{
		APIURL:          getEnv("TODO_API_URL", "http://localhost:3001/api/"),
		HTTPTimeout:     getDuration("HTTP_TIMEOUT", 10*time.Second),
		CacheKeepUnused: getDuration("CACHE_KEEP_UNUSED", 60*time.Second),
		RefetchWorkers:  getInt("REFETCH_WORKERS", 3),
		LogFile:         getEnv("TODO_LOG_FILE", ""),
		Port:            getEnv("PORT", "3001"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		PerPage:         getInt("PER_PAGE", 10),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
