package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	Store          string
	StoreDir       string
	RedisAddr      string
	RedisPrefix    string
	ArrayPath      string
	Multiscale     bool
	RGB            string
	Scale          float64
	RequestTimeout time.Duration
}

func FromEnv() Config {
	rgb := strings.ToLower(getenv("RGB", "auto"))
	switch rgb {
	case "auto", "true", "false":
	default:
		rgb = "auto"
	}

	return Config{
		Addr:           getenv("ADDR", ":8091"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		Store:          strings.ToLower(getenv("STORE", "local")),
		StoreDir:       getenv("STORE_DIR", "."),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:    getenv("REDIS_PREFIX", "zarr"),
		ArrayPath:      getenv("ARRAY_PATH", ""),
		Multiscale:     getbool("MULTISCALE", false),
		RGB:            rgb,
		Scale:          getfloat("SCALE", 1),
		RequestTimeout: getduration("REQUEST_TIMEOUT", 30*time.Second),
	}
}

// RGBOverride returns nil when detection should decide.
func (c Config) RGBOverride() *bool {
	switch c.RGB {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
