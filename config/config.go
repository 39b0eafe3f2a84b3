package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Telegram   TelegramConfig
	Geocoding  GeocodingConfig
	Redis      RedisConfig
	Location   LocationConfig
	HTTPClient HTTPClientConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	TimeZone           string // used to stamp check-ins that arrive without a timestamp
}

// TelegramConfig holds the bot credential and destination chats.
// Empty values are allowed: dispatch then reports failure instead of the process refusing to start.
type TelegramConfig struct {
	BotToken      string
	MemberGroupID string // chapter members
	GuestGroupID  string // invited, visiting and special guests
	APIURL        string
}

// GeocodingConfig holds reverse-geocoding settings.
type GeocodingConfig struct {
	URL      string
	Language string
	CacheTTL time.Duration
}

// RedisConfig holds Redis connection settings. Redis backs the position and address caches.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LocationConfig holds location cache settings.
type LocationConfig struct {
	PositionCacheTTL time.Duration
}

// HTTPClientConfig bounds outbound calls to Telegram and the geocoder.
type HTTPClientConfig struct {
	Timeout time.Duration
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080"),
			TimeZone:           getEnv("CHECKIN_TIMEZONE", "Asia/Ho_Chi_Minh"),
		},
		Telegram: TelegramConfig{
			BotToken:      firstEnv("TELEGRAM_BOT_TOKEN", "VITE_TELEGRAM_BOT_TOKEN"),
			MemberGroupID: firstEnv("TELEGRAM_MEMBER_GROUP_ID", "VITE_TELEGRAM_MEMBER_GROUP_ID"),
			GuestGroupID:  firstEnv("TELEGRAM_GUEST_GROUP_ID", "VITE_TELEGRAM_GUEST_GROUP_ID"),
			APIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		},
		Geocoding: GeocodingConfig{
			URL:      getEnv("GEOCODING_API_URL", getEnv("VITE_GEOCODING_API_URL", "https://api.bigdatacloud.net/data/reverse-geocode-client")),
			Language: getEnv("GEOCODING_LANGUAGE", "vi"),
			CacheTTL: getEnvDuration("GEOCODING_CACHE_TTL_SEC", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Location: LocationConfig{
			PositionCacheTTL: getEnvDuration("POSITION_CACHE_TTL_SEC", 5*time.Minute),
		},
		HTTPClient: HTTPClientConfig{
			Timeout: getEnvDuration("HTTP_CLIENT_TIMEOUT_SEC", 10*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	return cfg, nil
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c ServerConfig) AllowedOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration reads a whole number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
