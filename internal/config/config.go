package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	GeminiAPIKey        string
	GeminiBaseURL       string
	GeminiAPIVersion    string
	GeminiAnalysisModel string
	GeminiImageModel    string

	TelegramToken string

	WebAddr       string
	SecureCookies bool

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	HTTPTimeout        time.Duration
	RequestTimeout     time.Duration
	MaxUploadBytes     int64
	SessionTTL         time.Duration
	MaxConcurrent      int
	MediaGroupDebounce time.Duration
	PresetsFile        string
}

// Load reads the environment. Only the Gemini key is mandatory; front ends
// check their own extra requirements (see RequireTelegram).
func Load() (Config, error) {
	cfg := Config{
		GeminiBaseURL:       strings.TrimSpace(getEnv("GEMINI_BASE_URL", "")),
		GeminiAPIVersion:    strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		GeminiAnalysisModel: strings.TrimSpace(getEnv("GEMINI_ANALYSIS_MODEL", "gemini-3-flash-preview")),
		GeminiImageModel:    strings.TrimSpace(getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image")),
		WebAddr:             strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		SecureCookies:       getEnvBool("SECURE_COOKIES", false),
		LogLevel:            strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:               getEnvBool("DEBUG", false),
		PreferIPv4:          getEnvBool("PREFER_IPV4", true),
		HTTPTimeout:         time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		RequestTimeout:      time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,
		SessionTTL:          time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
		MaxConcurrent:       getEnvInt("MAX_CONCURRENT", 4),
		MediaGroupDebounce:  time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		PresetsFile:         strings.TrimSpace(os.Getenv("PRESETS_FILE")),
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.WebAddr == "" {
		cfg.WebAddr = ":8080"
	}

	return cfg, nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
