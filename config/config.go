package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port string

	APIURL       string
	APITimeout   time.Duration
	HistoryLimit int
	CatalogTTL   time.Duration

	SentryDSN string
	JWTSecret string

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	GalleryPrefix     string

	ProcessingBackend string
	GoogleAPIKey      string
	GeminiModel       string

	TelegramToken  string
	TelegramAdmins []string

	PushEnabled bool
}

const (
	BackendAPI    = "api"
	BackendGemini = "gemini"
)

// Load reads .env files when present and then the process environment.
// Variables already set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:               getEnv("ENV", "local"),
		Port:              getEnv("PORT", "8083"),
		APIURL:            strings.TrimRight(getEnv("API_URL", "http://localhost:8000"), "/"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		GalleryPrefix:     strings.Trim(getEnv("GALLERY_PREFIX", "tryon-images"), "/"),
		ProcessingBackend: strings.ToLower(getEnv("PROCESSING_BACKEND", BackendAPI)),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash-image-preview"),
		TelegramToken:     os.Getenv("TG_TOKEN"),
		TelegramAdmins:    splitList(os.Getenv("TG_ADMINS")),
	}

	var err error
	if cfg.APITimeout, err = getDuration("API_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CatalogTTL, err = getDuration("CATALOG_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = getInt("HISTORY_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.PushEnabled, err = getBool("PUSH_ENABLED", false); err != nil {
		return nil, err
	}
	switch cfg.ProcessingBackend {
	case BackendAPI:
	case BackendGemini:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY is required for the gemini backend")
		}
		if !cfg.StorageEnabled() {
			return nil, fmt.Errorf("R2 storage is required for the gemini backend")
		}
	default:
		return nil, fmt.Errorf("unknown PROCESSING_BACKEND %q", cfg.ProcessingBackend)
	}
	return cfg, nil
}

func (c *Config) IsLocal() bool {
	return c.Env == "local"
}

// StorageEnabled reports whether the R2 bucket is configured.
func (c *Config) StorageEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2BucketName != ""
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

// getDuration accepts Go durations ("90s") and bare seconds ("90").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.TrimPrefix(item, "@"))
		}
	}
	return out
}
