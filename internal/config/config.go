package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderKling   = "kling"
	ProviderSegmind = "segmind"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KlingConfig holds credentials for the asynchronous provider
type KlingConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	Model     string
}

// SegmindConfig holds credentials for the synchronous provider
type SegmindConfig struct {
	APIKey  string
	BaseURL string
}

// StorageConfig describes the local directories used for uploads and results
type StorageConfig struct {
	UploadDir      string
	TryOnDir       string
	TempDir        string
	MaxUploadSize  int64
	AllowedFormats []string
}

// Config holds all configuration for the application
type Config struct {
	Provider string
	Kling    KlingConfig
	Segmind  SegmindConfig

	DefaultSteps    int
	DefaultGuidance float64
	DefaultSeed     int

	GenerationTimeout time.Duration
	CheckInterval     time.Duration
	HTTPTimeout       time.Duration

	Storage StorageConfig

	JanitorSchedule string
	JanitorMaxAge   time.Duration

	Port            string
	ShutdownTimeout time.Duration

	DB DBConfig
}

// Load loads the configuration from environment variables,
// reading a .env file first when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	uploadDir := getEnv("UPLOAD_DIR", "./uploads")

	config := &Config{
		Provider: strings.ToLower(getEnv("TRYON_PROVIDER", ProviderKling)),
		Kling: KlingConfig{
			APIKey:    os.Getenv("KLING_AI_API_KEY"),
			SecretKey: os.Getenv("KLING_AI_SECRET_KEY"),
			BaseURL:   getEnv("KLING_AI_BASE_URL", "https://api-singapore.klingai.com"),
			Model:     getEnv("KLING_AI_MODEL", "kolors-virtual-try-on-v1-5"),
		},
		Segmind: SegmindConfig{
			APIKey:  os.Getenv("SEGMIND_API_KEY"),
			BaseURL: getEnv("SEGMIND_BASE_URL", "https://api.segmind.com/v1/tryon-diffusion"),
		},

		DefaultSteps:    getEnvInt("DEFAULT_STEPS", 25),
		DefaultGuidance: getEnvFloat("DEFAULT_GUIDANCE", 2.5),
		DefaultSeed:     getEnvInt("DEFAULT_SEED", -1),

		GenerationTimeout: getEnvSeconds("DEFAULT_GENERATION_TIMEOUT", 5*time.Minute),
		CheckInterval:     getEnvSeconds("DEFAULT_CHECK_INTERVAL", 2*time.Second),
		HTTPTimeout:       getEnvSeconds("HTTP_TIMEOUT", 60*time.Second),

		Storage: StorageConfig{
			UploadDir:      uploadDir,
			TryOnDir:       filepath.Join(uploadDir, "try-ons"),
			TempDir:        filepath.Join(uploadDir, "temp"),
			MaxUploadSize:  int64(getEnvInt("MAX_FILE_SIZE", 5242880)),
			AllowedFormats: parseList(getEnv("ALLOWED_FORMATS", "jpg,jpeg,png,webp")),
		},

		JanitorSchedule: getEnv("JANITOR_SCHEDULE", "0 */10 * * * *"),
		JanitorMaxAge:   getEnvSeconds("JANITOR_MAX_AGE", time.Hour),

		Port:            getEnv("PORT", "5000"),
		ShutdownTimeout: getEnvSeconds("SHUTDOWN_TIMEOUT", 15*time.Second),

		DB: DBConfig{
			Host:            os.Getenv("DB_HOST"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            os.Getenv("DB_USER"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        os.Getenv("DB_NAME"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvSeconds("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks provider credentials and timing values
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderKling:
		if c.Kling.APIKey == "" || c.Kling.SecretKey == "" {
			return fmt.Errorf("KLING_AI_API_KEY and KLING_AI_SECRET_KEY are required")
		}
	case ProviderSegmind:
		if c.Segmind.APIKey == "" {
			return fmt.Errorf("SEGMIND_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown TRYON_PROVIDER %q", c.Provider)
	}

	if c.CheckInterval <= 0 {
		return fmt.Errorf("DEFAULT_CHECK_INTERVAL must be positive")
	}
	if c.GenerationTimeout < c.CheckInterval {
		return fmt.Errorf("DEFAULT_GENERATION_TIMEOUT must not be shorter than DEFAULT_CHECK_INTERVAL")
	}

	if c.DB.Host != "" {
		if c.DB.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.DB.Database == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	}

	return nil
}

// DatabaseEnabled reports whether catalog storage is configured
func (c *Config) DatabaseEnabled() bool {
	return c.DB.Host != ""
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

// getEnvSeconds reads an integer number of seconds
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return time.Duration(v) * time.Second
	}
	return fallback
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
