package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/lesionscan/internal/imaging"
)

// Config holds all configuration for the lesionscan server.
type Config struct {
	Server     ServerConfig
	Upload     UploadConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Image      ImageConfig
	Classifier ClassifierConfig
	Jobs       JobsConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           slog.Level
	CORSOrigins        []string
	RateLimitPerMinute int
}

// IsDevelopment reports whether error responses may include stack traces.
func (s ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type ImageConfig struct {
	TargetSize int
	Quality    int
}

type ClassifierConfig struct {
	ModelURL             string
	ModelName            string
	Timeout              time.Duration
	Labels               []string
	HighRiskConditions   []string
	MediumRiskConditions []string
}

type JobsConfig struct {
	// Timeout bounds a single job's advancement. Zero disables the deadline.
	Timeout time.Duration
}

// DefaultLabels are the class labels in the order the reference model emits them.
var DefaultLabels = []string{
	"Melanoma",
	"Basal Cell Carcinoma",
	"Squamous Cell Carcinoma",
	"Actinic Keratosis",
	"Benign Keratosis",
	"Dermatofibroma",
	"Vascular Lesion",
}

var (
	DefaultHighRisk   = []string{"Melanoma", "Basal Cell Carcinoma", "Squamous Cell Carcinoma"}
	DefaultMediumRisk = []string{"Actinic Keratosis"}
)

var validDrivers = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	env := envString("APP_ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("PORT", 3000),
			Env:                env,
			LogLevel:           envLogLevel("LOG_LEVEL", env),
			CORSOrigins:        envList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Upload: UploadConfig{
			Dir:      envString("UPLOAD_DIR", "./uploads"),
			MaxBytes: int64(envInt("MAX_UPLOAD_BYTES", 5*1024*1024)),
		},
		Database: DatabaseConfig{
			Driver:          envString("STORE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Image: ImageConfig{
			TargetSize: envInt("IMAGE_TARGET_SIZE", 224),
			Quality:    envInt("IMAGE_QUALITY", 90),
		},
		Classifier: ClassifierConfig{
			ModelURL:             strings.TrimRight(os.Getenv("MODEL_URL"), "/"),
			ModelName:            envString("MODEL_NAME", "skin_lesion_model"),
			Timeout:              envDuration("MODEL_TIMEOUT", 30*time.Second),
			Labels:               envList("MODEL_LABELS", DefaultLabels),
			HighRiskConditions:   envList("HIGH_RISK_CONDITIONS", DefaultHighRisk),
			MediumRiskConditions: envList("MEDIUM_RISK_CONDITIONS", DefaultMediumRisk),
		},
		Jobs: JobsConfig{
			Timeout: envDuration("JOB_TIMEOUT", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, memory; got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Upload.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}

	if c.Image.TargetSize <= 0 || c.Image.TargetSize > imaging.MaxDimension {
		return fmt.Errorf("IMAGE_TARGET_SIZE must be between 1 and %d, got %d", imaging.MaxDimension, c.Image.TargetSize)
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("IMAGE_QUALITY must be between 1 and 100, got %d", c.Image.Quality)
	}

	if c.Classifier.ModelURL != "" &&
		!strings.HasPrefix(c.Classifier.ModelURL, "http://") && !strings.HasPrefix(c.Classifier.ModelURL, "https://") {
		return fmt.Errorf("MODEL_URL must start with http:// or https://, got %q", c.Classifier.ModelURL)
	}
	if len(c.Classifier.Labels) == 0 {
		return fmt.Errorf("MODEL_LABELS must list at least one label")
	}

	if c.Jobs.Timeout < 0 {
		return fmt.Errorf("JOB_TIMEOUT must not be negative, got %s", c.Jobs.Timeout)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated value, dropping blanks.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envLogLevel(key, env string) slog.Level {
	level := slog.LevelInfo
	if env == "development" {
		level = slog.LevelDebug
	}
	if v := os.Getenv(key); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return slog.LevelInfo
		}
	}
	return level
}
