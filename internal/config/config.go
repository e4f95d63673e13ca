package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageGCS = "gcs"
	StorageS3  = "s3"

	ExtractorVertex         = "vertex"
	ExtractorFormRecognizer = "formrecognizer"
)

type Config struct {
	Port        string
	DatabaseURL string

	StorageBackend   string
	SaleBucket       string
	UploadMaxRetries int
	AwsRegion        string
	AwsAccessKey     string
	AwsSecretKey     string
	S3PresignTTL     time.Duration

	ExtractorBackend       string
	ProjectID              string
	VertexAIRegion         string
	VertexModel            string
	FormRecognizerEndpoint string
	FormRecognizerKey      string
	FormRecognizerModelID  string
	ExtractTimeout         time.Duration

	FirestoreCollection string
	WorkflowID          string
	WorkflowLocation    string

	JWTSecret   string
	CORSOrigins []string
	MaxUploadMB int

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", StorageGCS)),
		SaleBucket:       getEnv("SALE_BUCKET", "sherifsale"),
		UploadMaxRetries: getEnvInt("UPLOAD_MAX_RETRIES", 4),
		AwsRegion:        getEnv("AWS_REGION", ""),
		AwsAccessKey:     getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:     getEnv("AWS_SECRET_KEY", ""),
		S3PresignTTL:     getEnvDuration("S3_PRESIGN_TTL", 15*time.Minute),

		ExtractorBackend:       strings.ToLower(getEnv("EXTRACTOR_BACKEND", ExtractorVertex)),
		ProjectID:              getEnv("PROJECT_ID", ""),
		VertexAIRegion:         getEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:            getEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		FormRecognizerEndpoint: getEnv("FORM_RECOGNIZER_ENDPOINT", ""),
		FormRecognizerKey:      getEnv("FORM_RECOGNIZER_KEY", ""),
		FormRecognizerModelID:  getEnv("FORM_RECOGNIZER_MODEL_ID", ""),
		ExtractTimeout:         getEnvDuration("EXTRACT_TIMEOUT", 3*time.Minute),

		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", ""),
		WorkflowID:          getEnv("WORKFLOW_ID", ""),
		WorkflowLocation:    getEnv("WORKFLOW_LOCATION", "us-central1"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 50),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case StorageGCS:
	case StorageS3:
		if c.AwsRegion == "" {
			errs = append(errs, errors.New("AWS_REGION is required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.SaleBucket == "" {
		errs = append(errs, errors.New("SALE_BUCKET must be set"))
	}

	switch c.ExtractorBackend {
	case ExtractorVertex:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("PROJECT_ID is required for the vertex extractor"))
		}
	case ExtractorFormRecognizer:
		if c.FormRecognizerEndpoint == "" || c.FormRecognizerKey == "" || c.FormRecognizerModelID == "" {
			errs = append(errs, errors.New("FORM_RECOGNIZER_ENDPOINT, FORM_RECOGNIZER_KEY and FORM_RECOGNIZER_MODEL_ID are required for the formrecognizer extractor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EXTRACTOR_BACKEND %q", c.ExtractorBackend))
	}

	if (c.FirestoreCollection != "" || c.WorkflowID != "") && c.ProjectID == "" {
		errs = append(errs, errors.New("PROJECT_ID is required for the run ledger and enrichment workflow"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if c.ExtractTimeout <= 0 {
		errs = append(errs, errors.New("EXTRACT_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Environment value is not an int, using default.", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Environment value is not a duration, using default.", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
