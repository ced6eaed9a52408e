package common

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Download DownloadConfig
	Queue    QueueConfig
	Events   EventsConfig
	LogLevel string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine      string // "gosseract" | "cli"
	Lang        string
	Tesseract   string
	Pdftoppm    string
	TessdataDir string
	PSM         int
	DPI         int
	MaxWidth    int
	MaxHeight   int
	MaxPages    int
	PageTimeout time.Duration
	WorkDir     string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider     string // "gemini" | "openai"
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	BaseURL      string
	Temperature  float32
	Timeout      time.Duration
	RPS          float64
	Burst        int
	MaxRetries   int
}

// DownloadConfig bounds URL source fetches.
type DownloadConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

// QueueConfig covers the async-after-upload mode.
type QueueConfig struct {
	Workers       int
	Size          int
	JobTimeout    time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Stream        string
	Group         string
	Consumer      string
	MaxAttempts   int
	InboxDir      string
}

type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadDotEnv merges .env files into the environment. Missing files are ignored
// and variables already set in the real environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return WrapError(err, "load "+p)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	dsn := getEnv("DB_URL", "")
	defaultDriver := "sqlite"
	if dsn != "" {
		defaultDriver = "postgres"
	}
	driver := getEnv("DB_DRIVER", defaultDriver)
	if driver == "sqlite" && dsn == "" {
		dsn = "file:notice-ingest.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "noticed-1"
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:           driver,
			DSN:              dsn,
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			Engine:      getEnv("OCR_ENGINE", "gosseract"),
			Lang:        getEnv("OCR_LANG", "nep+eng"),
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			Pdftoppm:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			PSM:         getEnvAsInt("OCR_PSM", 0),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxWidth:    getEnvAsInt("OCR_MAX_WIDTH", 2000),
			MaxHeight:   getEnvAsInt("OCR_MAX_HEIGHT", 2800),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
			PageTimeout: getEnvAsDuration("OCR_PAGE_TIMEOUT", 2*time.Minute),
			WorkDir:     getEnv("WORK_DIR", filepath.Join(os.TempDir(), "notice-ingest")),
		},
		LLM: LLMConfig{
			Provider:     getEnv("LLM_PROVIDER", "gemini"),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:      getEnv("LLM_BASE_URL", ""),
			Temperature:  getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:      getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			RPS:          float64(getEnvAsFloat32("LLM_RPS", 1)),
			Burst:        getEnvAsInt("LLM_BURST", 1),
			MaxRetries:   getEnvAsInt("LLM_MAX_RETRIES", 1),
		},
		Download: DownloadConfig{
			Timeout:  getEnvAsDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
			MaxBytes: int64(getEnvAsInt("DOWNLOAD_MAX_BYTES", 20<<20)),
		},
		Queue: QueueConfig{
			Workers:       getEnvAsInt("QUEUE_WORKERS", 4),
			Size:          getEnvAsInt("QUEUE_SIZE", 256),
			JobTimeout:    getEnvAsDuration("JOB_TIMEOUT", 10*time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			Stream:        getEnv("REDIS_STREAM", "notice_jobs"),
			Group:         getEnv("REDIS_GROUP", "notice_workers"),
			Consumer:      getEnv("REDIS_CONSUMER", hostname),
			MaxAttempts:   getEnvAsInt("REDIS_MAX_ATTEMPTS", 3),
			InboxDir:      getEnv("INBOX_DIR", ""),
		},
		Events: EventsConfig{
			KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "notice.jobs"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_DRIVER", c.Database.Driver, OneOf("postgres", "sqlite")).
		Field("DB_URL", c.Database.DSN, Required).
		Field("OCR_ENGINE", c.OCR.Engine, OneOf("gosseract", "cli")).
		Field("OCR_LANG", c.OCR.Lang, Required).
		Field("OCR_DPI", c.OCR.DPI, Positive).
		Field("OCR_MAX_WIDTH", c.OCR.MaxWidth, Positive).
		Field("OCR_MAX_HEIGHT", c.OCR.MaxHeight, Positive).
		Field("OCR_MAX_PAGES", c.OCR.MaxPages, NonNegative).
		Field("WORK_DIR", c.OCR.WorkDir, Required).
		Field("LLM_PROVIDER", c.LLM.Provider, OneOf("gemini", "openai")).
		Field("LLM_BURST", c.LLM.Burst, Positive).
		Field("LLM_MAX_RETRIES", c.LLM.MaxRetries, NonNegative).
		Field("DOWNLOAD_MAX_BYTES", c.Download.MaxBytes, Positive).
		Field("QUEUE_WORKERS", c.Queue.Workers, Positive)

	switch c.LLM.Provider {
	case "gemini":
		v.Field("GEMINI_API_KEY", c.LLM.GeminiAPIKey, Required)
	case "openai":
		v.Field("OPENAI_API_KEY", c.LLM.OpenAIAPIKey, Required)
	}

	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
