package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/cad-analyzer-mcp/internal/classify"
)

// Config holds all application configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Converter  ConverterConfig  `yaml:"converter"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Render     RenderConfig     `yaml:"render"`
	Server     ServerConfig     `yaml:"server"`
	History    HistoryConfig    `yaml:"history"`
	Storage    StorageConfig    `yaml:"storage"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"` // "json" or "console"
	Development bool   `yaml:"development"`
}

// ExtractionConfig holds reader and classifier settings
type ExtractionConfig struct {
	MaxEntities      int      `yaml:"max_entities"`
	MaxFileSizeMB    int      `yaml:"max_file_size_mb"`
	SecurityKeywords []string `yaml:"security_keywords"`
	WiringKeywords   []string `yaml:"wiring_keywords"`
}

// ConverterConfig holds DWG->DXF converter settings
type ConverterConfig struct {
	Kind          string        `yaml:"kind"` // "oda" or "libredwg"
	Path          string        `yaml:"path"`
	OutputVersion string        `yaml:"output_version"`
	TempDir       string        `yaml:"temp_dir"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SummarizerConfig holds summarization service settings
type SummarizerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	DefaultModel   string        `yaml:"default_model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxPromptChars int           `yaml:"max_prompt_chars"`
}

// RenderConfig holds layout preview settings
type RenderConfig struct {
	Size        int    `yaml:"size"`
	FontPath    string `yaml:"font_path"`
	DeviceColor string `yaml:"device_color"`
	WiringColor string `yaml:"wiring_color"`
}

// ServerConfig holds service surface settings
type ServerConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	GRPCHealthAddr string `yaml:"grpc_health_addr"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
}

// HistoryConfig holds analysis history settings
type HistoryConfig struct {
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"`
}

// StorageConfig holds object storage settings for s3:// inputs
type StorageConfig struct {
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3Region          string `yaml:"s3_region"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
}

// LoadConfig loads configuration from environment variables and, when
// CAD_CONFIG_FILE is set, overlays the YAML file it names.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Log: LogConfig{
			Level:       getEnv("CAD_LOG_LEVEL", "info"),
			Format:      getEnv("CAD_LOG_FORMAT", "json"),
			Development: getEnvAsBool("CAD_LOG_DEVELOPMENT", false),
		},
		Extraction: ExtractionConfig{
			MaxEntities:      getEnvAsInt("CAD_MAX_ENTITIES", 3000),
			MaxFileSizeMB:    getEnvAsInt("CAD_MAX_FILE_SIZE_MB", 10),
			SecurityKeywords: getEnvAsList("CAD_SECURITY_KEYWORDS", classify.DefaultSecurityKeywords),
			WiringKeywords:   getEnvAsList("CAD_WIRING_KEYWORDS", classify.DefaultWiringKeywords),
		},
		Converter: ConverterConfig{
			Kind:          getEnv("CAD_CONVERTER", "oda"),
			Path:          getEnv("CAD_CONVERTER_PATH", ""),
			OutputVersion: getEnv("CAD_CONVERTER_OUTPUT_VERSION", "ACAD2018"),
			TempDir:       getEnv("CAD_TEMP_DIR", ""),
			Timeout:       getEnvAsDuration("CAD_CONVERTER_TIMEOUT", 2*time.Minute),
		},
		Summarizer: SummarizerConfig{
			BaseURL:        getEnv("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),
			APIKey:         getEnv("DASHSCOPE_API_KEY", ""),
			DefaultModel:   getEnv("CAD_DEFAULT_MODEL", "qwen-turbo"),
			Timeout:        getEnvAsDuration("CAD_SUMMARIZE_TIMEOUT", 2*time.Minute),
			MaxPromptChars: getEnvAsInt("CAD_MAX_PROMPT_CHARS", 1000000),
		},
		Render: RenderConfig{
			Size:        getEnvAsInt("CAD_RENDER_SIZE", 1800),
			FontPath:    getEnv("CAD_RENDER_FONT", ""),
			DeviceColor: getEnv("CAD_RENDER_DEVICE_COLOR", "#d62728"),
			WiringColor: getEnv("CAD_RENDER_WIRING_COLOR", "#1f77b4"),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("CAD_HTTP_ADDR", ":8000"),
			GRPCHealthAddr: getEnv("CAD_GRPC_HEALTH_ADDR", ""),
			Workers:        getEnvAsInt("CAD_WORKERS", 4),
			QueueSize:      getEnvAsInt("CAD_QUEUE_SIZE", 64),
		},
		History: HistoryConfig{
			DSN:           getEnv("CAD_HISTORY_DSN", ""),
			RetentionDays: getEnvAsInt("CAD_HISTORY_RETENTION_DAYS", 30),
		},
		Storage: StorageConfig{
			S3Endpoint:        getEnv("CAD_S3_ENDPOINT", ""),
			S3Region:          getEnv("CAD_S3_REGION", "us-east-1"),
			S3AccessKeyID:     getEnv("CAD_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("CAD_S3_SECRET_ACCESS_KEY", ""),
		},
	}

	if path := os.Getenv("CAD_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// overlayFile merges a YAML file into cfg. Keys absent from the file keep
// their current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError("CONFIG_ERROR", "parse config file "+path, err)
	}
	return nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

// getEnvAsList splits a comma-separated variable. The default slice is copied.
func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return append([]string(nil), defaultValue...)
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Extraction.MaxEntities <= 0 {
		return NewAppError("CONFIG_ERROR", "CAD_MAX_ENTITIES must be positive", ErrInvalidInput)
	}
	if c.Extraction.MaxFileSizeMB <= 0 {
		return NewAppError("CONFIG_ERROR", "CAD_MAX_FILE_SIZE_MB must be positive", ErrInvalidInput)
	}
	if len(c.Extraction.SecurityKeywords) == 0 {
		return NewAppError("CONFIG_ERROR", "security keyword list is empty", ErrInvalidInput)
	}
	if len(c.Extraction.WiringKeywords) == 0 {
		return NewAppError("CONFIG_ERROR", "wiring keyword list is empty", ErrInvalidInput)
	}
	switch c.Converter.Kind {
	case "oda", "libredwg":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown converter %q (want oda or libredwg)", c.Converter.Kind), ErrInvalidInput)
	}
	if c.Render.Size < 200 {
		return NewAppError("CONFIG_ERROR", "CAD_RENDER_SIZE must be at least 200", ErrInvalidInput)
	}
	if c.Server.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "CAD_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}
