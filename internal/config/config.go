package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Input: one subdirectory per chapter run, each with a manifest.
	ChapterOutputDir string `yaml:"chapter_output_dir"`

	// Output roots.
	DocumentIROutputDir string `yaml:"document_ir_output_dir"`
	OutputDir           string `yaml:"output_dir"`

	// Optional override for the embedded chapter schema.
	ChapterSchemaPath string `yaml:"chapter_schema_path"`

	// Go time layout shared by every artifact name of one invocation.
	TimestampFormat string `yaml:"timestamp_format"`

	// Side exports.
	ExportDOCX bool `yaml:"export_docx"`
	ExportXLSX bool `yaml:"export_xlsx"`

	// Logging
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	// Preview server
	Port         string        `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ChapterOutputDir:    "final_reports/chapters",
		DocumentIROutputDir: "final_reports/ir",
		OutputDir:           "final_reports",
		TimestampFormat:     "20060102_150405",
		LogFormat:           "text",
		LogLevel:            "info",
		Port:                "8091",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        120 * time.Second,
	}
}

// Load builds a Config from defaults and the environment.
func Load() Config {
	return applyEnv(Defaults())
}

// FromFile layers a YAML file over the defaults, then the environment over both.
func FromFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	cfg.ChapterOutputDir = envOr("CHAPTER_OUTPUT_DIR", cfg.ChapterOutputDir)
	cfg.DocumentIROutputDir = envOr("DOCUMENT_IR_OUTPUT_DIR", cfg.DocumentIROutputDir)
	cfg.OutputDir = envOr("OUTPUT_DIR", cfg.OutputDir)
	cfg.ChapterSchemaPath = envOr("CHAPTER_SCHEMA_PATH", cfg.ChapterSchemaPath)
	cfg.TimestampFormat = envOr("TIMESTAMP_FORMAT", cfg.TimestampFormat)

	cfg.ExportDOCX = envBool("EXPORT_DOCX", cfg.ExportDOCX)
	cfg.ExportXLSX = envBool("EXPORT_XLSX", cfg.ExportXLSX)

	cfg.LogFormat = strings.ToLower(envOr("LOG_FORMAT", cfg.LogFormat))
	cfg.LogLevel = strings.ToLower(envOr("LOG_LEVEL", cfg.LogLevel))

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("REGEN_API_KEY", cfg.APIKey)
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", cfg.WriteTimeout)

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 120 * time.Second
	}
	return cfg
}

// HTMLOutputDir is where rendered reports are written.
func (c Config) HTMLOutputDir() string {
	return filepath.Join(c.OutputDir, "html")
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ChapterOutputDir) == "" {
		return fmt.Errorf("CHAPTER_OUTPUT_DIR is required")
	}
	if strings.TrimSpace(c.DocumentIROutputDir) == "" {
		return fmt.Errorf("DOCUMENT_IR_OUTPUT_DIR is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	ts := strings.TrimSpace(time.Now().Format(c.TimestampFormat))
	if ts == "" {
		return fmt.Errorf("TIMESTAMP_FORMAT %q formats to an empty string", c.TimestampFormat)
	}
	if strings.ContainsAny(ts, `/\`) {
		return fmt.Errorf("TIMESTAMP_FORMAT %q produces path separators", c.TimestampFormat)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
