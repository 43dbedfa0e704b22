package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Runtime
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	// Remote analysis backend
	BackendURL     string        `yaml:"backend_url"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	// Local shell server
	ShellPort   string        `yaml:"shell_port"`
	ShellSecret string        `yaml:"shell_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	FrontendURL string        `yaml:"frontend_url"`

	// Optional event fan-out
	RedisURL string `yaml:"redis_url"`

	// Document intake
	ExtractText bool `yaml:"extract_text"`
	MaxUploadMB int  `yaml:"max_upload_mb"`

	// Diagram
	ResolveWorkers int `yaml:"resolve_workers"`

	// Export
	ExportSink  string `yaml:"export_sink"`
	DownloadDir string `yaml:"download_dir"`
	GalleryDir  string `yaml:"gallery_dir"`
}

// Defaults returns the configuration used when neither a config file nor
// the environment says otherwise.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Env:            "development",
		LogLevel:       "info",
		BackendURL:     "http://localhost:8000",
		BackendTimeout: 0,
		ShellPort:      "8090",
		TokenTTL:       12 * time.Hour,
		FrontendURL:    "http://localhost:5173",
		ExtractText:    true,
		MaxUploadMB:    100,
		ResolveWorkers: 2,
		ExportSink:     "auto",
		DownloadDir:    filepath.Join(home, "Downloads"),
		GalleryDir:     filepath.Join(home, "Pictures", "Systems Maps"),
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally the environment (a .env file is honoured).
func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load without the .env step. An empty path skips the YAML overlay.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.BackendURL = strings.TrimRight(getEnvOrDefault("BACKEND_URL", cfg.BackendURL), "/")
	cfg.BackendTimeout = getEnvAsDurationOrDefault("BACKEND_TIMEOUT", cfg.BackendTimeout)
	cfg.ShellPort = getEnvOrDefault("SHELL_PORT", cfg.ShellPort)
	cfg.ShellSecret = getEnvOrDefault("SHELL_SECRET", cfg.ShellSecret)
	cfg.TokenTTL = getEnvAsDurationOrDefault("TOKEN_TTL", cfg.TokenTTL)
	cfg.FrontendURL = getEnvOrDefault("FRONTEND_URL", cfg.FrontendURL)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.ExtractText = getEnvAsBoolOrDefault("EXTRACT_TEXT", cfg.ExtractText)
	cfg.MaxUploadMB = getEnvAsIntOrDefault("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.ResolveWorkers = getEnvAsIntOrDefault("RESOLVE_WORKERS", cfg.ResolveWorkers)
	cfg.ExportSink = getEnvOrDefault("EXPORT_SINK", cfg.ExportSink)
	cfg.DownloadDir = getEnvOrDefault("DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.GalleryDir = getEnvOrDefault("GALLERY_DIR", cfg.GalleryDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL must not be empty")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("BACKEND_URL must be an http(s) URL, got %q", c.BackendURL)
	}
	switch c.ExportSink {
	case "auto", "download", "gallery", "clipboard":
	default:
		return fmt.Errorf("EXPORT_SINK must be one of auto, download, gallery, clipboard; got %q", c.ExportSink)
	}
	if c.ResolveWorkers < 1 {
		c.ResolveWorkers = 1
	}
	if c.MaxUploadMB < 1 {
		c.MaxUploadMB = 100
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
