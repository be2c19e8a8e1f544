package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDetectionURL = "https://api-inference.huggingface.co/models/facebook/detr-resnet-50"

	// placeholderToken is the value shipped in the sample .env file.
	placeholderToken = "huggingface_token"
)

var productionOrigins = []string{
	"https://inventorylens-demo.onrender.com",
	"https://inventoryanalysis-ai.netlify.app",
}

type Config struct {
	HTTPPort       string
	GRPCPort       string
	DetectionURL   string
	HFToken        string
	AllowedOrigins []string
	NetlifyDomain  string

	MaxUploadSizeMB int
	LogLevel        string
	Environment     string
}

// fileConfig mirrors the optional YAML file named by CONFIG_FILE.
type fileConfig struct {
	HTTPPort        string   `yaml:"http_port"`
	GRPCPort        string   `yaml:"grpc_port"`
	DetectionURL    string   `yaml:"detection_url"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	NetlifyDomain   string   `yaml:"netlify_domain"`
	MaxUploadSizeMB int      `yaml:"max_upload_size_mb"`
	LogLevel        string   `yaml:"log_level"`
	Environment     string   `yaml:"environment"`
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev" || c.Environment == "local"
}

// TokenConfigured reports whether outbound calls carry an Authorization header.
func (c *Config) TokenConfigured() bool {
	return c.HFToken != ""
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

func LoadConfig() (*Config, error) {
	// Загрузка .env файла (если существует)
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}

	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", orDefault(file.HTTPPort, "8000")),
		GRPCPort:        getEnv("GRPC_PORT", orDefault(file.GRPCPort, "50051")),
		DetectionURL:    getEnv("DETECTION_URL", orDefault(file.DetectionURL, DefaultDetectionURL)),
		HFToken:         getEnv("HUGGINGFACE_API_KEY", ""),
		NetlifyDomain:   getEnv("NETLIFY_DOMAIN", orDefault(file.NetlifyDomain, "inventoryanalysis-ai")),
		MaxUploadSizeMB: getEnvInt("MAX_UPLOAD_SIZE_MB", orDefaultInt(file.MaxUploadSizeMB, 50)),
		LogLevel:        getEnv("LOG_LEVEL", orDefault(file.LogLevel, "INFO")),
		Environment:     getEnv("ENVIRONMENT", orDefault(file.Environment, "production")),
	}

	if cfg.HFToken == placeholderToken {
		cfg.HFToken = ""
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	} else if len(file.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = file.AllowedOrigins
	} else {
		cfg.AllowedOrigins = defaultOrigins(cfg.NetlifyDomain)
	}

	if cfg.MaxUploadSizeMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE_MB must be positive, got %d", cfg.MaxUploadSizeMB)
	}

	return cfg, nil
}

func defaultOrigins(netlifyDomain string) []string {
	origins := append([]string(nil), productionOrigins...)
	if netlifyDomain != "" {
		origins = append(origins,
			fmt.Sprintf("https://%s.netlify.app", netlifyDomain),
			fmt.Sprintf("https://deploy-preview-*--%s.netlify.app", netlifyDomain),
		)
	}
	return origins
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func orDefault(v, defaultVal string) string {
	if v != "" {
		return v
	}
	return defaultVal
}

func orDefaultInt(v, defaultVal int) int {
	if v != 0 {
		return v
	}
	return defaultVal
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
