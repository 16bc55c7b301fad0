package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins []string      `mapstructure:"-"`
	Env            string        `mapstructure:"app_env"`

	DatabaseURL string `mapstructure:"database_url"`

	Silk Silk `mapstructure:"silk"`
}

// Silk controls what the collector records and how long it is kept.
type Silk struct {
	InterceptPercent     float64       `mapstructure:"intercept_percent"`
	MaxRequestBodyBytes  int64         `mapstructure:"max_request_body_bytes"`
	MaxResponseBodyBytes int64         `mapstructure:"max_response_body_bytes"`
	IgnorePaths          []string      `mapstructure:"-"`
	MaxRecordedRequests  int           `mapstructure:"max_recorded_requests"`
	Retention            time.Duration `mapstructure:"retention"`
	Meta                 bool          `mapstructure:"meta"`
}

// FromEnv loads configuration from defaults, an optional silk.yaml in the working
// directory and the environment, in increasing order of precedence.
func FromEnv() (Config, error) {
	return Load(".")
}

// Load is FromEnv with an explicit directory to search for silk.yaml.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("max_body_bytes", 1048576)
	v.SetDefault("allowed_origins", "")
	v.SetDefault("app_env", "development")
	v.SetDefault("database_url", "sqlite:silk.db")
	v.SetDefault("silk.intercept_percent", 100.0)
	v.SetDefault("silk.max_request_body_bytes", 65536)
	v.SetDefault("silk.max_response_body_bytes", 65536)
	v.SetDefault("silk.ignore_paths", "/healthz,/readyz,/debug/vars")
	v.SetDefault("silk.max_recorded_requests", 10000)
	v.SetDefault("silk.retention", "0s")
	v.SetDefault("silk.meta", false)

	v.AddConfigPath(path)
	v.SetConfigName("silk")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.AllowedOrigins = parseCSV(v.GetString("allowed_origins"))
	cfg.Silk.IgnorePaths = parseCSV(v.GetString("silk.ignore_paths"))

	// Default to permissive CORS in non-production if not explicitly configured.
	if len(cfg.AllowedOrigins) == 0 && cfg.Env != "production" {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Silk.InterceptPercent < 0 {
		cfg.Silk.InterceptPercent = 0
	}
	if cfg.Silk.InterceptPercent > 100 {
		cfg.Silk.InterceptPercent = 100
	}

	return cfg, nil
}

func parseCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
