package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int           `yaml:"port"`
		MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
		ReadTimeout    time.Duration `yaml:"readTimeout"`
		WriteTimeout   time.Duration `yaml:"writeTimeout"`
		AllowedOrigins []string      `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // postgres | mysql | sqlite
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Path     string `yaml:"path"` // sqlite file
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"database"`

	Model struct {
		Provider  string        `yaml:"provider"` // openai | stub
		Name      string        `yaml:"name"`
		BaseURL   string        `yaml:"baseURL"`
		APIKeyEnv string        `yaml:"apiKeyEnv"`
		MaxTokens int           `yaml:"maxTokens"`
		Detail    string        `yaml:"detail"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"model"`

	Auth struct {
		JWTSecret   string            `yaml:"jwtSecret"`
		JWTAudience string            `yaml:"jwtAudience"`
		APIKeys     map[string]string `yaml:"apiKeys"` // user id -> key
	} `yaml:"auth"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	RabbitMQ struct {
		URL        string `yaml:"url"`
		Exchange   string `yaml:"exchange"`
		RoutingKey string `yaml:"routingKey"`
	} `yaml:"rabbitmq"`

	Analysis struct {
		Persistence  *bool  `yaml:"persistence"`
		DefaultShape string `yaml:"defaultShape"`
		Demo         struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"demo"`
	} `yaml:"analysis"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load baca file config.yaml, ${VAR} diganti dari environment
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// model calls bisa lama
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "medimage.db"
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "openai"
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Analysis.DefaultShape == "" {
		c.Analysis.DefaultShape = "structured"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "medimage"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "analysis.completed"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q not supported", c.Database.Driver))
	}
	switch c.Model.Provider {
	case "openai", "stub":
	default:
		errs = append(errs, fmt.Errorf("model.provider %q not supported", c.Model.Provider))
	}
	switch c.Analysis.DefaultShape {
	case "structured", "free_text", "freetext", "text":
	default:
		errs = append(errs, fmt.Errorf("analysis.defaultShape %q not supported", c.Analysis.DefaultShape))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rateLimit values must not be negative"))
	}
	return errors.Join(errs...)
}

// PersistenceEnabled defaults to true when the key is absent.
func (c *Config) PersistenceEnabled() bool {
	return c.Analysis.Persistence == nil || *c.Analysis.Persistence
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	switch c.Database.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "sqlite":
		return c.Database.Path
	default:
		return c.PostgresDSN()
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN dalam format URL, cocok juga untuk Supabase
func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + strings.TrimPrefix(c.Database.Name, "/"),
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}
