package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"benchline/internal/autosave"
	"benchline/internal/domain"
	"benchline/internal/logging"
)

// Config models benchline.yml.
type Config struct {
	Shop struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"shop"`
	Autosave struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"autosave"`
	Departments struct {
		// Disabled departments start with their reduced requirement schema.
		Disabled []string `yaml:"disabled"`
	} `yaml:"departments"`
	Flags struct {
		Store string      `yaml:"store"`
		Redis RedisConfig `yaml:"redis"`
	} `yaml:"flags"`
	Storage  StorageConfig   `yaml:"storage"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Logging  logging.Config  `yaml:"logging"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Disk   struct {
		Dir     string `yaml:"dir"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"disk"`
	Minio struct {
		Endpoint       string `yaml:"endpoint"`
		AccessKey      string `yaml:"access_key"`
		SecretKey      string `yaml:"secret_key"`
		Bucket         string `yaml:"bucket"`
		UseSSL         bool   `yaml:"use_ssl"`
		PresignMinutes int    `yaml:"presign_minutes"`
	} `yaml:"minio"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

const (
	FlagStoreSQLite = "sqlite"
	FlagStoreRedis  = "redis"

	StorageDisk  = "disk"
	StorageMinio = "minio"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with bl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Shop.ID) == "" {
		return fmt.Errorf("config.shop.id is required")
	}
	if c.Autosave.IntervalSeconds < 0 {
		return fmt.Errorf("config.autosave.interval_seconds must not be negative")
	}
	for _, raw := range c.Departments.Disabled {
		if _, err := domain.ParseDepartment(raw); err != nil {
			return fmt.Errorf("config.departments.disabled: %w", err)
		}
	}
	switch c.Flags.Store {
	case "", FlagStoreSQLite:
	case FlagStoreRedis:
		if strings.TrimSpace(c.Flags.Redis.Addr) == "" {
			return fmt.Errorf("config.flags.redis.addr is required for the redis flag store")
		}
	default:
		return fmt.Errorf("config.flags.store must be sqlite or redis")
	}
	switch c.Storage.Driver {
	case "", StorageDisk:
	case StorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("config.storage.minio requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("config.storage.driver must be disk or minio")
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config.logging.level: %w", err)
	}
	return nil
}

// AutosaveInterval falls back to the two minute default when unset.
func (c *Config) AutosaveInterval() time.Duration {
	if c == nil || c.Autosave.IntervalSeconds <= 0 {
		return autosave.DefaultInterval
	}
	return time.Duration(c.Autosave.IntervalSeconds) * time.Second
}

// DisabledDepartments returns the parsed department keys, skipping invalid ones.
func (c *Config) DisabledDepartments() []domain.Department {
	if c == nil {
		return nil
	}
	var out []domain.Department
	for _, raw := range c.Departments.Disabled {
		if d, err := domain.ParseDepartment(raw); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "benchline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(shopID string) string {
	return fmt.Sprintf(defaultTemplate, shopID)
}

// Default returns the default Config struct for a shop.
func Default(shopID string) *Config {
	cfg, err := FromYAML([]byte(GenerateDefault(shopID)))
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `shop:
  id: %s

autosave:
  interval_seconds: 120

departments:
  disabled: []

flags:
  store: sqlite
  redis:
    addr: ""

storage:
  driver: disk
  disk:
    dir: .benchline/uploads
    base_url: /files

logging:
  format: console
  level: info

webhooks: []
`
