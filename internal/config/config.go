package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the VidForge server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Ark      ArkConfig      `yaml:"ark"`
	Engine   EngineConfig   `yaml:"engine"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type ArkConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	ModelID string        `yaml:"model_id"`
	Timeout time.Duration `yaml:"timeout"`
}

type EngineConfig struct {
	PollInterval           time.Duration `yaml:"poll_interval"`
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	DownloadTimeout        time.Duration `yaml:"download_timeout"`
	ArtifactDir            string        `yaml:"artifact_dir"`
}

// Load reads configuration with the precedence defaults < YAML file < environment,
// and returns a validated Config. path may be empty, in which case the file named
// by VIDFORGE_CONFIG_FILE is used if set; no file at all is fine.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
			Env:  "development",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Ark: ArkConfig{
			BaseURL: "https://ark.ap-southeast.bytepluses.com/api/v3",
			Timeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			PollInterval:           10 * time.Second,
			MaxConcurrentDownloads: 3,
			DownloadTimeout:        5 * time.Minute,
			ArtifactDir:            "videos",
		},
	}

	if path == "" {
		path = os.Getenv("VIDFORGE_CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envInt("VIDFORGE_PORT", c.Server.Port)
	c.Server.Env = envString("VIDFORGE_ENV", c.Server.Env)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)

	c.Ark.APIKey = envString("ARK_API_KEY", c.Ark.APIKey)
	c.Ark.BaseURL = envString("ARK_BASE_URL", c.Ark.BaseURL)
	c.Ark.ModelID = envString("ARK_MODEL_ID", c.Ark.ModelID)
	c.Ark.Timeout = envDuration("ARK_TIMEOUT", c.Ark.Timeout)

	c.Engine.PollInterval = envDuration("ENGINE_POLL_INTERVAL", c.Engine.PollInterval)
	c.Engine.MaxConcurrentDownloads = envInt("ENGINE_MAX_CONCURRENT_DOWNLOADS", c.Engine.MaxConcurrentDownloads)
	c.Engine.DownloadTimeout = envDurationSecs("ENGINE_DOWNLOAD_TIMEOUT_SECS", c.Engine.DownloadTimeout)
	c.Engine.ArtifactDir = envString("ENGINE_ARTIFACT_DIR", c.Engine.ArtifactDir)
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Ark.APIKey == "" {
		return fmt.Errorf("ARK_API_KEY is required")
	}
	if !strings.HasPrefix(c.Ark.BaseURL, "http://") && !strings.HasPrefix(c.Ark.BaseURL, "https://") {
		return fmt.Errorf("ARK_BASE_URL must start with http:// or https://, got %q", c.Ark.BaseURL)
	}

	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("ENGINE_POLL_INTERVAL must be positive, got %s", c.Engine.PollInterval)
	}
	if c.Engine.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("ENGINE_MAX_CONCURRENT_DOWNLOADS must be at least 1, got %d", c.Engine.MaxConcurrentDownloads)
	}
	if c.Engine.ArtifactDir == "" {
		return fmt.Errorf("ENGINE_ARTIFACT_DIR must not be empty")
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

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
