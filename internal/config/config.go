package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tether configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	LLM      LLMConfig      `yaml:"llm"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Drift    DriftConfig    `yaml:"drift"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CacheConfig struct {
	Backend       string `yaml:"backend"` // "memory", "redis", "none"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

// LLMConfig selects the pattern classifier. An empty provider uses the
// built-in heuristic classifier.
type LLMConfig struct {
	Provider     string `yaml:"provider"` // "", "anthropic", "ollama"
	Model        string `yaml:"model"`
	OllamaURL    string `yaml:"ollama_url"`
	AnthropicKey string `yaml:"anthropic_key"`
}

// Thresholds are the minimum confidences per alert type.
type Thresholds struct {
	ValueContradiction float64 `yaml:"value_contradiction"`
	GoalDrift          float64 `yaml:"goal_drift"`
	PatternDetected    float64 `yaml:"pattern_detected"`
	NeglectedArea      float64 `yaml:"neglected_area"`
}

type AlertsConfig struct {
	MaxPerDay  int        `yaml:"max_per_day"`
	Timezone   string     `yaml:"timezone"`
	Thresholds Thresholds `yaml:"thresholds"`
}

// DriftConfig holds the two independent cache policies of the drift monitor.
type DriftConfig struct {
	RealtimeTTL time.Duration `yaml:"realtime_ttl"`
	AlertsTTL   time.Duration `yaml:"alerts_ttl"`
}

type MetricsConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Cache: CacheConfig{
			Backend: "memory",
			Prefix:  "tether",
		},
		Alerts: AlertsConfig{
			MaxPerDay: 5,
			Timezone:  "UTC",
			Thresholds: Thresholds{
				ValueContradiction: 0.7,
				GoalDrift:          0.75,
				PatternDetected:    0.65,
				NeglectedArea:      0.8,
			},
		},
		Drift: DriftConfig{
			RealtimeTTL: 5 * time.Minute,
			AlertsTTL:   30 * time.Minute,
		},
		Metrics: MetricsConfig{
			HistoryLimit: 52,
		},
	}
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TETHER_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("TETHER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("TETHER_REDIS_ADDR"); v != "" {
		c.Cache.Backend = "redis"
		c.Cache.RedisAddr = v
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
		c.LLM.AnthropicKey = key
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Alerts.MaxPerDay < 1 {
		return fmt.Errorf("alerts.max_per_day must be >= 1, got %d", c.Alerts.MaxPerDay)
	}
	if _, err := time.LoadLocation(c.Alerts.Timezone); err != nil {
		return fmt.Errorf("alerts.timezone: %w", err)
	}
	if c.Drift.RealtimeTTL < 0 || c.Drift.AlertsTTL < 0 {
		return fmt.Errorf("drift ttls must not be negative")
	}
	if c.Metrics.HistoryLimit < 1 {
		return fmt.Errorf("metrics.history_limit must be >= 1, got %d", c.Metrics.HistoryLimit)
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr required for redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// Location returns the timezone that bounds the daily alert cap.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Alerts.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
