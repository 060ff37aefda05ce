// Package config provides YAML-based configuration loading for the Kosuke core.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Kosuke configuration, loaded from config.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Docker   DockerConfig   `yaml:"docker"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	GitHub   GitHubConfig   `yaml:"github"`
	Slack    SlackConfig    `yaml:"slack"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig holds connection settings for the relational store.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RedisConfig holds connection settings for the durable job queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DockerConfig holds container runtime settings.
type DockerConfig struct {
	Host    string `yaml:"host"` // empty = environment defaults
	Network string `yaml:"network"`
	Image   string `yaml:"image"`
}

// SandboxConfig holds per-sandbox defaults.
type SandboxConfig struct {
	BaseDomain          string `yaml:"base_domain"`
	InternalPort        int    `yaml:"internal_port"`
	ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds"`
	Workdir             string `yaml:"workdir"`
}

// ProbeTimeout returns the health probe timeout as a duration.
func (s SandboxConfig) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSeconds) * time.Second
}

// GitHubConfig holds defaults for the source-control provider. Tokens are
// supplied per-call and never stored here.
type GitHubConfig struct {
	BaseBranch string `yaml:"base_branch"`
}

// SlackConfig holds best-effort notification settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Database == "" {
		c.Database.Database = "kosuke"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Docker.Network == "" {
		c.Docker.Network = "kosuke"
	}
	if c.Docker.Image == "" {
		c.Docker.Image = "kosuke/sandbox:latest"
	}
	if c.Sandbox.InternalPort == 0 {
		c.Sandbox.InternalPort = 3000
	}
	if c.Sandbox.ProbeTimeoutSeconds == 0 {
		c.Sandbox.ProbeTimeoutSeconds = 2
	}
	if c.Sandbox.Workdir == "" {
		c.Sandbox.Workdir = "/var/lib/kosuke/sandboxes"
	}
	if c.GitHub.BaseBranch == "" {
		c.GitHub.BaseBranch = "main"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Sandbox.BaseDomain == "" {
		errs = append(errs, "sandbox.base_domain is required")
	}
	if c.Sandbox.ProbeTimeoutSeconds < 0 {
		errs = append(errs, "sandbox.probe_timeout_seconds must not be negative")
	}
	if c.Redis.DB < 0 {
		errs = append(errs, "redis.db must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
