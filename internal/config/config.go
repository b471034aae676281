// Package config loads the gateway's YAML configuration and applies defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shariqriazz/copilotgate/internal/auth"
	"gopkg.in/yaml.v3"
)

// Default provider endpoints. These follow the GitHub device-authorization
// flow; all of them can be overridden for compatible authorization servers.
const (
	DefaultDeviceCodeURL = "https://github.com/login/device/code"
	DefaultTokenURL      = "https://github.com/login/oauth/access_token"
	DefaultAPIBaseURL    = "https://api.githubcopilot.com"
	DefaultClientID      = "Iv1.b507a08c87ecfe98"
	DefaultProviderName  = "copilot"
)

// Config is the root gateway configuration.
type Config struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	AuthDir  string         `yaml:"auth-dir"`
	Provider ProviderConfig `yaml:"provider"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig describes the upstream provider and its authorization server.
type ProviderConfig struct {
	Name          string   `yaml:"name"`
	ClientID      string   `yaml:"client-id"`
	DeviceCodeURL string   `yaml:"device-code-url"`
	TokenURL      string   `yaml:"token-url"`
	APIBaseURL    string   `yaml:"api-base-url"`
	Scopes        []string `yaml:"scopes"`
	// PAT, when set, synthesizes a personal-access-token credential directly
	// from configuration without any login flow.
	PAT string `yaml:"pat"`
}

// LoggingConfig controls log level and optional rotating file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Load reads the YAML config at path. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if !os.IsNotExist(errRead) {
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	} else if errDecode := yaml.Unmarshal(data, cfg); errDecode != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errDecode)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 4141
	}
	if c.AuthDir == "" {
		c.AuthDir = defaultAuthDir()
	}
	p := &c.Provider
	if p.Name == "" {
		p.Name = DefaultProviderName
	}
	if p.ClientID == "" {
		p.ClientID = DefaultClientID
	}
	if p.DeviceCodeURL == "" {
		p.DeviceCodeURL = DefaultDeviceCodeURL
	}
	if p.TokenURL == "" {
		p.TokenURL = DefaultTokenURL
	}
	if p.APIBaseURL == "" {
		p.APIBaseURL = DefaultAPIBaseURL
	}
	if len(p.Scopes) == 0 {
		p.Scopes = []string{"read:user"}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
}

// Endpoints converts the provider block into the auth package's endpoint set.
func (p *ProviderConfig) Endpoints() auth.Endpoints {
	return auth.Endpoints{
		DeviceCodeURL: p.DeviceCodeURL,
		TokenURL:      p.TokenURL,
		APIBaseURL:    p.APIBaseURL,
		Scopes:        p.Scopes,
	}
}

// SynthesizeCredential creates a PAT credential from configuration, or nil
// when no PAT is configured.
func (c *Config) SynthesizeCredential() *auth.Credential {
	token := strings.TrimSpace(c.Provider.PAT)
	if token == "" {
		return nil
	}
	return &auth.Credential{
		Kind:        auth.KindPAT,
		AccessToken: token,
		TokenType:   "bearer",
	}
}

func defaultAuthDir() string {
	home, errHome := os.UserHomeDir()
	if errHome != nil {
		return ".copilotgate"
	}
	return filepath.Join(home, ".copilotgate")
}
