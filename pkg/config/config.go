// Package config loads the JSON configuration that seeds a
// tunnel.ConnectRequest: the target host, an optional jump host, and the
// local listener ports.
//
// Configuration files use JSON format and support environment variable
// substitution using the standard $VAR or ${VAR} syntax.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the on-disk shape of a connect configuration.
type Config struct {
	Target HostConfig  `json:"target"`
	Jump   *HostConfig `json:"jump,omitempty"`

	SocksPort int `json:"socksPort,omitempty"`
	HTTPPort  int `json:"httpPort,omitempty"`

	// AutoSetSystemProxy is read and passed through; the core here never
	// touches OS proxy settings itself.
	AutoSetSystemProxy bool `json:"autoSetSystemProxy,omitempty"`

	KnownHostsPath string `json:"knownHostsPath,omitempty"`
}

// HostConfig is one SSH hop: the host to reach plus one authentication
// mode. UseKey is the explicit mode switch - true selects KeyPath/KeyPass,
// false selects Password - so the mode is always what the caller stated,
// never inferred from which of Password/KeyPath happens to be populated.
type HostConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username"`
	UseKey   bool   `json:"useKey,omitempty"`
	Password string `json:"password,omitempty"`
	KeyPath  string `json:"keyPath,omitempty"`
	KeyPass  string `json:"keyPassphrase,omitempty"`
}

const (
	defaultSSHPort   = 22
	defaultSocksPort = 10800
	defaultHTTPPort  = 10801
)

// Load reads, expands, parses and validates a configuration file, applying
// defaults for anything left unset.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("no config file specified")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	content := os.ExpandEnv(string(data))
	if err := json.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Target.Host == "" {
		return fmt.Errorf("target host is required")
	}
	if c.Target.Username == "" {
		return fmt.Errorf("target username is required")
	}
	if err := c.Target.validateAuth("target"); err != nil {
		return err
	}
	if c.Jump != nil {
		if c.Jump.Host == "" {
			return fmt.Errorf("jump host is required when jump is set")
		}
		// Jump username/password/key path may be empty - they fall back
		// to the target's at connect time, not here.
	}
	return nil
}

func (h HostConfig) validateAuth(label string) error {
	if h.Password != "" && h.KeyPath != "" {
		return fmt.Errorf("%s: specify either password or keyPath, not both", label)
	}
	if h.UseKey {
		if h.KeyPath == "" {
			return fmt.Errorf("%s: useKey is true but keyPath is empty", label)
		}
	} else if h.Password == "" {
		return fmt.Errorf("%s: password is required when useKey is false", label)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Target.Port == 0 {
		c.Target.Port = defaultSSHPort
	}
	if c.Jump != nil && c.Jump.Port == 0 {
		c.Jump.Port = defaultSSHPort
	}
	if c.SocksPort == 0 {
		c.SocksPort = defaultSocksPort
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = defaultHTTPPort
	}
}
