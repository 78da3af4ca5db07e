// Package config reads and writes the per-user configuration in the
// user's home directory: identity used for deposition metadata, and the
// API tokens for each remote service. Tokens never enter the manifest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFilename holds the user identity, in $HOME.
	ConfigFilename = ".scidataflow_config"
	// AuthKeysFilename maps remote kind to API token, in $HOME.
	AuthKeysFilename = ".scidataflow_authkeys.yml"
)

// User is the identity attached to created depositions.
type User struct {
	Name        string `yaml:"name"`
	Email       string `yaml:"email,omitempty"`
	Affiliation string `yaml:"affiliation,omitempty"`
}

// UserConfig is the on-disk user configuration document.
type UserConfig struct {
	User User `yaml:"user"`
}

func homePath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, name), nil
}

// LoadUser reads the user config. A missing file returns an error telling
// the user to run sdf config first.
func LoadUser() (*UserConfig, error) {
	path, err := homePath(ConfigFilename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no config found at %s; set one with: sdf config --name <NAME> [--email <EMAIL> --affiliation <AFFILIATION>]", path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveUser writes the user config, creating the file if absent. Name must
// be non-empty.
func SaveUser(cfg *UserConfig) error {
	if cfg.User.Name == "" {
		return fmt.Errorf("config name not set, and cannot be empty")
	}
	path, err := homePath(ConfigFilename)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// AuthKeys maps lowercase remote kind to API token.
type AuthKeys struct {
	keys map[string]string
}

// LoadAuthKeys reads the auth-key file; a missing file yields an empty
// key set.
func LoadAuthKeys() (*AuthKeys, error) {
	path, err := homePath(AuthKeysFilename)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading auth keys: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parsing auth keys %s: %w", path, err)
	}
	return &AuthKeys{keys: keys}, nil
}

// Get returns the token for a remote kind. The error names the file so
// users can repair it by hand.
func (a *AuthKeys) Get(kind string) (string, error) {
	token, ok := a.keys[strings.ToLower(kind)]
	if !ok || token == "" {
		return "", fmt.Errorf("no %s access token found; add a line to ~/%s like:\n%s: <TOKEN>",
			kind, AuthKeysFilename, strings.ToLower(kind))
	}
	return token, nil
}

// Set stores a token in memory. Use Save to persist.
func (a *AuthKeys) Set(kind, token string) {
	a.keys[strings.ToLower(kind)] = token
}

// Save writes the key file with owner-only permissions.
func (a *AuthKeys) Save() error {
	path, err := homePath(AuthKeysFilename)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(a.keys)
	if err != nil {
		return fmt.Errorf("serializing auth keys: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth keys: %w", err)
	}
	return nil
}
