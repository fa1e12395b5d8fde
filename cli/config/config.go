// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package config manages nudgectl's named server contexts. A context pairs
// a BundleNudge server URL with an operator token and, optionally, the app
// most commands on that server are about.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// configFile is the default location under $HOME; NUDGECTL_CONFIG overrides
// the full path.
const configFile = ".config/nudgectl.yaml"

type Config struct {
	ActiveContext string `yaml:"active_context"`
	Contexts      map[string]Context
}

type Context struct {
	URL   string
	Token string
	// DefaultApp is the app id app-scoped commands fall back to when no
	// --app flag or app-id argument is given.
	DefaultApp string `yaml:"default_app,omitempty"`
}

// LoadConfig loads the CLI configuration from the path. If the path is empty,
// it uses the default config path.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = defaultPath(); err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// GetContext retrieves the context by name. If name is empty, it returns the
// configured active context.
func (c *Config) GetContext(name string) (*Context, error) {
	if name == "" {
		if name = c.ActiveContext; name == "" {
			return nil, fmt.Errorf("no default context set, run 'nudgectl login' or pass --context")
		}
	}

	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context '%s' not found", name)
	}
	if ctx.URL == "" {
		return nil, fmt.Errorf("context '%s' has no URL configured", name)
	}
	if ctx.Token == "" {
		return nil, fmt.Errorf("context '%s' has no token configured", name)
	}
	return &ctx, nil
}

// SetContext adds or replaces a named context, optionally making it the
// active one.
func (c *Config) SetContext(name string, ctx Context, makeActive bool) {
	if c.Contexts == nil {
		c.Contexts = make(map[string]Context)
	}
	c.Contexts[name] = ctx
	if makeActive {
		c.ActiveContext = name
	}
}

// Save writes the configuration. Tokens live in this file, hence 0600.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		if path, err = defaultPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func defaultPath() (string, error) {
	if path := os.Getenv("NUDGECTL_CONFIG"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFile), nil
}
