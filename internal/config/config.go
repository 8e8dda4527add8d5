// Package config is the external configuration loader: it reads a YAML
// file naming server addresses, backend plugin names and paths, connection
// limits and the default distribution stripe size, and layers environment
// variable overrides on top via a getenv/mustGetenv pair for the few
// values that come from the environment instead of the file (TRACE).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the parsed external configuration, kept deliberately thin per
// SPEC_FULL.md's ambient stack section — it is a collaborator that produces
// a Pool Config and backend selections, not a general settings system.
type Config struct {
	Servers struct {
		Object []string `yaml:"object"`
		KV     []string `yaml:"kv"`
		DB     []string `yaml:"db"`
	} `yaml:"servers"`

	Object struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"object"`
	KV struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"kv"`
	DB struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"db"`

	MaxConnections int    `yaml:"max-connections"`
	StripeSize     uint64 `yaml:"stripe-size"`
}

// Load reads and parses path, applying defaults for any zero-valued field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 8
	}
	if c.StripeSize == 0 {
		c.StripeSize = 4 * 1024 * 1024
	}
}

// ExpandPath substitutes "{PORT}" in a backend data path (object.path,
// kv.path, db.path) with port.
func ExpandPath(path string, port int) string {
	return strings.ReplaceAll(path, "{PORT}", fmt.Sprintf("%d", port))
}

// getenv reads an environment variable, returning def if unset.
func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// mustGetenv reads a required environment variable, exiting the process if
// it's unset — used only by cmd/ entry points, never by library code.
func mustGetenv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		fmt.Fprintf(os.Stderr, "config: required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return v
}

// Getenv is the exported form of getenv, used by cmd/ entry points.
func Getenv(key, def string) string { return getenv(key, def) }

// MustGetenv is the exported form of mustGetenv, used by cmd/ entry points.
func MustGetenv(key string) string { return mustGetenv(key) }

// TraceBackend reads TRACE, defaulting to "off".
func TraceBackend() string { return getenv("TRACE", "off") }
