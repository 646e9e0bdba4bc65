// Package config resolves the Messaging and Coordination Server's
// configuration (spec §6 "Configuration (environment)").
//
// Priority, highest wins:
//  1. CLI flags (--http, --host, --port)
//  2. Environment variables (DB_PATH, PORT, HOST, ROOM_TOKEN, RUNTIME_DIR)
//  3. An optional YAML config file pointed to by MCS_CONFIG_FILE
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the resolved process configuration.
type Config struct {
	DBPath     string
	Host       string
	Port       int
	RoomToken  string
	RuntimeDir string
	HTTP       bool
}

const (
	defaultHost = "127.0.0.1"
	defaultPort = 9400
	defaultDB   = "mcs.db"
)

// Flags carries CLI-flag overrides; a zero value means "not set by the user".
type Flags struct {
	HTTP bool
	Host string
	Port int
}

// Load resolves configuration from (in increasing priority) defaults,
// an optional YAML file, the environment, and CLI flags.
func Load(flags Flags) (*Config, error) {
	k := koanf.New(".")

	_ = k.Load(confmap.Provider(map[string]any{
		"HOST":    defaultHost,
		"PORT":    strconv.Itoa(defaultPort),
		"DB_PATH": defaultDB,
	}, "."), nil)

	if path := os.Getenv("MCS_CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := &Config{
		DBPath:     k.String("DB_PATH"),
		Host:       k.String("HOST"),
		Port:       k.Int("PORT"),
		RoomToken:  k.String("ROOM_TOKEN"),
		RuntimeDir: k.String("RUNTIME_DIR"),
	}

	if flags.Host != "" {
		cfg.Host = flags.Host
	}
	if flags.Port != 0 {
		cfg.Port = flags.Port
	}
	cfg.HTTP = flags.HTTP

	if cfg.DBPath == "" {
		cfg.DBPath = defaultDB
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}
