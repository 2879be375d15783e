// Package config resolves where shoal keeps its files and loads the
// optional user configuration.
//
// Paths follow the XDG base directory convention the shell itself uses:
// history under the data dir, configuration under the config dir. An absent
// config file is not an error — every field has a default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the user-tunable surface. All fields are optional; zero values
// fall back to the defaults below.
type Config struct {
	// HistoryFile is the local fish history file to sync.
	HistoryFile string `yaml:"history_file"`

	// DataDir holds the server-side store (history.db lives inside it).
	DataDir string `yaml:"data_dir"`

	// SSHCommand is the executable spawned to reach the remote host.
	SSHCommand string `yaml:"ssh_command"`

	// RemoteCommand is the command run on the remote host to serve one
	// sync session on its standard streams.
	RemoteCommand string `yaml:"remote_command"`
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields pure defaults. A present file is validated
// against the embedded schema and then strictly decoded — unknown fields
// (typos) are rejected rather than silently ignored.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		cfg.applyDefaults()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		// io.EOF means an empty file, which is a valid all-defaults config.
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HistoryFile == "" {
		c.HistoryFile = DefaultHistoryPath()
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.SSHCommand == "" {
		c.SSHCommand = "ssh"
	}
	if c.RemoteCommand == "" {
		c.RemoteCommand = "shoal serve"
	}
}

// StorePath is the SQLite database inside the data dir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// DefaultHistoryPath is fish's history file location:
// $XDG_DATA_HOME/fish/fish_history, else ~/.local/share/fish/fish_history.
func DefaultHistoryPath() string {
	return filepath.Join(dataHome(), "fish", "fish_history")
}

// DefaultDataDir is shoal's own data directory:
// $XDG_DATA_HOME/shoal, else ~/.local/share/shoal.
func DefaultDataDir() string {
	return filepath.Join(dataHome(), "shoal")
}

// DefaultConfigPath is $XDG_CONFIG_HOME/shoal/config.yaml, else
// ~/.config/shoal/config.yaml.
func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "shoal", "config.yaml")
	}
	return filepath.Join(home(), ".config", "shoal", "config.yaml")
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(home(), ".local", "share")
}

func home() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}
