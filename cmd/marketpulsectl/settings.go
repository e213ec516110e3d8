package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const defaultServer = "http://localhost:8080"

// settings are the connection parameters shared by every command.
type settings struct {
	Server      string `toml:"server"`
	Token       string `toml:"token"`
	Owner       string `toml:"owner"`
	OwnerHeader string `toml:"owner_header"`
}

// defaultSettingsPath honours XDG_CONFIG_HOME.
func defaultSettingsPath() string {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return filepath.Join(base, "marketpulse", "ctl.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "marketpulse", "ctl.toml")
}

// loadSettings reads path when it exists. An explicit path that is missing is
// an error; the default path is optional.
func loadSettings(path string, explicit bool) (settings, error) {
	s := settings{Server: defaultServer}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := toml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if strings.TrimSpace(s.Server) == "" {
		s.Server = defaultServer
	}
	return s, nil
}

// applyEnv overrides file settings with MARKETPULSE_* variables.
func (s *settings) applyEnv() {
	for name, dst := range map[string]*string{
		"MARKETPULSE_SERVER":       &s.Server,
		"MARKETPULSE_TOKEN":        &s.Token,
		"MARKETPULSE_OWNER":        &s.Owner,
		"MARKETPULSE_OWNER_HEADER": &s.OwnerHeader,
	} {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
}
