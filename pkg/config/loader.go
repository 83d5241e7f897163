package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the expected file inside the config directory.
const ConfigFileName = "wayfarer.yaml"

// Initialize loads, merges, and validates configuration.
//
// Steps performed:
//  1. Read wayfarer.yaml from configDir (missing file → built-in defaults)
//  2. Expand environment variables
//  3. Parse YAML
//  4. Merge user config over built-in defaults
//  5. Validate
func Initialize(configDir string) (*Config, error) {
	cfg := defaults()

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("No config file found, using built-in defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		var user Config
		if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("Configuration initialized",
		"providers", len(cfg.Providers),
		"widgets", len(cfg.Widgets),
		"session_ttl", cfg.Session.TTL)
	return cfg, nil
}

// ExpandEnv expands environment variables in YAML content using Go template
// syntax ({{.VAR_NAME}}) to avoid collision with literal $ characters in
// URLs and regex patterns. Missing variables expand to empty string;
// validation catches required fields left empty. Malformed templates pass
// the content through untouched so plain YAML always parses.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
