// Package config loads named export targets: API client credentials for
// client-credentials downloads.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "ordercloud-targets.json"

var (
	// ErrConfigNotFound is returned when the targets file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrTargetNotFound is returned when no target has the requested name.
	ErrTargetNotFound = errors.New("target not found")
)

// Target is one marketplace API client.
type Target struct {
	Name              string `json:"Name" yaml:"Name"`
	OrderCloudBaseURL string `json:"OrderCloudBaseUrl" yaml:"OrderCloudBaseUrl"`
	APIClientID       string `json:"ApiClientId" yaml:"ApiClientId"`
	APIClientSecret   string `json:"ApiClientSecret" yaml:"ApiClientSecret"`
}

// Validate checks that the target can be used for authentication.
func (t Target) Validate() error {
	var missing []string
	if t.OrderCloudBaseURL == "" {
		missing = append(missing, "OrderCloudBaseUrl")
	}
	if t.APIClientID == "" {
		missing = append(missing, "ApiClientId")
	}
	if t.APIClientSecret == "" {
		missing = append(missing, "ApiClientSecret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("target %q is missing %s", t.Name, strings.Join(missing, ", "))
	}
	return nil
}

// ResolvePath returns path made absolute, or DefaultFileName in the
// working directory when path is empty.
func ResolvePath(path string) (string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("working directory: %w", err)
		}
		return filepath.Join(wd, DefaultFileName), nil
	}
	return filepath.Abs(path)
}

// LoadAll reads every target from path. Files ending in .yml or .yaml are
// parsed as YAML, anything else as JSON.
func LoadAll(path string) ([]Target, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, resolved)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resolved, err)
	}

	var targets []Target
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &targets)
	default:
		err = json.Unmarshal(data, &targets)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resolved, err)
	}
	return targets, nil
}

// Load returns the target named name from path.
func Load(name, path string) (*Target, error) {
	targets, err := LoadAll(path)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.Name == name {
			if err := t.Validate(); err != nil {
				return nil, err
			}
			return &t, nil
		}
		names = append(names, t.Name)
	}
	return nil, fmt.Errorf("%w: %q not in configuration. Available targets: %s",
		ErrTargetNotFound, name, strings.Join(names, ", "))
}
