// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".ace"
	defaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Config is the engine-wide operations settings file at .ace/project.yaml
// (spec.md §4.14). It is deliberately separate from policy.toml: this file
// governs how the engine runs, policy.toml governs what it decides.
type Config struct {
	Version    string        `yaml:"version"`
	ProjectID  string        `yaml:"project_id"`
	Workers    int           `yaml:"workers"`
	IgnoreFile string        `yaml:"ignore_file"`
	Languages  []string      `yaml:"languages"`
	Cache      CacheConfig   `yaml:"cache"`
	Journal    JournalConfig `yaml:"journal"`
}

// CacheConfig controls the detector result cache's lifetime.
type CacheConfig struct {
	TTL string `yaml:"ttl"` // parsed with time.ParseDuration, e.g. "24h"
}

// JournalConfig is carried in project.yaml, but BlobDir is not read by the
// engine: the journal writes pre-images that exceed the inline cap to a
// blobs/ directory beside its own file (.ace/journals/blobs).
type JournalConfig struct {
	BlobDir string `yaml:"blob_dir"`
}

// DefaultConfig returns sensible defaults for a freshly-initialized
// project, mirroring the one-language-at-a-time bundled parser support.
func DefaultConfig(projectID string) *Config {
	return &Config{
		Version:    configVersion,
		ProjectID:  projectID,
		Workers:    4,
		IgnoreFile: ".aceignore",
		Languages:  []string{"go", "python", "javascript", "typescript"},
		Cache:      CacheConfig{TTL: "24h"},
		Journal:    JournalConfig{BlobDir: filepath.Join(defaultConfigDir, "blobs")},
	}
}

// CacheTTL parses Cache.TTL, falling back to 24h for an empty or malformed
// value rather than failing a run over a cosmetic config typo.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoadConfig loads .ace/project.yaml from configPath, or discovers it by
// walking up from the working directory when configPath is empty. The
// ACE_CONFIG_PATH environment variable takes precedence over discovery,
// mirroring the teacher CLI's override convention.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("ACE_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, &Error{Kind: KindIOError, Reason: "read config", Err: fmt.Errorf("read %s: %w", configPath, err)}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Kind: KindUnspecified, Reason: "config parse", Err: fmt.Errorf("parse %s: %w", configPath, err)}
	}
	if cfg.Version != configVersion {
		return nil, &Error{Kind: KindUnspecified, Reason: "config version", Err: fmt.Errorf("%s: unsupported config version %q (want %q)", configPath, cfg.Version, configVersion)}
	}
	return &cfg, nil
}

// SaveConfig writes cfg to configPath as YAML, creating the containing
// directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return &Error{Kind: KindIOError, Reason: "marshal config", Err: err}
	}
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &Error{Kind: KindIOError, Reason: "mkdir config dir", Err: err}
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return &Error{Kind: KindIOError, Reason: "write config", Err: err}
	}
	return nil
}

// ConfigPath returns <dir>/.ace/project.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// ConfigDir returns <dir>/.ace.
func ConfigDir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

// findConfigFile walks up from the working directory looking for
// .ace/project.yaml, stopping at the filesystem root.
func findConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", &Error{Kind: KindIOError, Reason: "getwd", Err: err}
	}
	for {
		candidate := ConfigPath(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &Error{Kind: KindIOError, Reason: "config not found", Err: fmt.Errorf("no %s found above %s", filepath.Join(defaultConfigDir, defaultConfigFile), dir)}
		}
		dir = parent
	}
}
