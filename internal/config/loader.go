// Package config loads and saves the workspace configuration file: a
// versioned JSON document under a well-known path in the workspace
// directory, migrated forward on load and written back atomically.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// FileName is the workspace config file's well-known name.
const FileName = "config.json"

// Load reads and decodes the workspace config at path, migrating it to
// CurrentVersion if it declares an older one. A missing file returns a
// fresh default Config rather than an error, matching a brand-new
// workspace that hasn't been configured yet.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := &Config{}
		cfg.defaults()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var rawMap map[string]any
	if err := json5.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	migrated, err := migrateToCurrent(rawMap)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg, err := decodeStrict(migrated)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}

// decodeStrict rejects unknown fields by round-tripping the raw map
// through YAML (a superset of JSON's object model) and decoding with
// KnownFields(true), since encoding/json has no equivalent strict mode.
func decodeStrict(raw map[string]any) (*Config, error) {
	buf, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("unknown or malformed field: %w", err)
	}
	var extra struct{}
	if err := dec.Decode(&extra); err == nil {
		return nil, fmt.Errorf("unexpected trailing document")
	}
	return &cfg, nil
}

// Save writes cfg to path as formatted JSON, creating parent directories
// as needed, via write-temp-then-rename so a crash mid-write never
// leaves a truncated config file behind. Valid JSON is valid JSON5, so
// writing plain encoding/json output keeps the file readable by both this
// loader and any strict JSON consumer.
func Save(path string, cfg *Config) error {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	buf, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
