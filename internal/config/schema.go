package config

import "time"

// Config is the workspace configuration file's decoded shape: session
// lifecycle knobs and the LLM provider's default call options.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Session SessionConfig `yaml:"session" json:"session"`
	LLM     LLMConfig     `yaml:"llm" json:"llm"`
}

// SessionConfig bounds how long an idle session's actor stays resident
// and how many sessions/windows the runtime keeps warm.
type SessionConfig struct {
	TTLSeconds          int `yaml:"ttl_seconds" json:"ttl_seconds"`
	CacheCapacity       int `yaml:"cache_capacity" json:"cache_capacity"`
	WindowCacheCapacity int `yaml:"window_cache_capacity" json:"window_cache_capacity"`
}

// TTL returns Session.TTLSeconds as a time.Duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// LLMConfig carries the default call options passed to the provider's
// stream(messages, tools, options) interface for every new session.
type LLMConfig struct {
	BaseURL         string  `yaml:"base_url" json:"base_url"`
	Model           string  `yaml:"model" json:"model"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	MaxSteps        int     `yaml:"max_steps" json:"max_steps"`
	SystemPrompt    string  `yaml:"system_prompt" json:"system_prompt"`
}

// defaults fills zero-valued fields with the values a freshly initialized
// workspace config should carry, so a minimal or partially-migrated file
// still produces a runnable Config.
func (c *Config) defaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = 1800
	}
	if c.Session.CacheCapacity == 0 {
		c.Session.CacheCapacity = 64
	}
	if c.Session.WindowCacheCapacity == 0 {
		c.Session.WindowCacheCapacity = 256
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-5"
	}
	if c.LLM.MaxOutputTokens == 0 {
		c.LLM.MaxOutputTokens = 4096
	}
	if c.LLM.MaxSteps == 0 {
		c.LLM.MaxSteps = 8
	}
}
