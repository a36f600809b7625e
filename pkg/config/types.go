package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent keepsake configuration stored as config.toml
// in the .keepsake/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	API       APIConfig       `toml:"api"`
	Memory    MemoryConfig    `toml:"memory"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Extract   ExtractConfig   `toml:"extract"`
	Ingest    IngestConfig    `toml:"ingest"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Learning  LearningConfig  `toml:"learning"`
	Events    EventsConfig    `toml:"events"`
}

// StorageConfig holds paths for local persistence.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`

	// RawExportDir is where verbatim export payloads are retained so a
	// later re-chunk pass never has to re-fetch the source.
	RawExportDir string `toml:"raw_export_dir,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// MemoryConfig holds memory store settings.
type MemoryConfig struct {
	Provider   string `toml:"provider,omitempty"` // sqlitevec | postgres | qdrant | inmemory
	Target     string `toml:"target,omitempty"`   // conn string / URL for remote providers
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider string `toml:"provider,omitempty"` // ollama | openai
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// ExtractConfig holds fact-extraction LLM settings.
type ExtractConfig struct {
	Provider string `toml:"provider,omitempty"` // openai | anthropic | ollama
	Model    string `toml:"model,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
}

// IngestConfig holds import pipeline settings.
type IngestConfig struct {
	Concurrency  uint `toml:"concurrency,omitempty"`
	BatchDelayMs uint `toml:"batch_delay_ms,omitempty"`
}

// RetrievalConfig holds retrieval engine settings.
type RetrievalConfig struct {
	MaxChunks  int     `toml:"max_chunks,omitempty"`
	ChunkFloor float32 `toml:"chunk_floor,omitempty"`
	FactFloor  float32 `toml:"fact_floor,omitempty"`
}

// LearningConfig holds fact learner settings.
type LearningConfig struct {
	ConfidenceFloor float32 `toml:"confidence_floor,omitempty"`
	RecentFacts     int     `toml:"recent_facts,omitempty"`
}

// EventsConfig holds event stream publisher settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"` // nop | kafka
	Brokers  string `toml:"brokers,omitempty"`  // comma-separated broker list
	Topic    string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.raw_export_dir": {
		get: func(c *Config) string { return c.Storage.RawExportDir },
		set: func(c *Config, v string) error { c.Storage.RawExportDir = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"memory.provider": {
		get: func(c *Config) string { return c.Memory.Provider },
		set: func(c *Config, v string) error { c.Memory.Provider = v; return nil },
	},
	"memory.target": {
		get: func(c *Config) string { return c.Memory.Target },
		set: func(c *Config, v string) error { c.Memory.Target = v; return nil },
	},
	"memory.dimensions": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Memory.Dimensions), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("memory.dimensions must be a positive integer: %w", err)
			}
			c.Memory.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"extract.provider": {
		get: func(c *Config) string { return c.Extract.Provider },
		set: func(c *Config, v string) error { c.Extract.Provider = v; return nil },
	},
	"extract.model": {
		get: func(c *Config) string { return c.Extract.Model },
		set: func(c *Config, v string) error { c.Extract.Model = v; return nil },
	},
	"extract.base_url": {
		get: func(c *Config) string { return c.Extract.BaseURL },
		set: func(c *Config, v string) error { c.Extract.BaseURL = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

// Get returns the string form of the value stored under the given dotted key.
func (c *Config) Get(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	return info.get(c), nil
}

// Set parses and stores the value under the given dotted key.
func (c *Config) Set(key, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	return info.set(c, value)
}
