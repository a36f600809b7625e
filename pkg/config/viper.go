package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/keepsakeco/keepsake/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the KEEPSAKE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound by the command)
//  2. Environment variables (KEEPSAKE_API_LISTEN, KEEPSAKE_MEMORY_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: KEEPSAKE_API_LISTEN, KEEPSAKE_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("KEEPSAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.raw_export_dir", d.Storage.RawExportDir)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Memory store
	v.SetDefault("memory.provider", d.Memory.Provider)
	v.SetDefault("memory.target", d.Memory.Target)
	v.SetDefault("memory.dimensions", d.Memory.Dimensions)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)

	// Extraction LLM
	v.SetDefault("extract.provider", d.Extract.Provider)
	v.SetDefault("extract.model", d.Extract.Model)
	v.SetDefault("extract.base_url", d.Extract.BaseURL)

	// Ingest
	v.SetDefault("ingest.concurrency", d.Ingest.Concurrency)
	v.SetDefault("ingest.batch_delay_ms", d.Ingest.BatchDelayMs)

	// Retrieval
	v.SetDefault("retrieval.max_chunks", d.Retrieval.MaxChunks)
	v.SetDefault("retrieval.chunk_floor", d.Retrieval.ChunkFloor)
	v.SetDefault("retrieval.fact_floor", d.Retrieval.FactFloor)

	// Learning
	v.SetDefault("learning.confidence_floor", d.Learning.ConfidenceFloor)
	v.SetDefault("learning.recent_facts", d.Learning.RecentFacts)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
