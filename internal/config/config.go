// Package config loads config.toml, the one on-disk configuration surface
// named in spec §6. It mirrors the teacher's own persistence.go in that
// configuration is a plain marshal/unmarshal of a struct to disk, just
// TOML instead of the teacher's JSON, using github.com/pelletier/go-toml/v2
// — an ecosystem dependency the rest of the pack (AKJUS-bsc-erigon)
// already carries, rather than stdlib flag/env parsing.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
)

// Config is the top-level config.toml shape from spec §6.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	FilePath string         `toml:"file_path"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	Dim        int         `toml:"dim"`
	MetricType string      `toml:"metric_type"` // "IP" | "L2"
	IndexType  string      `toml:"index_type"`  // "flat" | "hnsw"
	HNSWParams *HNSWConfig `toml:"hnsw_params,omitempty"`
	Version    string      `toml:"version"`
}

type HNSWConfig struct {
	EfConstruction  int `toml:"ef_construction"`
	MaxElements     int `toml:"max_elements"`
	MaxNbConnection int `toml:"max_nb_connection"`
	MaxLayer        int `toml:"max_layer"`
}

type ServerConfig struct {
	SearchURLSuffix string `toml:"search_url_suffix"`
	UpsertURLSuffix string `toml:"upsert_url_suffix"`
	Port            int    `toml:"port"`
	LogLevel        string `toml:"log_level"`
}

// Load reads and parses the config.toml at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dberrors.NewFileError(path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, dberrors.NewDataError("parse config.toml", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, dberrors.NewDataError("validate config.toml", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Dim <= 0 {
		return fmt.Errorf("database.dim must be positive, got %d", c.Database.Dim)
	}
	switch c.Database.MetricType {
	case "IP", "L2":
	default:
		return fmt.Errorf("database.metric_type must be %q or %q, got %q", "IP", "L2", c.Database.MetricType)
	}
	switch c.Database.IndexType {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("database.index_type must be %q or %q, got %q", "flat", "hnsw", c.Database.IndexType)
	}
	if c.FilePath == "" {
		return fmt.Errorf("file_path must be set")
	}
	if c.Server.SearchURLSuffix == "" || c.Server.UpsertURLSuffix == "" {
		return fmt.Errorf("server.search_url_suffix and server.upsert_url_suffix must be set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	return nil
}
