package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
file_path = "./data"

[database]
dim = 128
metric_type = "L2"
index_type = "flat"
version = "1"

[server]
search_url_suffix = "/search"
upsert_url_suffix = "/upsert"
port = 8080
log_level = "info"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Dim != 128 {
		t.Fatalf("expected dim 128, got %d", cfg.Database.Dim)
	}
	if cfg.Database.MetricType != "L2" {
		t.Fatalf("expected metric_type L2, got %q", cfg.Database.MetricType)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
}

func TestLoadWithHNSWParams(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
file_path = "./data"

[database]
dim = 64
metric_type = "IP"
index_type = "hnsw"
version = "1"

[database.hnsw_params]
ef_construction = 200
max_elements = 10000
max_nb_connection = 16
max_layer = 4

[server]
search_url_suffix = "/search"
upsert_url_suffix = "/upsert"
port = 9090
log_level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.HNSWParams == nil {
		t.Fatalf("expected hnsw_params to be set")
	}
	if cfg.Database.HNSWParams.MaxNbConnection != 16 {
		t.Fatalf("expected max_nb_connection 16, got %d", cfg.Database.HNSWParams.MaxNbConnection)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadRejectsInvalidMetricType(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
file_path = "./data"

[database]
dim = 128
metric_type = "COSINE"
index_type = "flat"
version = "1"

[server]
search_url_suffix = "/search"
upsert_url_suffix = "/upsert"
port = 8080
log_level = "info"
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for invalid metric_type")
	}
}

func TestLoadRejectsZeroDim(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
file_path = "./data"

[database]
dim = 0
metric_type = "L2"
index_type = "flat"
version = "1"

[server]
search_url_suffix = "/search"
upsert_url_suffix = "/upsert"
port = 8080
log_level = "info"
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for zero dim")
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `not = [valid toml`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error for malformed toml")
	}
}
