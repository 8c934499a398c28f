// Package bootstrap wires a config.toml file into a running ShibuVec HTTP
// server: scalar store, filter index, vector index, WAL-backed façade, then
// the HTTP surface on top. Both the root CLI and cmd/server's standalone
// binary call Run.
package bootstrap

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shibudb.org/shibuvec/internal/config"
	"github.com/shibudb.org/shibuvec/internal/facade"
	"github.com/shibudb.org/shibuvec/internal/filterindex"
	"github.com/shibudb.org/shibuvec/internal/httpapi"
	"github.com/shibudb.org/shibuvec/internal/scalarstore"
	"github.com/shibudb.org/shibuvec/internal/vectorindex"
)

// Run loads configPath and blocks serving HTTP until the listener fails.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	scalarDir := filepath.Join(cfg.FilePath, "scalar.db")
	if err := os.MkdirAll(scalarDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", scalarDir, err)
	}

	store, err := scalarstore.Open(
		filepath.Join(scalarDir, "data.bin"),
		filepath.Join(scalarDir, "index.bin"),
	)
	if err != nil {
		return fmt.Errorf("open scalar store: %w", err)
	}

	filters := filterindex.New()

	metric := vectorindex.MetricL2
	if cfg.Database.MetricType == "IP" {
		metric = vectorindex.MetricIP
	}

	hnswParams := resolveHNSWParams(cfg)
	vec, err := newVectorIndex(cfg, metric, hnswParams)
	if err != nil {
		store.Close()
		return fmt.Errorf("open vector index: %w", err)
	}

	indexKind := facade.IndexFlat
	if cfg.Database.IndexType == "hnsw" {
		indexKind = facade.IndexHNSW
	}

	db, err := facade.Open(
		store,
		filters,
		vec,
		filepath.Join(cfg.FilePath, "vdb.log"),
		facade.Config{
			Dim:        cfg.Database.Dim,
			Metric:     metric,
			IndexKind:  indexKind,
			HNSWParams: hnswParams,
		},
		log,
	)
	if err != nil {
		vec.Close()
		store.Close()
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	log.Info("database ready",
		zap.String("lifecycle", lifecycleString(db.Lifecycle())),
		zap.Int("dim", cfg.Database.Dim),
		zap.String("metric", cfg.Database.MetricType),
		zap.String("index_type", cfg.Database.IndexType),
	)

	srv := httpapi.NewServer(db, cfg.Server.SearchURLSuffix, cfg.Server.UpsertURLSuffix, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, srv)
}

func resolveHNSWParams(cfg *config.Config) vectorindex.HNSWParams {
	params := vectorindex.DefaultHNSWParams()
	if hp := cfg.Database.HNSWParams; hp != nil {
		params = vectorindex.HNSWParams{
			EfConstruction:  hp.EfConstruction,
			MaxElements:     hp.MaxElements,
			MaxNbConnection: hp.MaxNbConnection,
			MaxLayer:        hp.MaxLayer,
		}
	}
	return params
}

func newVectorIndex(cfg *config.Config, metric vectorindex.Metric, params vectorindex.HNSWParams) (vectorindex.Index, error) {
	switch cfg.Database.IndexType {
	case "hnsw":
		return vectorindex.NewHNSW(cfg.Database.Dim, metric, params)
	default:
		return vectorindex.NewFlat(cfg.Database.Dim, metric)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zapCfg.Build()
}

func lifecycleString(l facade.Lifecycle) string {
	if l == facade.Recovered {
		return "recovered"
	}
	return "fresh"
}
