// Package facade implements C6, the Database façade: the only component
// that touches every other layer, orchestrating Upsert and Query per spec
// §4.6 and recovering crash-consistent state from the WAL on open.
//
// Go's goroutine scheduler already multiplexes blocking calls onto OS
// threads, so unlike an async-runtime design this façade has no separate
// blocking-worker-pool abstraction to offload CPU-bound vector work onto —
// it simply calls into the vector index while holding its exclusive lock,
// the same way the teacher's VectorEngineImpl does under ve.lock. The
// mutex ordering from spec §5 is what's preserved, not the executor shape.
package facade

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
	"github.com/shibudb.org/shibuvec/internal/filterindex"
	"github.com/shibudb.org/shibuvec/internal/scalarstore"
	"github.com/shibudb.org/shibuvec/internal/vectorindex"
	"github.com/shibudb.org/shibuvec/internal/wal"
)

// Lifecycle marks whether a Database was just constructed or recovered
// from an existing WAL, per spec §4.6's state machine.
type Lifecycle int

const (
	Fresh Lifecycle = iota
	Recovered
)

// Config fixes the shape of the vector index for this database's lifetime.
type Config struct {
	Dim        int
	Metric     vectorindex.Metric
	IndexKind  IndexKind
	HNSWParams vectorindex.HNSWParams
}

type IndexKind int

const (
	IndexFlat IndexKind = iota
	IndexHNSW
)

// Database is C6: the façade gluing the scalar store (C1/C2), filter index
// (C3), vector index (C4), and WAL (C5) into the upsert/query contract.
type Database struct {
	cfg Config
	log *zap.Logger

	vecMu sync.Mutex // exclusive: held for the whole insert or search
	vec   vectorindex.Index

	filters *filterindex.Index

	store *scalarstore.Store

	walMu sync.Mutex // serializes WAL append + id allocation ordering
	w     *wal.WAL

	lifecycle Lifecycle
}

// upsertRecord is what actually gets written to the WAL: the allocated ids
// alongside the original args, so that replay can reuse them directly
// instead of calling AllocateIDs again. Spec §4.5 requires replay to reuse
// "the ids embedded in the recorded payload" — the only way to satisfy
// that literally is for the payload to carry the ids, which means id
// allocation must happen before the WAL append. This is a deliberate
// departure from the literal step order in §4.6 (WAL before allocate) and
// from §5's "WAL append -> id allocation" ordering table: both describe
// the source's behavior, which §9 open question 2 calls out as breaking
// replay idempotence. The allocate-then-log order below is the fix those
// notes gesture at. See DESIGN.md.
type upsertRecord struct {
	IDs  []uint64   `json:"ids"`
	Args UpsertArgs `json:"args"`
}

// Open constructs a Database over an already-open store, filter index, and
// vector index, replaying walPath to recover in-memory state.
func Open(store *scalarstore.Store, filters *filterindex.Index, vec vectorindex.Index, walPath string, cfg Config, log *zap.Logger) (*Database, error) {
	startLogID, err := store.WALLogIDHighWaterMark()
	if err != nil {
		return nil, err
	}
	w, err := wal.Open(walPath, startLogID)
	if err != nil {
		return nil, err
	}

	db := &Database{
		cfg:     cfg,
		log:     log,
		vec:     vec,
		filters: filters,
		store:   store,
		w:       w,
	}

	replayed := false
	err = w.Iterate(func(rec wal.Record) error {
		replayed = true
		return db.replayRecord(rec)
	})
	if err != nil {
		return nil, dberrors.NewCreateError("database recovery", err)
	}
	if replayed {
		db.lifecycle = Recovered
		db.log.Info("recovered database from wal")
	} else {
		db.lifecycle = Fresh
	}
	return db, nil
}

func (db *Database) Lifecycle() Lifecycle { return db.lifecycle }

func (db *Database) replayRecord(rec wal.Record) error {
	switch rec.Operation {
	case wal.OpUpsert:
		var ur upsertRecord
		if err := json.Unmarshal(rec.Data, &ur); err != nil {
			return dberrors.NewDataError(fmt.Sprintf("wal record %d", rec.LogID), err)
		}
		return db.applyUpsert(ur.Args, ur.IDs)
	case wal.OpDelete:
		// Declared in the WAL schema but unsupported by the façade; spec
		// §9 (open question 5) says to treat it as forward-compatible and
		// reject during replay rather than silently skip it.
		return dberrors.NewDataError(fmt.Sprintf("wal record %d", rec.LogID), fmt.Errorf("delete operation is not supported"))
	default:
		return dberrors.NewDataError(fmt.Sprintf("wal record %d", rec.LogID), fmt.Errorf("unknown operation %q", rec.Operation))
	}
}

// UpsertArgs mirrors spec §6's VectorInsertArgs wire shape.
type UpsertArgs struct {
	FlatData   []float32         `json:"flat_data"`
	DataRow    int               `json:"data_row"`
	DataDim    int               `json:"data_dim"`
	Docs       []map[string]any  `json:"docs"`
	Attributes []map[string]any  `json:"attributes"`
	HNSWParams *HNSWInsertParams `json:"hnsw_params,omitempty"`
}

type HNSWInsertParams struct {
	Parallel bool `json:"parallel"`
}

// Upsert implements spec §4.6's upsert path.
func (db *Database) Upsert(args UpsertArgs) error {
	if err := db.validateUpsert(args); err != nil {
		return err
	}

	db.walMu.Lock()
	defer db.walMu.Unlock()

	start, _, err := db.store.AllocateIDs(uint64(args.DataRow))
	if err != nil {
		return dberrors.NewPutError("upsert id allocation", err)
	}
	ids := make([]uint64, args.DataRow)
	for i := range ids {
		ids[i] = start + uint64(i)
	}

	payload, err := json.Marshal(upsertRecord{IDs: ids, Args: args})
	if err != nil {
		return dberrors.NewDataError("encode upsert wal record", err)
	}
	logID, err := db.w.Append(wal.OpUpsert, payload)
	if err != nil {
		return dberrors.NewPutError("upsert wal append", err)
	}
	if err := db.store.SetWALLogIDHighWaterMark(logID); err != nil {
		return dberrors.NewPutError("upsert wal high-water-mark", err)
	}

	return db.applyUpsert(args, ids)
}

func (db *Database) validateUpsert(args UpsertArgs) error {
	if args.Docs != nil && len(args.Docs) != args.DataRow {
		return dberrors.NewPutError("upsert validate", fmt.Errorf("docs.len %d != rows %d", len(args.Docs), args.DataRow))
	}
	if args.Attributes != nil && len(args.Attributes) != 0 && len(args.Attributes) != args.DataRow {
		return dberrors.NewPutError("upsert validate", fmt.Errorf("attributes.len %d != rows %d", len(args.Attributes), args.DataRow))
	}
	if len(args.FlatData) != args.DataRow*args.DataDim {
		return dberrors.NewPutError("upsert validate", fmt.Errorf("flat_data.len %d != rows*dim %d", len(args.FlatData), args.DataRow*args.DataDim))
	}
	if args.DataDim != db.cfg.Dim {
		return dberrors.NewPutError("upsert validate", fmt.Errorf("dim %d != index dim %d", args.DataDim, db.cfg.Dim))
	}
	return nil
}

// applyUpsert performs steps 4-5 of spec §4.6 (vector insert, then per-row
// scalar put + filter upsert) given already-resolved ids. It is shared
// between the normal write path and WAL replay.
func (db *Database) applyUpsert(args UpsertArgs, ids []uint64) error {
	hints := vectorindex.InsertHints{}
	if args.HNSWParams != nil {
		hints.Parallel = args.HNSWParams.Parallel
	}

	db.vecMu.Lock()
	err := db.vec.Insert(args.FlatData, ids, hints)
	db.vecMu.Unlock()
	if err != nil {
		// Ids are burned: the scalar store and filter index stay
		// untouched, the WAL record remains for a future retry.
		return dberrors.NewPutError("vector insert", err)
	}

	for i, id := range ids {
		doc := map[string]any{}
		if args.Docs != nil && args.Docs[i] != nil {
			for k, v := range args.Docs[i] {
				doc[k] = v
			}
		}
		attrs := map[string]any{}
		if args.Attributes != nil && i < len(args.Attributes) && args.Attributes[i] != nil {
			attrs = args.Attributes[i]
		}
		// Injected after the copy so a caller-supplied id or attributes
		// field never survives into the stored document.
		doc["id"] = id
		doc["attributes"] = attrs

		encoded, err := json.Marshal(doc)
		if err != nil {
			return dberrors.NewPutError("document encode", err)
		}
		if err := db.store.Put(scalarstore.DocumentKey(id), encoded); err != nil {
			return dberrors.NewPutError("document put", err)
		}

		for field, v := range attrs {
			iv, ok := asInt64(v)
			if !ok {
				return dberrors.NewPutError("attribute encode", fmt.Errorf("field %q: non-integer attribute value", field))
			}
			db.filters.Upsert(field, iv, id)
		}
	}
	return nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	default:
		return 0, false
	}
}

// QueryArgs mirrors spec §6's VectorSearchArgs wire shape.
type QueryArgs struct {
	Query       []float32        `json:"query"`
	K           int              `json:"k"`
	FilterInput []FilterInput    `json:"filter_inputs,omitempty"`
	HNSWParams  *HNSWQueryParams `json:"hnsw_params,omitempty"`
}

type FilterInput struct {
	Field  string `json:"field"`
	Op     string `json:"op"`
	Target int64  `json:"target"`
}

type HNSWQueryParams struct {
	EfSearch int `json:"ef_search"`
}

// Query implements spec §4.6's query path, returning one document per
// result label in rank order; a missing document surfaces as an empty
// object rather than an error.
func (db *Database) Query(args QueryArgs) ([]map[string]any, error) {
	if len(args.Query) != db.cfg.Dim {
		return nil, dberrors.NewGetError("query validate", fmt.Errorf("query.len %d != dim %d", len(args.Query), db.cfg.Dim))
	}

	restriction := db.composeRestriction(args.FilterInput)

	hints := vectorindex.SearchHints{}
	if args.HNSWParams != nil {
		hints.EfSearch = args.HNSWParams.EfSearch
	}

	db.vecMu.Lock()
	result, err := db.vec.Search(args.Query, args.K, hints, restriction)
	db.vecMu.Unlock()
	if err != nil {
		return nil, dberrors.NewGetError("vector search", err)
	}

	keys := make([][]byte, len(result.Labels))
	for i, l := range result.Labels {
		keys[i] = scalarstore.DocumentKey(l)
	}
	vals, err := db.store.MultiGet(keys)
	if err != nil {
		return nil, dberrors.NewGetError("document fetch", err)
	}

	docs := make([]map[string]any, len(vals))
	for i, v := range vals {
		doc := map[string]any{}
		if v != nil {
			if err := json.Unmarshal(v, &doc); err != nil {
				return nil, dberrors.NewGetError("document decode", err)
			}
		}
		docs[i] = doc
	}
	return docs, nil
}

func (db *Database) composeRestriction(inputs []FilterInput) *roaring.Bitmap {
	if len(inputs) == 0 {
		return nil
	}
	preds := make([]filterindex.Predicate, len(inputs))
	for i, in := range inputs {
		op := filterindex.OpEqual
		if in.Op == "NotEqual" {
			op = filterindex.OpNotEqual
		}
		preds[i] = filterindex.Predicate{Field: in.Field, Op: op, Value: in.Target}
	}
	return db.filters.Compose(preds)
}

func (db *Database) Close() error {
	if err := db.w.Close(); err != nil {
		return err
	}
	if err := db.vec.Close(); err != nil {
		return err
	}
	return db.store.Close()
}
