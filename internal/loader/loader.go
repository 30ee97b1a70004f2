// Package loader implements the bulk loader (spec §4.8): batched,
// dictionary-encode-then-index triple ingestion with an overlapped
// worker pool on the CPU-bound encode step and a single serial writer,
// following the sharded-workers-feeding-a-channel shape
// other_examples' dgraph bulk mapper uses for the same overlap (adapted
// down to this store's in-process write-batch primitive — no on-disk
// shard files, no intermediate protobuf map entries).
package loader

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/internal/index"
	"github.com/relkv/rdfstore/internal/kv"
	"github.com/relkv/rdfstore/rdf"
)

// Preset is a memory-budget shorthand for BatchSize (spec §4.8:
// ":low/:medium/:high/:auto" presets).
type Preset int

const (
	PresetAuto Preset = iota
	PresetLow
	PresetHigh
)

const (
	defaultBatchSize = 10_000
	minBatchSize     = 100
	maxBatchSize     = 100_000
)

func (p Preset) batchSize() int {
	switch p {
	case PresetLow:
		return minBatchSize
	case PresetHigh:
		return maxBatchSize
	default:
		return defaultBatchSize
	}
}

// Action is what a progress callback returns to keep going or cancel.
type Action int

const (
	Continue Action = iota
	Halt
)

// Progress is the `{triples_loaded, batch_no, elapsed_ms, rate}` record
// spec §4.8 names, fired every ProgressEvery batches.
type Progress struct {
	TriplesLoaded uint64
	BatchNo       int
	Elapsed       time.Duration
	Rate          float64 // triples/sec
}

// String formats p the way cmd/rdfstore's zerolog progress line
// consumes it: humanize.Comma for the triple count, plain float for the
// rate. Kept here (not in cmd/rdfstore) since it is pure formatting, not
// logging — the loader package itself never writes to a logger.
func (p Progress) String() string {
	return fmt.Sprintf("%s triples in %s (%.0f/s), batch %d",
		humanize.Comma(int64(p.TriplesLoaded)), p.Elapsed.Round(time.Millisecond), p.Rate, p.BatchNo)
}

// Config configures a Loader. Zero value is usable: it resolves to
// PresetAuto's batch size, bulk mode off (every batch synced), no
// progress callback, and a
// worker count of runtime.GOMAXPROCS(0).
type Config struct {
	BatchSize     int // explicit batch size; overrides Preset when > 0
	Preset        Preset
	BulkMode      bool // sync=false until the final flush (spec §4.8 step 3)
	NumWorkers    int
	ProgressEvery int // fire OnProgress every N batches; 0 means every batch
	OnProgress    func(Progress) Action
}

func (c Config) resolve() Config {
	out := c
	if out.BatchSize <= 0 {
		out.BatchSize = out.Preset.batchSize()
	}
	if out.BatchSize < minBatchSize {
		out.BatchSize = minBatchSize
	}
	if out.BatchSize > maxBatchSize {
		out.BatchSize = maxBatchSize
	}
	if out.NumWorkers <= 0 {
		out.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if out.ProgressEvery <= 0 {
		out.ProgressEvery = 1
	}
	return out
}

// Result summarizes a completed (or halted) load.
type Result struct {
	TriplesLoaded uint64
	Halted        bool
	FlushFailed   bool
}

// Loader bulk-inserts triples directly against store/d, bypassing the
// transaction coordinator's per-write fsync so a large load pays one
// sync at the end (spec §4.8's bulk_mode). Callers that need the plan
// cache/statistics invalidation the coordinator performs should call
// those themselves once Load returns — see the store facade's
// BulkLoad, which wires this in.
type Loader struct {
	store *kv.Store
	dict  *dict.Dictionary
	cfg   Config
}

func New(store *kv.Store, d *dict.Dictionary, cfg Config) *Loader {
	return &Loader{store: store, dict: d, cfg: cfg.resolve()}
}

type batchResult struct {
	ops   []kv.Op
	n     int
	batch int
	err   error
}

// Load streams triples from in, chunking into Config.BatchSize batches,
// overlapping NumWorkers encode stages, and committing each batch via a
// single serial writer goroutine. It returns once in closes and the
// last batch is written (or flushed, in bulk mode), or once a progress
// callback returns Halt.
func (l *Loader) Load(in <-chan rdf.Triple) (Result, error) {
	batches := make(chan []rdf.Triple)
	results := make(chan batchResult)

	var wg sync.WaitGroup
	for i := 0; i < l.cfg.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				ops, n, err := l.encodeBatch(batch)
				results <- batchResult{ops: ops, n: n, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Chunker: reads in, hands off fixed-size batches to the worker pool.
	go func() {
		defer close(batches)
		buf := make([]rdf.Triple, 0, l.cfg.BatchSize)
		for t := range in {
			buf = append(buf, t)
			if len(buf) >= l.cfg.BatchSize {
				batches <- buf
				buf = make([]rdf.Triple, 0, l.cfg.BatchSize)
			}
		}
		if len(buf) > 0 {
			batches <- buf
		}
	}()

	start := time.Now()
	var loaded uint64
	var batchNo int
	var firstErr error
	halted := false

	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		if len(res.ops) == 0 {
			continue
		}
		sync := !l.cfg.BulkMode
		if err := l.store.WriteBatch(res.ops, sync); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		loaded += uint64(res.n)
		batchNo++

		if l.cfg.OnProgress != nil && batchNo%l.cfg.ProgressEvery == 0 {
			p := Progress{TriplesLoaded: loaded, BatchNo: batchNo, Elapsed: time.Since(start)}
			if secs := p.Elapsed.Seconds(); secs > 0 {
				p.Rate = float64(loaded) / secs
			}
			if l.cfg.OnProgress(p) == Halt {
				halted = true
				break
			}
		}
	}

	if halted {
		return Result{TriplesLoaded: loaded, Halted: true}, nil
	}
	if firstErr != nil {
		return Result{TriplesLoaded: loaded}, firstErr
	}
	if l.cfg.BulkMode {
		if err := l.store.FlushWAL(true); err != nil {
			return Result{TriplesLoaded: loaded, FlushFailed: true}, errs.Wrap(errs.CodeIOError, err, "flush_failed after %d triples", loaded)
		}
	}
	return Result{TriplesLoaded: loaded}, nil
}

// LoadAll is the convenience wrapper over a fixed slice, used by tests
// and internal/rdfio's LoadFile path.
func (l *Loader) LoadAll(triples []rdf.Triple) (Result, error) {
	ch := make(chan rdf.Triple)
	go func() {
		defer close(ch)
		for _, t := range triples {
			ch <- t
		}
	}()
	return l.Load(ch)
}

// encodeBatch implements spec §4.8 steps 1-2: dictionary-encode every
// term (interning where needed) and append the three index keys per
// triple, all into one ops slice meant to be committed as a single
// atomic batch.
func (l *Loader) encodeBatch(batch []rdf.Triple) ([]kv.Op, int, error) {
	var ops []kv.Op
	n := 0
	pending := map[string]dict.TermId{}
	encode := func(term rdf.Term) (dict.TermId, []kv.Op, error) {
		key := term.TermString()
		if id, ok := pending[key]; ok {
			return id, nil, nil
		}
		id, termOps, err := l.dict.EncodeNew(term)
		if err == nil {
			pending[key] = id
		}
		return id, termOps, err
	}
	for _, t := range batch {
		sID, sOps, err := encode(t.Subject)
		if err != nil {
			return nil, 0, err
		}
		pID, pOps, err := encode(t.Predicate)
		if err != nil {
			return nil, 0, err
		}
		oID, oOps, err := encode(t.Object)
		if err != nil {
			return nil, 0, err
		}
		ops = append(ops, sOps...)
		ops = append(ops, pOps...)
		ops = append(ops, oOps...)
		ops = append(ops, index.Insert(index.Triple{S: sID, P: pID, O: oID})...)
		n++
	}
	return ops, n, nil
}
