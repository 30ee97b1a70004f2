// Package store is the public facade (spec §4, "ambient public
// facade"): Open wires the transaction coordinator, snapshot registry,
// plan cache, dictionary, and statistics together behind an
// Insert/Delete/Query/BulkLoad surface, mirroring the shape
// aleksaelezovic-trigo/pkg/store wraps around its own Storage+encoder
// pair — here the wrapped pieces are this repo's own coordinator,
// registry, and cache packages instead of a single encoder/decoder.
package store

import (
	"sync"
	"time"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/internal/exec"
	"github.com/relkv/rdfstore/internal/kv"
	"github.com/relkv/rdfstore/internal/loader"
	"github.com/relkv/rdfstore/internal/optimizer"
	"github.com/relkv/rdfstore/internal/plancache"
	"github.com/relkv/rdfstore/internal/resultenc"
	"github.com/relkv/rdfstore/internal/snapshot"
	"github.com/relkv/rdfstore/internal/sparqlparser"
	"github.com/relkv/rdfstore/internal/stats"
	"github.com/relkv/rdfstore/internal/txn"
	"github.com/relkv/rdfstore/rdf"
)

const (
	defaultPlanCacheSize = 1024
	defaultSnapshotTTL   = 30 * time.Second
	defaultSweepInterval = 60 * time.Second
)

// Config tunes Open/OpenInMemory; the zero value resolves to the
// spec's stated defaults (§4.6's 60s sweep, §4.7's bounded cache).
type Config struct {
	PlanCacheSize   int
	SnapshotTTL     time.Duration
	SweepInterval   time.Duration
	OnSnapshotWarn  func(snapshot.Handle)
	OnSnapshotForce func(snapshot.Handle)
}

func (c Config) resolve() Config {
	out := c
	if out.PlanCacheSize <= 0 {
		out.PlanCacheSize = defaultPlanCacheSize
	}
	if out.SnapshotTTL <= 0 {
		out.SnapshotTTL = defaultSnapshotTTL
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = defaultSweepInterval
	}
	return out
}

// Store is the top-level embedded triple store handle. Reads and
// writes are both safe for concurrent use; writes serialize through
// internal/txn, reads run against their own point-in-time snapshot.
type Store struct {
	kv    *kv.Store
	dict  *dict.Dictionary
	coord *txn.Coordinator
	snaps *snapshot.Registry
	cache *plancache.Cache
	cfg   Config

	optMu sync.RWMutex
	opt   *optimizer.Optimizer

	statsMu sync.RWMutex
	stats   *stats.Statistics
}

// Open opens (or creates) a store persisted at path.
func Open(path string, cfg Config) (*Store, error) {
	kvStore, err := kv.Open(path)
	if err != nil {
		return nil, err
	}
	return newStore(kvStore, cfg)
}

// OpenInMemory opens an ephemeral, non-persistent store — used by the
// CLI's demo command and by tests.
func OpenInMemory(cfg Config) (*Store, error) {
	kvStore, err := kv.OpenInMemory()
	if err != nil {
		return nil, err
	}
	return newStore(kvStore, cfg)
}

func newStore(kvStore *kv.Store, cfg Config) (*Store, error) {
	cfg = cfg.resolve()
	d, err := dict.Open(kvStore)
	if err != nil {
		kvStore.Close()
		return nil, err
	}

	cache, err := plancache.New(cfg.PlanCacheSize)
	if err != nil {
		kvStore.Close()
		return nil, err
	}

	s := &Store{
		kv:    kvStore,
		dict:  d,
		coord: txn.New(kvStore, d),
		snaps: snapshot.New(kvStore),
		cache: cache,
		cfg:   cfg,
	}

	loadedStats, ok, err := stats.Load(kvStore)
	if err != nil {
		kvStore.Close()
		return nil, err
	}
	if !ok {
		loadedStats = &stats.Statistics{}
	}
	s.setStats(loadedStats)

	s.coord.OnCommit(func(int) {
		s.cache.Invalidate()
	})

	s.snaps.StartSweep(cfg.SweepInterval, cfg.OnSnapshotWarn, cfg.OnSnapshotForce)
	return s, nil
}

func (s *Store) setStats(st *stats.Statistics) {
	s.statsMu.Lock()
	s.stats = st
	s.statsMu.Unlock()

	opt := optimizer.New(st)
	s.optMu.Lock()
	s.opt = opt
	s.optMu.Unlock()
	s.coord.SetOptimizer(opt)
}

func (s *Store) optimizer() *optimizer.Optimizer {
	s.optMu.RLock()
	defer s.optMu.RUnlock()
	return s.opt
}

// Close stops the snapshot sweeper, persists the last-collected
// statistics, and closes the underlying KV handle.
func (s *Store) Close() error {
	s.snaps.Stop()
	s.statsMu.RLock()
	st := s.stats
	s.statsMu.RUnlock()
	_ = stats.Save(s.kv, st)
	return s.kv.Close()
}

// Insert adds triples (spec §4.1 Insert).
func (s *Store) Insert(triples []rdf.Triple) (int, error) {
	return s.coord.Insert(triples)
}

// Delete removes triples (spec §4.1 Delete).
func (s *Store) Delete(triples []rdf.Triple) (int, error) {
	return s.coord.Delete(triples)
}

// RefreshStatistics recomputes statistics from the live store (spec
// §4.4: "recomputed on demand or on a schedule the host process
// drives") and swaps every live query's optimizer over to them.
func (s *Store) RefreshStatistics() error {
	fresh, err := stats.Collect(s.kv, s.dict, time.Now().Unix())
	if err != nil {
		return err
	}
	s.setStats(fresh)
	s.cache.Invalidate()
	return nil
}

// Statistics returns the currently active statistics snapshot.
func (s *Store) Statistics() *stats.Statistics {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// BulkLoad streams triples through internal/loader's overlapped
// encode/write pipeline (spec §4.8), then refreshes statistics and
// drops the plan cache — folding spec §4.8 step 4 directly into this
// call so callers never forget it.
func (s *Store) BulkLoad(in <-chan rdf.Triple, cfg loader.Config) (loader.Result, error) {
	l := loader.New(s.kv, s.dict, cfg)
	res, err := l.Load(in)
	if err != nil {
		return res, err
	}
	s.cache.Invalidate()
	if rerr := s.RefreshStatistics(); rerr != nil {
		return res, rerr
	}
	return res, nil
}

// QueryResult is the tagged union Query returns; which fields are
// meaningful depends on Kind.
type QueryResult struct {
	Kind    sparqlparser.QueryKind
	Select  resultenc.SelectResult
	Ask     bool
	Triples []rdf.Triple
	Bounded bool
}

// Query parses and evaluates a SPARQL query string against a
// consistent point-in-time snapshot of the store (spec §4.6's
// with_snapshot wrapper — a query never observes a concurrent write
// mid-scan), consulting and populating the plan cache by the query's
// fingerprint (spec §4.7).
func (s *Store) Query(queryText string) (QueryResult, error) {
	q, err := sparqlparser.Parse(queryText)
	if err != nil {
		return QueryResult{}, err
	}

	fp := plancache.FingerprintText(queryText)
	plan, ok := s.cache.Get(fp)
	if !ok {
		plan = &plancache.Plan{Root: q.Root}
		s.cache.Put(fp, plan)
	}

	var out QueryResult
	out.Kind = q.Kind
	err = s.snaps.WithSnapshot("query", s.cfg.SnapshotTTL, func(snap *kv.Snapshot) error {
		ctx := exec.NewCtx(snap, s.dict, s.optimizer())
		switch q.Kind {
		case sparqlparser.QuerySelect:
			rows, bounded, err := exec.EvalSelect(ctx, plan.Root)
			if err != nil {
				return err
			}
			out.Select = resultenc.SelectResult{Vars: resultVarNames(q), Bindings: rows, Bounded: bounded}
			out.Bounded = bounded
		case sparqlparser.QueryAsk:
			res, err := exec.EvalAsk(ctx, plan.Root.(*algebra.Ask))
			if err != nil {
				return err
			}
			out.Ask = res
		case sparqlparser.QueryConstruct:
			triples, bounded, err := exec.EvalConstruct(ctx, plan.Root.(*algebra.Construct))
			if err != nil {
				return err
			}
			out.Triples = triples
			out.Bounded = bounded
		case sparqlparser.QueryDescribe:
			triples, bounded, err := exec.EvalDescribe(ctx, plan.Root.(*algebra.Describe))
			if err != nil {
				return err
			}
			out.Triples = triples
			out.Bounded = bounded
		default:
			return errs.New(errs.CodeInternalError, "unknown query kind %d", q.Kind)
		}
		return nil
	})
	if err != nil {
		return QueryResult{}, err
	}
	return out, nil
}

func resultVarNames(q *sparqlparser.Query) []string {
	if q.SelectStar {
		return nil
	}
	names := make([]string, len(q.ResultVars))
	for i, v := range q.ResultVars {
		names[i] = v.Name
	}
	return names
}
