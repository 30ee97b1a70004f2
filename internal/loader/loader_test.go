package loader

import (
	"testing"

	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/kv"
	"github.com/relkv/rdfstore/rdf"
)

func openTestStore(t *testing.T) (*kv.Store, *dict.Dictionary) {
	t.Helper()
	store, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	d, err := dict.Open(store)
	if err != nil {
		t.Fatalf("failed to open dictionary: %v", err)
	}
	return store, d
}

func sampleTriples(n int) []rdf.Triple {
	subj := &rdf.NamedNode{IRI: "http://example.org/s"}
	pred := &rdf.NamedNode{IRI: "http://example.org/p"}
	out := make([]rdf.Triple, n)
	for i := 0; i < n; i++ {
		out[i] = rdf.Triple{Subject: subj, Predicate: pred, Object: rdf.NewIntegerLiteral(int64(i))}
	}
	return out
}

func TestLoadAllInsertsEveryTriple(t *testing.T) {
	store, d := openTestStore(t)
	l := New(store, d, Config{BatchSize: 10, BulkMode: false, NumWorkers: 2})

	triples := sampleTriples(37)
	res, err := l.LoadAll(triples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TriplesLoaded != uint64(len(triples)) {
		t.Errorf("expected %d triples loaded, got %d", len(triples), res.TriplesLoaded)
	}
	if res.Halted {
		t.Errorf("did not expect a halt")
	}

	for _, term := range []rdf.Term{&rdf.NamedNode{IRI: "http://example.org/s"}, &rdf.NamedNode{IRI: "http://example.org/p"}} {
		if _, ok, err := d.Lookup(term); err != nil || !ok {
			t.Errorf("expected %v to be present in dictionary after load", term)
		}
	}
}

func TestLoadReportsProgressAndHonorsHalt(t *testing.T) {
	store, d := openTestStore(t)

	var batches []Progress
	l := New(store, d, Config{
		BatchSize:     minBatchSize,
		NumWorkers:    1,
		ProgressEvery: 1,
		OnProgress: func(p Progress) Action {
			batches = append(batches, p)
			if len(batches) == 2 {
				return Halt
			}
			return Continue
		},
	})

	res, err := l.LoadAll(sampleTriples(5 * minBatchSize))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Halted {
		t.Errorf("expected Halt to stop the load early")
	}
	if len(batches) != 2 {
		t.Fatalf("expected exactly 2 progress callbacks before halting, got %d", len(batches))
	}
	if res.TriplesLoaded != 2*minBatchSize {
		t.Errorf("expected %d triples loaded (2 batches of %d), got %d", 2*minBatchSize, minBatchSize, res.TriplesLoaded)
	}
}

func TestConfigResolveClampsBatchSize(t *testing.T) {
	cfg := Config{BatchSize: 1}.resolve()
	if cfg.BatchSize != minBatchSize {
		t.Errorf("expected batch size clamped to %d, got %d", minBatchSize, cfg.BatchSize)
	}

	cfg = Config{BatchSize: 10_000_000}.resolve()
	if cfg.BatchSize != maxBatchSize {
		t.Errorf("expected batch size clamped to %d, got %d", maxBatchSize, cfg.BatchSize)
	}

	cfg = Config{Preset: PresetHigh}.resolve()
	if cfg.BatchSize != maxBatchSize {
		t.Errorf("expected PresetHigh to resolve to %d, got %d", maxBatchSize, cfg.BatchSize)
	}
}

func TestProgressString(t *testing.T) {
	p := Progress{TriplesLoaded: 1234, BatchNo: 3}
	s := p.String()
	if s == "" {
		t.Errorf("expected non-empty progress string")
	}
}
