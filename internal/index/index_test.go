package index

import (
	"testing"

	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/kv"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	store, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestKeyDecodeRoundTrip(t *testing.T) {
	tr := Triple{S: 1, P: 2, O: 3}
	for _, w := range []Which{SPO, POS, OSP} {
		key := Key(w, tr)
		if len(key) != 24 {
			t.Fatalf("expected a 24-byte key, got %d", len(key))
		}
		got := decode(w, key)
		if got != tr {
			t.Errorf("index %v: decode(Key(tr)) = %+v, want %+v", w, got, tr)
		}
	}
}

func TestInsertThenScanAllThreeIndices(t *testing.T) {
	store := openTestStore(t)
	tr := Triple{S: 10, P: 20, O: 30}

	if err := store.WriteBatch(Insert(tr), true); err != nil {
		t.Fatalf("WriteBatch(Insert) failed: %v", err)
	}

	for _, w := range []Which{SPO, POS, OSP} {
		it := Scan(store, ScanPlan{Index: w})
		defer it.Close()
		if !it.Next() {
			t.Fatalf("index %v: expected at least one match", w)
		}
		if got := it.Triple(); got != tr {
			t.Errorf("index %v: got %+v, want %+v", w, got, tr)
		}
	}
}

func TestDeleteRemovesFromAllIndices(t *testing.T) {
	store := openTestStore(t)
	tr := Triple{S: 1, P: 2, O: 3}

	if err := store.WriteBatch(Insert(tr), true); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.WriteBatch(Delete(tr), true); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	for _, w := range []Which{SPO, POS, OSP} {
		n, err := Count(store, ScanPlan{Index: w})
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if n != 0 {
			t.Errorf("index %v: expected 0 triples after delete, got %d", w, n)
		}
	}
}

func TestSelectIndexSPOFullyBound(t *testing.T) {
	plan := SelectIndex(Pattern{S: Bound(1), P: Bound(2), O: Bound(3)})
	if plan.Index != SPO {
		t.Errorf("expected SPO, got %v", plan.Index)
	}
	if len(plan.Prefix) != 24 {
		t.Errorf("expected a full 24-byte prefix, got %d bytes", len(plan.Prefix))
	}
}

func TestSelectIndexAllVariables(t *testing.T) {
	plan := SelectIndex(Pattern{S: Var(), P: Var(), O: Var()})
	if plan.Index != SPO {
		t.Errorf("expected SPO for the unconstrained scan, got %v", plan.Index)
	}
	if plan.Prefix != nil {
		t.Errorf("expected a nil prefix for V V V, got %v", plan.Prefix)
	}
}

func TestSelectIndexBoundPredicateAndObject(t *testing.T) {
	plan := SelectIndex(Pattern{S: Var(), P: Bound(5), O: Bound(6)})
	if plan.Index != POS {
		t.Errorf("expected POS for ?s p o, got %v", plan.Index)
	}
	if len(plan.Prefix) != 16 {
		t.Errorf("expected a 16-byte prefix, got %d", len(plan.Prefix))
	}
}

func TestScanFiltersByPatternPrefix(t *testing.T) {
	store := openTestStore(t)
	triples := []Triple{
		{S: 1, P: 100, O: 1000},
		{S: 1, P: 100, O: 2000},
		{S: 1, P: 200, O: 3000},
		{S: 2, P: 100, O: 4000},
	}
	for _, tr := range triples {
		if err := store.WriteBatch(Insert(tr), true); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	plan := SelectIndex(Pattern{S: Bound(1), P: Bound(100), O: Var()})
	n, err := Count(store, plan)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 matches for (1, 100, ?), got %d", n)
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	tr := Triple{S: dict.TermId(1), P: dict.TermId(2), O: dict.TermId(3)}

	if err := store.WriteBatch(Insert(tr), true); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.WriteBatch(Insert(tr), true); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}

	n, err := Count(store, ScanPlan{Index: SPO})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly 1 triple after re-inserting a duplicate, got %d", n)
	}
}
