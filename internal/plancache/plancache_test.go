package plancache

import (
	"testing"

	"github.com/relkv/rdfstore/internal/algebra"
)

func TestFingerprintTextIsDeterministicAndDistinguishing(t *testing.T) {
	a := FingerprintText(`SELECT * WHERE { ?s ?p ?o . }`)
	b := FingerprintText(`SELECT * WHERE { ?s ?p ?o . }`)
	if a != b {
		t.Errorf("expected identical text to fingerprint identically")
	}
	c := FingerprintText(`SELECT * WHERE { ?s ?p ?o2 . }`)
	if a == c {
		t.Errorf("expected different query text to fingerprint differently")
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	fp := FingerprintText("SELECT * WHERE { ?s ?p ?o . }")
	plan := &Plan{Root: &algebra.BGP{}}

	if _, ok := c.Get(fp); ok {
		t.Fatalf("expected a miss before Put")
	}
	c.Put(fp, plan)
	got, ok := c.Get(fp)
	if !ok || got != plan {
		t.Fatalf("expected Get to return the same *Plan put in, got %v, %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestInvalidateClearsEverything(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Put(FingerprintText("a"), &Plan{})
	c.Put(FingerprintText("b"), &Plan{})
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries before Invalidate, got %d", c.Len())
	}
	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("expected 0 entries after Invalidate, got %d", c.Len())
	}
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	fpA, fpB, fpC := FingerprintText("a"), FingerprintText("b"), FingerprintText("c")
	c.Put(fpA, &Plan{})
	c.Put(fpB, &Plan{})
	c.Put(fpC, &Plan{}) // evicts fpA, the least recently used

	if _, ok := c.Get(fpA); ok {
		t.Errorf("expected fpA to have been evicted")
	}
	if _, ok := c.Get(fpB); !ok {
		t.Errorf("expected fpB to still be cached")
	}
	if _, ok := c.Get(fpC); !ok {
		t.Errorf("expected fpC to still be cached")
	}
}
