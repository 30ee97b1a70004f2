package txn

import (
	"testing"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/kv"
	"github.com/relkv/rdfstore/rdf"
)

func openTestCoordinator(t *testing.T) (*Coordinator, *kv.Store, *dict.Dictionary) {
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
	return New(store, d), store, d
}

func foafTriples() []rdf.Triple {
	alice := &rdf.NamedNode{IRI: "http://example.org/alice"}
	bob := &rdf.NamedNode{IRI: "http://example.org/bob"}
	name := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}
	return []rdf.Triple{
		{Subject: alice, Predicate: name, Object: rdf.NewLiteral("Alice")},
		{Subject: bob, Predicate: name, Object: rdf.NewLiteral("Bob")},
	}
}

func TestInsertEncodesAndReturnsAffectedCount(t *testing.T) {
	c, _, d := openTestCoordinator(t)
	n, err := c.Insert(foafTriples())
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 affected, got %d", n)
	}
	if _, ok, err := d.Lookup(&rdf.NamedNode{IRI: "http://example.org/alice"}); err != nil || !ok {
		t.Errorf("expected alice to be in the dictionary after insert")
	}
}

func TestInsertDuplicatesAreNoOps(t *testing.T) {
	c, _, _ := openTestCoordinator(t)
	triples := foafTriples()[:1]
	if _, err := c.Insert(triples); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	n, err := c.Insert(triples)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 affected re-inserting a duplicate, got %d", n)
	}
}

func TestDeleteOnlyRemovesKnownTriples(t *testing.T) {
	c, _, _ := openTestCoordinator(t)
	triples := foafTriples()
	if _, err := c.Insert(triples); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	n, err := c.Delete(triples[:1])
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 affected, got %d", n)
	}
}

func TestDeleteOfUnknownTripleIsNoOp(t *testing.T) {
	c, _, _ := openTestCoordinator(t)
	n, err := c.Delete(foafTriples())
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 affected deleting triples never inserted, got %d", n)
	}
}

func TestOnCommitFiresOnlyOnNonEmptyWrites(t *testing.T) {
	c, _, _ := openTestCoordinator(t)
	var calls []int
	c.OnCommit(func(affected int) { calls = append(calls, affected) })

	if _, err := c.Insert(nil); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("expected no OnCommit call for an empty insert, got %v", calls)
	}

	if _, err := c.Insert(foafTriples()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(calls) != 1 || calls[0] != 2 {
		t.Errorf("expected a single OnCommit(2) call, got %v", calls)
	}
}

func TestUpdateInsertMaterializesTemplate(t *testing.T) {
	c, _, _ := openTestCoordinator(t)
	if _, err := c.Insert(foafTriples()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	s := algebra.Variable("s")
	where := &algebra.BGP{Patterns: []*algebra.TriplePattern{
		{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}), Object: algebra.Variable("n")},
	}}
	template := []algebra.ConstructTemplate{
		{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://example.org/seen"}), Object: algebra.Const(rdf.NewBooleanLiteral(true))},
	}

	n, err := c.Update(UpdateInsert, template, where)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 newly materialized triples, got %d", n)
	}
}
