package store

import (
	"testing"

	"github.com/relkv/rdfstore/internal/sparqlparser"
	"github.com/relkv/rdfstore/rdf"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func foafTriples() []rdf.Triple {
	alice := &rdf.NamedNode{IRI: "http://example.org/alice"}
	bob := &rdf.NamedNode{IRI: "http://example.org/bob"}
	name := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}
	knows := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/knows"}
	return []rdf.Triple{
		{Subject: alice, Predicate: name, Object: rdf.NewLiteral("Alice")},
		{Subject: bob, Predicate: name, Object: rdf.NewLiteral("Bob")},
		{Subject: alice, Predicate: knows, Object: bob},
	}
}

func TestInsertAndSelectQuery(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Insert(foafTriples())
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 triples inserted, got %d", n)
	}

	result, err := s.Query(`
		SELECT ?name WHERE {
			?s <http://xmlns.com/foaf/0.1/name> ?name .
		}
	`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Kind != sparqlparser.QuerySelect {
		t.Fatalf("expected QuerySelect, got %v", result.Kind)
	}
	if len(result.Select.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(result.Select.Bindings))
	}
}

func TestInsertIsIdempotentForDuplicates(t *testing.T) {
	s := openTestStore(t)
	triples := foafTriples()[:1]

	n1, err := s.Insert(triples)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	n2, err := s.Insert(triples)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if n1 != 1 {
		t.Errorf("expected 1 affected on first insert, got %d", n1)
	}
	if n2 != 0 {
		t.Errorf("expected 0 affected re-inserting a duplicate triple, got %d", n2)
	}
}

func TestDeleteRemovesTriple(t *testing.T) {
	s := openTestStore(t)
	triples := foafTriples()

	if _, err := s.Insert(triples); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	n, err := s.Delete(triples[:1])
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 triple deleted, got %d", n)
	}

	result, err := s.Query(`ASK { <http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" . }`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Ask {
		t.Errorf("expected the deleted triple to no longer match ASK")
	}
}

func TestAskQuery(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(foafTriples()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	result, err := s.Query(`ASK { <http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> . }`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.Kind != sparqlparser.QueryAsk || !result.Ask {
		t.Fatalf("expected ASK to return true, got %+v", result)
	}
}

func TestConstructQuery(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(foafTriples()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	result, err := s.Query(`
		CONSTRUCT { ?s <http://example.org/hasName> ?name }
		WHERE { ?s <http://xmlns.com/foaf/0.1/name> ?name . }
	`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(result.Triples) != 2 {
		t.Fatalf("expected 2 constructed triples, got %d", len(result.Triples))
	}
}

func TestRefreshStatisticsUpdatesTripleCount(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(foafTriples()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.RefreshStatistics(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if got := s.Statistics().TripleCount; got != 3 {
		t.Errorf("expected triple count 3, got %d", got)
	}
}

func TestQueryResultsAreCachedByFingerprint(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(foafTriples()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	q := `SELECT ?name WHERE { ?s <http://xmlns.com/foaf/0.1/name> ?name . }`

	if _, err := s.Query(q); err != nil {
		t.Fatalf("first query failed: %v", err)
	}
	if s.cache.Len() != 1 {
		t.Fatalf("expected 1 cached plan after first query, got %d", s.cache.Len())
	}
	if _, err := s.Query(q); err != nil {
		t.Fatalf("second query failed: %v", err)
	}
	if s.cache.Len() != 1 {
		t.Errorf("expected the second identical query to reuse the cached plan, got %d entries", s.cache.Len())
	}

	if _, err := s.Insert([]rdf.Triple{{
		Subject:   &rdf.NamedNode{IRI: "http://example.org/carol"},
		Predicate: &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"},
		Object:    rdf.NewLiteral("Carol"),
	}}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if s.cache.Len() != 0 {
		t.Errorf("expected a write to invalidate the plan cache, got %d entries", s.cache.Len())
	}
}
