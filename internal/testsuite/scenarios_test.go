// Package testsuite runs the fixed end-to-end scenarios against the
// public store facade, the way aleksaelezovic-trigo/internal/testsuite
// ran W3C manifest cases against pkg/store — here there is no external
// manifest file, so the scenario table itself is the manifest.
package testsuite

import (
	"fmt"
	"sort"
	"testing"

	"github.com/relkv/rdfstore/rdf"
	"github.com/relkv/rdfstore/store"
)

func ex(local string) *rdf.NamedNode { return &rdf.NamedNode{IRI: "http://example.org/" + local} }

func openScenarioStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory(store.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustInsert(t *testing.T, s *store.Store, triples []rdf.Triple) {
	t.Helper()
	if _, err := s.Insert(triples); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
}

// bindingSignature renders one binding row as a sorted "var=value"
// string so scenario assertions can compare result sets independent of
// projection-column order.
func bindingSignature(b map[string]rdf.Term) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += fmt.Sprintf("%s=%s;", k, b[k].TermString())
	}
	return s
}

func bindingSignatures(rows []map[string]rdf.Term) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = bindingSignature(r)
	}
	sort.Strings(out)
	return out
}

func TestS1BGP(t *testing.T) {
	s := openScenarioStore(t)
	mustInsert(t, s, []rdf.Triple{{Subject: ex("a"), Predicate: ex("p"), Object: ex("b")}})

	res, err := s.Query(`SELECT ?x WHERE { <http://example.org/a> <http://example.org/p> ?x . }`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Select.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(res.Select.Bindings))
	}
	if !res.Select.Bindings[0]["x"].Equals(ex("b")) {
		t.Errorf("expected x=ex:b, got %v", res.Select.Bindings[0]["x"])
	}
}

func TestS2Join(t *testing.T) {
	s := openScenarioStore(t)
	mustInsert(t, s, []rdf.Triple{
		{Subject: ex("a"), Predicate: ex("p"), Object: ex("b")},
		{Subject: ex("b"), Predicate: ex("p"), Object: ex("c")},
	})

	res, err := s.Query(`
		SELECT ?y WHERE {
			<http://example.org/a> <http://example.org/p> ?x .
			?x <http://example.org/p> ?y .
		}
	`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Select.Bindings) != 1 || !res.Select.Bindings[0]["y"].Equals(ex("c")) {
		t.Fatalf("expected a single binding y=ex:c, got %+v", res.Select.Bindings)
	}
}

func TestS3Optional(t *testing.T) {
	s := openScenarioStore(t)
	mustInsert(t, s, []rdf.Triple{
		{Subject: ex("a"), Predicate: ex("p"), Object: ex("b")},
		{Subject: ex("b"), Predicate: ex("p"), Object: ex("c")},
		{Subject: ex("a"), Predicate: ex("p"), Object: ex("d")},
	})

	res, err := s.Query(`
		SELECT ?x ?y WHERE {
			<http://example.org/a> <http://example.org/p> ?x .
			OPTIONAL { ?x <http://example.org/p> ?y . }
		}
	`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	got := bindingSignatures(res.Select.Bindings)
	want := bindingSignatures([]map[string]rdf.Term{
		{"x": ex("b"), "y": ex("c")},
		{"x": ex("d")},
	})
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestS4Union(t *testing.T) {
	s := openScenarioStore(t)
	mustInsert(t, s, []rdf.Triple{
		{Subject: ex("a"), Predicate: ex("p"), Object: ex("b")},
		{Subject: ex("b"), Predicate: ex("p"), Object: ex("c")},
	})

	res, err := s.Query(`
		SELECT ?x WHERE {
			{ <http://example.org/a> <http://example.org/p> ?x . }
			UNION
			{ <http://example.org/b> <http://example.org/p> ?x . }
		}
	`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	got := bindingSignatures(res.Select.Bindings)
	want := bindingSignatures([]map[string]rdf.Term{{"x": ex("b")}, {"x": ex("c")}})
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestS5RecursivePath(t *testing.T) {
	s := openScenarioStore(t)
	mustInsert(t, s, []rdf.Triple{
		{Subject: ex("a"), Predicate: ex("p"), Object: ex("b")},
		{Subject: ex("b"), Predicate: ex("p"), Object: ex("c")},
	})

	plus, err := s.Query(`SELECT ?x WHERE { <http://example.org/a> <http://example.org/p>+ ?x . }`)
	if err != nil {
		t.Fatalf("p+ query failed: %v", err)
	}
	gotPlus := bindingSignatures(plus.Select.Bindings)
	wantPlus := bindingSignatures([]map[string]rdf.Term{{"x": ex("b")}, {"x": ex("c")}})
	if len(gotPlus) != len(wantPlus) || gotPlus[0] != wantPlus[0] || gotPlus[1] != wantPlus[1] {
		t.Fatalf("p+ got %v, want %v", gotPlus, wantPlus)
	}

	star, err := s.Query(`SELECT ?x WHERE { <http://example.org/a> <http://example.org/p>* ?x . }`)
	if err != nil {
		t.Fatalf("p* query failed: %v", err)
	}
	if len(star.Select.Bindings) != 3 {
		t.Fatalf("p* expected 3 bindings (a,b,c), got %d: %+v", len(star.Select.Bindings), star.Select.Bindings)
	}
}

func TestS6Aggregation(t *testing.T) {
	s := openScenarioStore(t)
	mustInsert(t, s, []rdf.Triple{
		{Subject: ex("a"), Predicate: ex("q"), Object: rdf.NewIntegerLiteral(1)},
		{Subject: ex("a"), Predicate: ex("q"), Object: rdf.NewIntegerLiteral(2)},
	})

	res, err := s.Query(`
		SELECT (COUNT(?y) AS ?n) (SUM(?y) AS ?s) WHERE {
			<http://example.org/a> <http://example.org/q> ?y .
		}
	`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Select.Bindings) != 1 {
		t.Fatalf("expected 1 aggregate row, got %d", len(res.Select.Bindings))
	}
	row := res.Select.Bindings[0]
	n, ok := row["n"].(*rdf.Literal)
	if !ok || n.Value != "2" {
		t.Errorf("expected n=2, got %+v", row["n"])
	}
	sum, ok := row["s"].(*rdf.Literal)
	if !ok || sum.Value != "3" {
		t.Errorf("expected s=3, got %+v", row["s"])
	}
}

func TestS7RangeViaNumericHistogram(t *testing.T) {
	s := openScenarioStore(t)
	triples := make([]rdf.Triple, 0, 1000)
	for k := 0; k < 1000; k++ {
		triples = append(triples, rdf.Triple{
			Subject:   ex(fmt.Sprintf("i%d", k)),
			Predicate: ex("age"),
			Object:    rdf.NewIntegerLiteral(int64(k)),
		})
	}
	mustInsert(t, s, triples)
	if err := s.RefreshStatistics(); err != nil {
		t.Fatalf("RefreshStatistics failed: %v", err)
	}

	res, err := s.Query(`
		SELECT ?i WHERE {
			?i <http://example.org/age> ?a .
			FILTER(?a >= 100 && ?a < 200)
		}
	`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Select.Bindings) != 100 {
		t.Fatalf("expected exactly 100 bindings in [100,200), got %d", len(res.Select.Bindings))
	}
}
