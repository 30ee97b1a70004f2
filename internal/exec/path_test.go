package exec

import (
	"sort"
	"testing"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/rdf"
)

const knowsIRI = "http://xmlns.com/foaf/0.1/knows"

func knowsChain() []rdf.Triple {
	node := func(n string) *rdf.NamedNode { return &rdf.NamedNode{IRI: "http://example.org/" + n} }
	link := func(a, b string) rdf.Triple {
		return rdf.Triple{Subject: node(a), Predicate: &rdf.NamedNode{IRI: knowsIRI}, Object: node(b)}
	}
	return []rdf.Triple{
		link("alice", "bob"),
		link("bob", "carol"),
		link("carol", "dave"),
	}
}

func objectNames(bindings []map[string]rdf.Term, varName string) []string {
	var out []string
	for _, b := range bindings {
		if nn, ok := b[varName].(*rdf.NamedNode); ok {
			out = append(out, nn.IRI)
		}
	}
	sort.Strings(out)
	return out
}

func TestEvalSelectOneOrMorePathExcludesStart(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, knowsChain())

	pattern := &algebra.TriplePattern{
		Subject: algebra.Const(&rdf.NamedNode{IRI: "http://example.org/alice"}),
		Path:    &algebra.OneOrMorePath{Path: &algebra.LinkPath{IRI: algebra.Const(&rdf.NamedNode{IRI: knowsIRI})}},
		Object:  algebra.Variable("reached"),
	}
	rows, _, err := EvalSelect(ctx, &algebra.Project{Input: pattern, Vars: []algebra.Var{{Name: "reached"}}})
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	got := objectNames(rows, "reached")
	want := []string{"http://example.org/bob", "http://example.org/carol", "http://example.org/dave"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestEvalSelectZeroOrMorePathIncludesStart(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, knowsChain())

	pattern := &algebra.TriplePattern{
		Subject: algebra.Const(&rdf.NamedNode{IRI: "http://example.org/alice"}),
		Path:    &algebra.ZeroOrMorePath{Path: &algebra.LinkPath{IRI: algebra.Const(&rdf.NamedNode{IRI: knowsIRI})}},
		Object:  algebra.Variable("reached"),
	}
	rows, _, err := EvalSelect(ctx, &algebra.Project{Input: pattern, Vars: []algebra.Var{{Name: "reached"}}})
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	got := objectNames(rows, "reached")
	if len(got) != 4 {
		t.Fatalf("expected alice plus 3 reachable nodes, got %v", got)
	}
}

func TestEvalAskBothEndpointsBoundOverRecursivePath(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, knowsChain())

	reachable := &algebra.TriplePattern{
		Subject: algebra.Const(&rdf.NamedNode{IRI: "http://example.org/alice"}),
		Path:    &algebra.OneOrMorePath{Path: &algebra.LinkPath{IRI: algebra.Const(&rdf.NamedNode{IRI: knowsIRI})}},
		Object:  algebra.Const(&rdf.NamedNode{IRI: "http://example.org/dave"}),
	}
	ok, err := EvalAsk(ctx, &algebra.Ask{Input: reachable})
	if err != nil {
		t.Fatalf("EvalAsk failed: %v", err)
	}
	if !ok {
		t.Errorf("expected dave to be reachable from alice via one-or-more knows")
	}

	unreachable := &algebra.TriplePattern{
		Subject: algebra.Const(&rdf.NamedNode{IRI: "http://example.org/dave"}),
		Path:    &algebra.OneOrMorePath{Path: &algebra.LinkPath{IRI: algebra.Const(&rdf.NamedNode{IRI: knowsIRI})}},
		Object:  algebra.Const(&rdf.NamedNode{IRI: "http://example.org/alice"}),
	}
	ok, err = EvalAsk(ctx, &algebra.Ask{Input: unreachable})
	if err != nil {
		t.Fatalf("EvalAsk failed: %v", err)
	}
	if ok {
		t.Errorf("expected alice to not be reachable from dave (path is directional)")
	}
}
