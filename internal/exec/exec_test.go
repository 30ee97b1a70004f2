package exec

import (
	"testing"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/index"
	"github.com/relkv/rdfstore/internal/kv"
	"github.com/relkv/rdfstore/internal/optimizer"
	"github.com/relkv/rdfstore/rdf"
)

func openTestCtx(t *testing.T) (*kv.Store, *dict.Dictionary, *Ctx) {
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
	return store, d, NewCtx(store, d, optimizer.New(nil))
}

func insertTriples(t *testing.T, store *kv.Store, d *dict.Dictionary, triples []rdf.Triple) {
	t.Helper()
	for _, tr := range triples {
		var ops []kv.Op
		ids := make([]dict.TermId, 3)
		for i, term := range []rdf.Term{tr.Subject, tr.Predicate, tr.Object} {
			id, newOps, err := d.EncodeNew(term)
			if err != nil {
				t.Fatalf("EncodeNew(%v) failed: %v", term, err)
			}
			ids[i] = id
			ops = append(ops, newOps...)
		}
		ops = append(ops, index.Insert(index.Triple{S: ids[0], P: ids[1], O: ids[2]})...)
		if err := store.WriteBatch(ops, true); err != nil {
			t.Fatalf("WriteBatch failed: %v", err)
		}
	}
}

func foafFixture() []rdf.Triple {
	alice := &rdf.NamedNode{IRI: "http://example.org/alice"}
	bob := &rdf.NamedNode{IRI: "http://example.org/bob"}
	name := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}
	age := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/age"}
	knows := &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/knows"}
	return []rdf.Triple{
		{Subject: alice, Predicate: name, Object: rdf.NewLiteral("Alice")},
		{Subject: alice, Predicate: age, Object: rdf.NewIntegerLiteral(30)},
		{Subject: bob, Predicate: name, Object: rdf.NewLiteral("Bob")},
		{Subject: alice, Predicate: knows, Object: bob},
	}
}

func TestEvalSelectSimpleBGP(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	bgp := &algebra.BGP{Patterns: []*algebra.TriplePattern{
		{Subject: algebra.Variable("s"), Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}), Object: algebra.Variable("n")},
	}}
	rows, bounded, err := EvalSelect(ctx, bgp)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if bounded {
		t.Errorf("did not expect a bounded result")
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestEvalSelectJoinAcrossTwoPatterns(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	s := algebra.Variable("s")
	bgp := &algebra.BGP{Patterns: []*algebra.TriplePattern{
		{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}), Object: algebra.Variable("n")},
		{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/age"}), Object: algebra.Variable("a")},
	}}
	rows, _, err := EvalSelect(ctx, bgp)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row (only alice has both name and age), got %d", len(rows))
	}
	if rows[0]["n"].TermString() != `"Alice"` {
		t.Errorf("unexpected name binding: %v", rows[0]["n"])
	}
}

func TestEvalFilterDropsNonMatchingRows(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	pattern := &algebra.TriplePattern{
		Subject:   algebra.Variable("s"),
		Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/age"}),
		Object:    algebra.Variable("a"),
	}
	filter := &algebra.Filter{
		Input: pattern,
		Expr: &algebra.BinaryExpr{
			Op:    algebra.OpGreater,
			Left:  &algebra.VarExpr{Var: algebra.Var{Name: "a"}},
			Right: &algebra.LiteralExpr{Term: rdf.NewIntegerLiteral(100)},
		},
	}
	rows, _, err := EvalSelect(ctx, filter)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows to pass age > 100, got %d", len(rows))
	}
}

func TestEvalLeftJoinKeepsUnmatchedLeftRows(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	s := algebra.Variable("s")
	left := &algebra.TriplePattern{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}), Object: algebra.Variable("n")}
	right := &algebra.TriplePattern{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/age"}), Object: algebra.Variable("a")}

	lj := &algebra.LeftJoin{Left: left, Right: right}
	rows, _, err := EvalSelect(ctx, lj)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (alice with age, bob without), got %d", len(rows))
	}
	var bobRow map[string]rdf.Term
	for _, r := range rows {
		if r["n"].TermString() == `"Bob"` {
			bobRow = r
		}
	}
	if bobRow == nil {
		t.Fatalf("expected a row for Bob")
	}
	if _, ok := bobRow["a"]; ok {
		t.Errorf("expected Bob's age to remain unbound, got %v", bobRow["a"])
	}
}

func TestEvalUnionConcatenatesBothBranches(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	left := &algebra.TriplePattern{Subject: algebra.Variable("s"), Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}), Object: algebra.Variable("v")}
	right := &algebra.TriplePattern{Subject: algebra.Variable("s"), Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/age"}), Object: algebra.Variable("v")}
	union := &algebra.Union{Left: left, Right: right}

	rows, _, err := EvalSelect(ctx, union)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected 3 rows (2 names + 1 age), got %d", len(rows))
	}
}

func TestEvalDistinctDedupesBindings(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())
	insertTriples(t, store, d, []rdf.Triple{
		{Subject: &rdf.NamedNode{IRI: "http://example.org/carol"}, Predicate: &rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/knows"}, Object: &rdf.NamedNode{IRI: "http://example.org/bob"}},
	})

	pattern := &algebra.TriplePattern{
		Subject:   algebra.Variable("s"),
		Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/knows"}),
		Object:    algebra.Variable("o"),
	}
	project := &algebra.Project{Input: pattern, Vars: []algebra.Var{{Name: "o"}}}
	distinct := &algebra.Distinct{Input: project}

	rows, _, err := EvalSelect(ctx, distinct)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected exactly 1 distinct object (bob, known by both alice and carol), got %d", len(rows))
	}
}

func TestEvalSliceAppliesLimitAndOffset(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	for i := 0; i < 5; i++ {
		insertTriples(t, store, d, []rdf.Triple{
			{Subject: &rdf.NamedNode{IRI: "http://example.org/s"}, Predicate: &rdf.NamedNode{IRI: "http://example.org/p"}, Object: rdf.NewIntegerLiteral(int64(i))},
		})
	}
	pattern := &algebra.TriplePattern{Subject: algebra.Variable("s"), Predicate: algebra.Variable("p"), Object: algebra.Variable("o")}
	offset := int64(1)
	limit := int64(2)
	slice := &algebra.Slice{Input: pattern, Offset: &offset, Limit: &limit}

	rows, _, err := EvalSelect(ctx, slice)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows after LIMIT 2 OFFSET 1, got %d", len(rows))
	}
}

func TestEvalGroupCountAggregate(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	pattern := &algebra.TriplePattern{
		Subject:   algebra.Variable("s"),
		Predicate: algebra.Variable("p"),
		Object:    algebra.Variable("o"),
	}
	group := &algebra.Group{
		Input: pattern,
		Keys:  []algebra.Expr{&algebra.VarExpr{Var: algebra.Var{Name: "s"}}},
		Aggregates: []algebra.Aggregate{
			{Kind: algebra.AggCount, As: algebra.Var{Name: "n"}},
		},
	}
	rows, _, err := EvalSelect(ctx, group)
	if err != nil {
		t.Fatalf("EvalSelect failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups (alice, bob), got %d", len(rows))
	}
	var total int64
	for _, r := range rows {
		lit, ok := r["n"].(*rdf.Literal)
		if !ok {
			t.Fatalf("expected the count to be a literal, got %T", r["n"])
		}
		if lit.Value == "3" {
			total++
		}
	}
	if total != 1 {
		t.Errorf("expected exactly one group (alice) with count 3, got %d matching groups", total)
	}
}

func TestEvalAskReturnsTrueWhenPatternMatches(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	ask := &algebra.Ask{Input: &algebra.TriplePattern{
		Subject:   algebra.Const(&rdf.NamedNode{IRI: "http://example.org/alice"}),
		Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}),
		Object:    algebra.Const(rdf.NewLiteral("Alice")),
	}}
	result, err := EvalAsk(ctx, ask)
	if err != nil {
		t.Fatalf("EvalAsk failed: %v", err)
	}
	if !result {
		t.Errorf("expected ASK to return true")
	}
}

func TestEvalAskReturnsFalseWhenNoMatch(t *testing.T) {
	_, _, ctx := openTestCtx(t)
	ask := &algebra.Ask{Input: &algebra.TriplePattern{
		Subject:   algebra.Variable("s"),
		Predicate: algebra.Variable("p"),
		Object:    algebra.Variable("o"),
	}}
	result, err := EvalAsk(ctx, ask)
	if err != nil {
		t.Fatalf("EvalAsk failed: %v", err)
	}
	if result {
		t.Errorf("expected ASK over an empty store to return false")
	}
}

func TestEvalConstructInstantiatesTemplate(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	s := algebra.Variable("s")
	where := &algebra.TriplePattern{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://xmlns.com/foaf/0.1/name"}), Object: algebra.Variable("n")}
	c := &algebra.Construct{
		Input: where,
		Template: []algebra.ConstructTemplate{
			{Subject: s, Predicate: algebra.Const(&rdf.NamedNode{IRI: "http://example.org/hasName"}), Object: algebra.Variable("n")},
		},
	}
	triples, _, err := EvalConstruct(ctx, c)
	if err != nil {
		t.Fatalf("EvalConstruct failed: %v", err)
	}
	if len(triples) != 2 {
		t.Errorf("expected 2 constructed triples, got %d", len(triples))
	}
}

func TestEvalDescribeCollectsResourceTriples(t *testing.T) {
	store, d, ctx := openTestCtx(t)
	insertTriples(t, store, d, foafFixture())

	desc := &algebra.Describe{
		Resources: []algebra.Term{algebra.Const(&rdf.NamedNode{IRI: "http://example.org/alice"})},
	}
	triples, _, err := EvalDescribe(ctx, desc)
	if err != nil {
		t.Fatalf("EvalDescribe failed: %v", err)
	}
	if len(triples) != 3 {
		t.Errorf("expected 3 triples describing alice (name, age, knows), got %d", len(triples))
	}
}
