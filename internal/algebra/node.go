// Package algebra is the sum-type-over-node-kind plan tree spec §9 calls
// for: Triple, Path, BGP, Join, LeftJoin, Union, Filter, Project,
// Distinct, Reduced, OrderBy, Slice, Group, Extend, Ask, Construct,
// Describe. It sits between internal/sparqlparser (which builds it from
// SPARQL query text) and internal/exec (which evaluates it); neither the
// parser's grammar nor the executor's iterator machinery leaks into this
// package, following the "pattern abstraction" design note.
package algebra

import "github.com/relkv/rdfstore/rdf"

// Var is a SPARQL variable or a blank-node-as-join-variable. Blank-node
// labels live under the "_:" namespace so they can never collide with a
// user variable of the same textual name (spec §9 "Blank nodes as join
// variables").
type Var struct {
	Name      string
	BlankNode bool
}

func (v Var) Key() string {
	if v.BlankNode {
		return "_:" + v.Name
	}
	return v.Name
}

// Term is either a constant RDF term or a variable.
type Term struct {
	Const rdf.Term
	Var   *Var
}

func Const(t rdf.Term) Term { return Term{Const: t} }
func Variable(name string) Term { return Term{Var: &Var{Name: name}} }
func BNodeVar(label string) Term { return Term{Var: &Var{Name: label, BlankNode: true}} }

func (t Term) IsVar() bool { return t.Var != nil }

// Node is any algebra plan node.
type Node interface {
	planNode()
}

// TriplePattern is a single (s,p,o) pattern, each position a Term, or a
// Path in predicate position for property-path patterns.
type TriplePattern struct {
	Subject   Term
	Predicate Term // zero value means Path is used instead
	Path      Path
	Object    Term
}

func (t *TriplePattern) planNode() {}

// IsPath reports whether Predicate is a property path rather than a
// single term.
func (t *TriplePattern) IsPath() bool { return t.Path != nil }

// BGP is a basic graph pattern: a conjunction of triple patterns,
// evaluated per spec §4.3.1.
type BGP struct {
	Patterns []*TriplePattern
}

func (*BGP) planNode() {}

// JoinStrategy selects how Join evaluates; NestedLoop and Hash are the
// two strategies spec §4.3.3 names, Auto defers to the optimizer.
type JoinStrategy int

const (
	Auto JoinStrategy = iota
	NestedLoop
	Hash
)

type Join struct {
	Left, Right Node
	Strategy    JoinStrategy
}

func (*Join) planNode() {}

// LeftJoin is SPARQL OPTIONAL: left-outer join with an optional inline
// filter (spec §4.3.3).
type LeftJoin struct {
	Left, Right Node
	Filter      Expr // nil means no extra filter
}

func (*LeftJoin) planNode() {}

// Union is the plain union (spec §4.3.4): stream concatenation, no
// variable alignment.
type Union struct {
	Left, Right Node
}

func (*Union) planNode() {}

// UnionAligned is the variable-aligned variant over a fixed Vars set:
// a variable the winning branch did not bind is left out of the emitted
// binding (absent key); no sentinel value is filled in.
type UnionAligned struct {
	Left, Right Node
	Vars        []Var // the full aligned variable set
}

func (*UnionAligned) planNode() {}

// Minus is SPARQL MINUS.
type Minus struct {
	Left, Right Node
}

func (*Minus) planNode() {}

// Filter wraps Input with a three-valued-logic predicate (spec §4.3.5).
type Filter struct {
	Input Node
	Expr  Expr
}

func (*Filter) planNode() {}

// Extend is BIND: adds Var = Expr to every binding (dropping the
// binding's new var, not the binding itself, on evaluation error).
type Extend struct {
	Input Node
	Var   Var
	Expr  Expr
}

func (*Extend) planNode() {}

// Graph constrains Input to a named graph context. Named graphs are out
// of spec scope (Non-goals); this node is retained only so a
// parser/executor that rejects GRAPH can do so with a clear, specific
// UnsupportedFeature error rather than silently mis-evaluating.
type Graph struct {
	Input Node
	Name  Term
}

func (*Graph) planNode() {}

// Project retains only Vars, dropping the rest (spec §4.3.7).
type Project struct {
	Input Node
	Vars  []Var
}

func (*Project) planNode() {}

// Distinct / Reduced dedupe by structural binding equality (spec §4.3.7;
// Reduced is implemented identically, the spec permits but does not
// require removal).
type Distinct struct{ Input Node }
type Reduced struct{ Input Node }

func (*Distinct) planNode() {}
func (*Reduced) planNode()  {}

// OrderCondition is one comparator in an ORDER BY clause.
type OrderCondition struct {
	Expr       Expr
	Descending bool
}

type OrderBy struct {
	Input      Node
	Conditions []OrderCondition
}

func (*OrderBy) planNode() {}

// Slice is LIMIT/OFFSET; either may be absent (nil).
type Slice struct {
	Input  Node
	Offset *int64
	Limit  *int64
}

func (*Slice) planNode() {}

// Aggregate kinds (spec §4.3.8).
type AggregateKind int

const (
	AggCount AggregateKind = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggGroupConcat
	AggSample
)

type Aggregate struct {
	Kind     AggregateKind
	Expr     Expr // nil for COUNT(*)
	Distinct bool
	Sep      string // GROUP_CONCAT separator, default " "
	As       Var
}

// Group is GROUP BY with zero or more aggregate projections and an
// optional HAVING filter (spec §4.3.8).
type Group struct {
	Input      Node
	Keys       []Expr
	Aggregates []Aggregate
	Having     Expr // nil means no HAVING
}

func (*Group) planNode() {}

// Ask / Construct / Describe are the three non-SELECT result shapes
// (spec §4.3.9); SELECT is simply Project (or OrderBy/Slice/Distinct
// wrapping it) evaluated to binding maps, so it has no dedicated node.
type Ask struct{ Input Node }

func (*Ask) planNode() {}

type ConstructTemplate struct {
	Subject, Predicate, Object Term
}

type Construct struct {
	Input    Node
	Template []ConstructTemplate
}

func (*Construct) planNode() {}

type Describe struct {
	Input     Node       // nil when Resources is a fixed list with no WHERE
	Resources []Term     // constants or variables bound by Input
	MaxDepth  int
	MaxTriples int
}

func (*Describe) planNode() {}
