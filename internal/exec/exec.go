package exec

import (
	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/errs"
)

// eval dispatches any algebra.Node to its iterator-producing evaluator.
// This is the one place every node kind in internal/algebra/node.go is
// wired to its spec §4.3 evaluation rule.
func eval(ctx *Ctx, node algebra.Node) (Iterator, error) {
	switch n := node.(type) {
	case *algebra.BGP:
		return evalBGP(ctx, n)
	case *algebra.TriplePattern:
		return evalBGP(ctx, &algebra.BGP{Patterns: []*algebra.TriplePattern{n}})
	case *algebra.Join:
		return evalJoin(ctx, n)
	case *algebra.LeftJoin:
		return evalLeftJoin(ctx, n)
	case *algebra.Union:
		return evalUnion(ctx, n)
	case *algebra.UnionAligned:
		return evalUnionAligned(ctx, n)
	case *algebra.Minus:
		return evalMinus(ctx, n)
	case *algebra.Filter:
		return evalFilter(ctx, n)
	case *algebra.Extend:
		return evalExtend(ctx, n)
	case *algebra.Project:
		return evalProject(ctx, n)
	case *algebra.Distinct:
		return evalDistinct(ctx, n)
	case *algebra.Reduced:
		return evalReduced(ctx, n)
	case *algebra.OrderBy:
		return evalOrderBy(ctx, n)
	case *algebra.Slice:
		return evalSlice(ctx, n)
	case *algebra.Group:
		return evalGroup(ctx, n)
	case *algebra.Graph:
		return nil, errs.New(errs.CodeUnsupportedFeature, "named graphs are not supported")
	default:
		return nil, errs.New(errs.CodeUnsupportedFeature, "unsupported plan node")
	}
}

// compatibleFilterIter filters an independently-evaluated sub-pattern
// down to solutions compatible with an outer binding; this is how
// EXISTS/NOT EXISTS (spec: ExistsExpr doc) sees the enclosing query's
// already-bound variables without re-planning the sub-pattern against
// them.
type compatibleFilterIter struct {
	baseIter
	inner Iterator
	outer Binding
	cur   Binding
}

func evalWithOuterBinding(ctx *Ctx, pattern algebra.Node, outer Binding) (Iterator, error) {
	it, err := eval(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return &compatibleFilterIter{inner: it, outer: outer}, nil
}

func (c *compatibleFilterIter) Next() (bool, error) {
	for {
		ok, err := c.inner.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if c.inner.Bounded() {
			c.bounded = true
		}
		cand := c.inner.Binding()
		if Compatible(c.outer, cand) {
			c.cur = Merge(c.outer, cand)
			return true, nil
		}
	}
}

func (c *compatibleFilterIter) Binding() Binding { return c.cur }
func (c *compatibleFilterIter) Close()           { c.inner.Close() }
