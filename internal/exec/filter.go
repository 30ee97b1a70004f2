package exec

import "github.com/relkv/rdfstore/internal/algebra"

// filterIter wraps Input, yielding only bindings whose Expr evaluates
// true under three-valued logic (spec §4.3.5); type errors exclude the
// binding rather than aborting the query.
type filterIter struct {
	baseIter
	ctx   *Ctx
	input Iterator
	expr  algebra.Expr
}

func evalFilter(ctx *Ctx, f *algebra.Filter) (Iterator, error) {
	in, err := eval(ctx, f.Input)
	if err != nil {
		return nil, err
	}
	return &filterIter{ctx: ctx, input: in, expr: f.Expr}, nil
}

func (f *filterIter) Next() (bool, error) {
	for {
		ok, err := f.input.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if f.input.Bounded() {
			f.bounded = true
		}
		pass, err := evalFilterExpr3VL(f.ctx, f.expr, f.input.Binding())
		if err != nil {
			return false, err
		}
		if pass {
			return true, nil
		}
	}
}

func (f *filterIter) Binding() Binding { return f.input.Binding() }
func (f *filterIter) Close()           { f.input.Close() }

// extendIter implements BIND: adds Var = Expr to every binding,
// dropping only the new variable (never the whole binding) when
// evaluation hits a type error (spec: Extend node doc).
type extendIter struct {
	baseIter
	ctx   *Ctx
	input Iterator
	node  *algebra.Extend
	cur   Binding
}

func evalExtend(ctx *Ctx, ex *algebra.Extend) (Iterator, error) {
	in, err := eval(ctx, ex.Input)
	if err != nil {
		return nil, err
	}
	return &extendIter{ctx: ctx, input: in, node: ex}, nil
}

func (e *extendIter) Next() (bool, error) {
	ok, err := e.input.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if e.input.Bounded() {
		e.bounded = true
	}
	out := e.input.Binding().Clone()
	v, err := evalExpr(e.ctx, e.node.Expr, out)
	if err == nil && v != nil {
		// BIND results are looked up, never interned: a query over a
		// read-only snapshot must not allocate new dictionary entries.
		// A computed value with no existing dictionary entry (e.g. a
		// freshly concatenated string never seen at load time) cannot
		// be bound to a TermId and is dropped for this row, same as
		// any other type error.
		if id, ok, lookErr := e.ctx.Dict.Lookup(v); lookErr == nil && ok {
			out[e.node.Var.Key()] = id
		}
	}
	e.cur = out
	return true, nil
}

func (e *extendIter) Binding() Binding { return e.cur }
func (e *extendIter) Close()           { e.input.Close() }
