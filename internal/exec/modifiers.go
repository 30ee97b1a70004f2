package exec

import (
	"sort"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/errs"
)

// projectIter implements spec §4.3.7: retain only Vars, dropping
// everything else from each binding.
type projectIter struct {
	baseIter
	input Iterator
	vars  []algebra.Var
	cur   Binding
}

func evalProject(ctx *Ctx, p *algebra.Project) (Iterator, error) {
	in, err := eval(ctx, p.Input)
	if err != nil {
		return nil, err
	}
	return &projectIter{input: in, vars: p.Vars}, nil
}

func (p *projectIter) Next() (bool, error) {
	ok, err := p.input.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if p.input.Bounded() {
		p.bounded = true
	}
	src := p.input.Binding()
	out := make(Binding, len(p.vars))
	for _, v := range p.vars {
		if id, ok := src[v.Key()]; ok {
			out[v.Key()] = id
		}
	}
	p.cur = out
	return true, nil
}

func (p *projectIter) Binding() Binding { return p.cur }
func (p *projectIter) Close()           { p.input.Close() }

// evalDistinct and evalReduced both dedupe by structural signature (spec
// §4.3.7 treats Reduced identically since removal is permitted, not
// required); materializes and errors LimitExceeded above
// ctx.MaxDistinctBindings.
func evalDistinctLike(ctx *Ctx, input algebra.Node) (Iterator, error) {
	in, err := eval(ctx, input)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []Binding
	bounded := false
	for {
		ok, err := in.Next()
		if err != nil {
			in.Close()
			return nil, err
		}
		if !ok {
			break
		}
		if in.Bounded() {
			bounded = true
		}
		b := in.Binding()
		sig := Signature(b)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, b.Clone())
		if len(out) > ctx.MaxDistinctBindings {
			in.Close()
			return nil, errs.New(errs.CodeLimitExceeded, "distinct binding limit exceeded")
		}
	}
	in.Close()
	return newSliceIter(out, bounded), nil
}

func evalDistinct(ctx *Ctx, d *algebra.Distinct) (Iterator, error) { return evalDistinctLike(ctx, d.Input) }
func evalReduced(ctx *Ctx, r *algebra.Reduced) (Iterator, error)   { return evalDistinctLike(ctx, r.Input) }

// evalOrderBy materializes and stable-sorts by Conditions, implementing
// SPARQL term ordering (unbound < blank node < IRI < literal, numeric
// literals compared by value, everything else lexically) and erroring
// LimitExceeded above ctx.MaxOrderByBindings.
func evalOrderBy(ctx *Ctx, o *algebra.OrderBy) (Iterator, error) {
	in, err := eval(ctx, o.Input)
	if err != nil {
		return nil, err
	}
	rows, bounded, err := drain(in)
	if err != nil {
		return nil, err
	}
	if len(rows) > ctx.MaxOrderByBindings {
		return nil, errs.New(errs.CodeLimitExceeded, "order by binding limit exceeded")
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, cond := range o.Conditions {
			vi, erri := evalExpr(ctx, cond.Expr, rows[i])
			vj, errj := evalExpr(ctx, cond.Expr, rows[j])
			if erri != nil {
				vi = nil
			}
			if errj != nil {
				vj = nil
			}
			c := compareOrderTerms(vi, vj)
			if c == 0 {
				continue
			}
			if cond.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return newSliceIter(rows, bounded), nil
}

// evalSlice applies LIMIT/OFFSET.
func evalSlice(ctx *Ctx, s *algebra.Slice) (Iterator, error) {
	in, err := eval(ctx, s.Input)
	if err != nil {
		return nil, err
	}
	return &sliceOpIter{ctx: ctx, input: in, offset: s.Offset, limit: s.Limit}, nil
}

type sliceOpIter struct {
	baseIter
	ctx      *Ctx
	input    Iterator
	offset   *int64
	limit    *int64
	skipped  int64
	emitted  int64
	started  bool
}

func (s *sliceOpIter) Next() (bool, error) {
	if !s.started {
		s.started = true
		want := int64(0)
		if s.offset != nil {
			want = *s.offset
		}
		for s.skipped < want {
			ok, err := s.input.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			s.skipped++
		}
	}
	if s.limit != nil && s.emitted >= *s.limit {
		return false, nil
	}
	ok, err := s.input.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if s.input.Bounded() {
		s.bounded = true
	}
	s.emitted++
	return true, nil
}

func (s *sliceOpIter) Binding() Binding { return s.input.Binding() }
func (s *sliceOpIter) Close()           { s.input.Close() }
