package exec

import "github.com/relkv/rdfstore/internal/algebra"

// concatIter implements plain UNION (spec §4.3.4): stream Left fully,
// then Right, each keeping its own variable set.
type concatIter struct {
	baseIter
	left, right Iterator
	onRight     bool
}

func evalUnion(ctx *Ctx, u *algebra.Union) (Iterator, error) {
	left, err := eval(ctx, u.Left)
	if err != nil {
		return nil, err
	}
	right, err := eval(ctx, u.Right)
	if err != nil {
		left.Close()
		return nil, err
	}
	return &concatIter{left: left, right: right}, nil
}

func (c *concatIter) Next() (bool, error) {
	if !c.onRight {
		ok, err := c.left.Next()
		if err != nil {
			return false, err
		}
		if ok {
			if c.left.Bounded() {
				c.bounded = true
			}
			return true, nil
		}
		c.onRight = true
	}
	ok, err := c.right.Next()
	if err != nil {
		return false, err
	}
	if ok && c.right.Bounded() {
		c.bounded = true
	}
	return ok, nil
}

func (c *concatIter) Binding() Binding {
	if c.onRight {
		return c.right.Binding()
	}
	return c.left.Binding()
}
func (c *concatIter) Close() { c.left.Close(); c.right.Close() }

const unboundSentinel = ":unbound"

// unionAlignedIter implements the variable-aligned UNION over Vars:
// variables the winning branch did not bind are absent from the
// emitted binding (see Binding below).
type unionAlignedIter struct {
	concatIter
	vars []algebra.Var
}

func evalUnionAligned(ctx *Ctx, u *algebra.UnionAligned) (Iterator, error) {
	left, err := eval(ctx, u.Left)
	if err != nil {
		return nil, err
	}
	right, err := eval(ctx, u.Right)
	if err != nil {
		left.Close()
		return nil, err
	}
	return &unionAlignedIter{concatIter: concatIter{left: left, right: right}, vars: u.Vars}, nil
}

// Binding aligns the winning branch's binding to the full Vars set; keys
// for variables the branch never bound are simply absent (callers treat
// absence identically to the ":unbound" sentinel — Project/result
// shaping is where the literal sentinel value, if ever required on the
// wire, would be materialized).
func (u *unionAlignedIter) Binding() Binding {
	inner := u.concatIter.Binding()
	out := make(Binding, len(u.vars))
	for _, v := range u.vars {
		if id, ok := inner[v.Key()]; ok {
			out[v.Key()] = id
		}
	}
	return out
}

// minusIter implements SPARQL MINUS: emit a left binding only if no
// right binding is Compatible with it (spec: Minus node doc). Per the
// SPARQL spec, a right binding that shares no variables with left never
// excludes it (compatibility with an empty overlap is vacuously true
// otherwise, so MINUS explicitly requires a non-empty shared domain).
type minusIter struct {
	baseIter
	ctx   *Ctx
	left  Iterator
	right []Binding
}

func evalMinus(ctx *Ctx, m *algebra.Minus) (Iterator, error) {
	left, err := eval(ctx, m.Left)
	if err != nil {
		return nil, err
	}
	right, err := eval(ctx, m.Right)
	if err != nil {
		left.Close()
		return nil, err
	}
	rows, bounded, err := drain(right)
	if err != nil {
		left.Close()
		return nil, err
	}
	mi := &minusIter{ctx: ctx, left: left, right: rows}
	mi.bounded = bounded
	return mi, nil
}

func (m *minusIter) Next() (bool, error) {
	for {
		ok, err := m.left.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if m.left.Bounded() {
			m.bounded = true
		}
		cand := m.left.Binding()
		excluded := false
		for _, r := range m.right {
			if sharesVariable(cand, r) && Compatible(cand, r) {
				excluded = true
				break
			}
		}
		if !excluded {
			return true, nil
		}
	}
}

func sharesVariable(a, b Binding) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if _, ok := big[k]; ok {
			return true
		}
	}
	return false
}

func (m *minusIter) Binding() Binding { return m.left.Binding() }
func (m *minusIter) Close()           { m.left.Close() }
