package exec

import "github.com/relkv/rdfstore/internal/algebra"

// evalJoin implements spec §4.3.3: nested-loop join for an explicit
// NestedLoop strategy, hash join otherwise (Auto defaults to hash, per
// the spec's "auto uses hash join" rule), falling back to nested-loop
// whenever the two sides share no variables (a Cartesian product gains
// nothing from hashing).
func evalJoin(ctx *Ctx, j *algebra.Join) (Iterator, error) {
	left, err := eval(ctx, j.Left)
	if err != nil {
		return nil, err
	}
	right, err := eval(ctx, j.Right)
	if err != nil {
		return nil, err
	}

	if j.Strategy == algebra.NestedLoop {
		return newNestedLoopJoin(ctx, left, right)
	}

	rightRows, rightBounded, err := drain(right)
	if err != nil {
		return nil, err
	}
	leftRows, leftBounded, err := drain(left)
	if err != nil {
		return nil, err
	}
	left = newSliceIter(leftRows, leftBounded)
	shared := observedSharedVars(rightRows, leftRows)
	if len(shared) == 0 {
		return newNestedLoopJoinRows(ctx, left, rightRows, rightBounded)
	}
	return newHashJoin(ctx, left, rightRows, rightBounded, shared)
}

func observedSharedVars(rows []Binding, other []Binding) []string {
	if len(rows) == 0 || len(other) == 0 {
		return nil
	}
	// Without a static per-subtree variable set, "shared" is the set of
	// keys bound in every materialized row of both sides, so every hash
	// signature is built from values that are actually present; the
	// compatible check on each candidate pair covers any other common
	// variable.
	seen := map[string]int{}
	for _, r := range append(append([]Binding{}, rows...), other...) {
		for k := range r {
			seen[k]++
		}
	}
	keys := make([]string, 0, len(seen))
	for k, n := range seen {
		if n == len(rows)+len(other) {
			keys = append(keys, k)
		}
	}
	return keys
}

// nestedLoopJoin streams left, and for each left binding scans the fully
// materialized right side, emitting every compatible merge.
type nestedLoopJoin struct {
	baseIter
	ctx   *Ctx
	left  Iterator
	right []Binding

	leftBinding Binding
	haveLeft    bool
	idx         int
	cur         Binding
}

func newNestedLoopJoin(ctx *Ctx, left, right Iterator) (*nestedLoopJoin, error) {
	rows, bounded, err := drain(right)
	if err != nil {
		left.Close()
		return nil, err
	}
	return newNestedLoopJoinRows(ctx, left, rows, bounded)
}

func newNestedLoopJoinRows(ctx *Ctx, left Iterator, rows []Binding, bounded bool) (*nestedLoopJoin, error) {
	n := &nestedLoopJoin{ctx: ctx, left: left, right: rows}
	n.bounded = bounded
	return n, nil
}

func (n *nestedLoopJoin) Next() (bool, error) {
	for {
		if err := n.ctx.checkDeadline(); err != nil {
			return false, err
		}
		if !n.haveLeft {
			ok, err := n.left.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			n.leftBinding = n.left.Binding()
			if n.left.Bounded() {
				n.bounded = true
			}
			n.haveLeft = true
			n.idx = 0
		}
		for n.idx < len(n.right) {
			cand := n.right[n.idx]
			n.idx++
			if Compatible(n.leftBinding, cand) {
				n.cur = Merge(n.leftBinding, cand)
				return true, nil
			}
		}
		n.haveLeft = false
	}
}

func (n *nestedLoopJoin) Binding() Binding { return n.cur }
func (n *nestedLoopJoin) Close()           { n.left.Close() }

// hashJoin builds a hash table on the materialized right side keyed by
// the shared-variable signature, then probes it per left binding.
type hashJoin struct {
	baseIter
	ctx   *Ctx
	left  Iterator
	table map[string][]Binding
	keys  []string

	leftBinding Binding
	haveLeft    bool
	bucket      []Binding
	idx         int
	cur         Binding
}

func newHashJoin(ctx *Ctx, left Iterator, rightRows []Binding, rightBounded bool, keys []string) (*hashJoin, error) {
	h := &hashJoin{ctx: ctx, left: left, keys: keys, table: map[string][]Binding{}}
	h.bounded = rightBounded
	for _, r := range rightRows {
		sig := JoinKeySignature(r, keys)
		h.table[sig] = append(h.table[sig], r)
	}
	return h, nil
}

func (h *hashJoin) Next() (bool, error) {
	for {
		if err := h.ctx.checkDeadline(); err != nil {
			return false, err
		}
		if !h.haveLeft {
			ok, err := h.left.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			h.leftBinding = h.left.Binding()
			if h.left.Bounded() {
				h.bounded = true
			}
			sig := JoinKeySignature(h.leftBinding, h.keys)
			h.bucket = h.table[sig]
			h.idx = 0
			h.haveLeft = true
		}
		for h.idx < len(h.bucket) {
			cand := h.bucket[h.idx]
			h.idx++
			if Compatible(h.leftBinding, cand) {
				h.cur = Merge(h.leftBinding, cand)
				return true, nil
			}
		}
		h.haveLeft = false
	}
}

func (h *hashJoin) Binding() Binding { return h.cur }
func (h *hashJoin) Close()           { h.left.Close() }

// leftJoin implements OPTIONAL (spec §4.3.3): for each left binding,
// emit every compatible (and filter-passing, if Filter is set) merge
// with the right side; if none survive, emit the left binding
// unmodified.
type leftJoin struct {
	baseIter
	ctx   *Ctx
	left  Iterator
	right []Binding
	node  *algebra.LeftJoin

	leftBinding Binding
	haveLeft    bool
	idx         int
	matched     bool
	cur         Binding
}

func evalLeftJoin(ctx *Ctx, lj *algebra.LeftJoin) (Iterator, error) {
	left, err := eval(ctx, lj.Left)
	if err != nil {
		return nil, err
	}
	right, err := eval(ctx, lj.Right)
	if err != nil {
		left.Close()
		return nil, err
	}
	rows, bounded, err := drain(right)
	if err != nil {
		left.Close()
		return nil, err
	}
	lj2 := &leftJoin{ctx: ctx, left: left, right: rows, node: lj}
	lj2.bounded = bounded
	return lj2, nil
}

func (l *leftJoin) Next() (bool, error) {
	for {
		if err := l.ctx.checkDeadline(); err != nil {
			return false, err
		}
		if !l.haveLeft {
			ok, err := l.left.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			l.leftBinding = l.left.Binding()
			if l.left.Bounded() {
				l.bounded = true
			}
			l.haveLeft = true
			l.idx = 0
			l.matched = false
		}
		for l.idx < len(l.right) {
			cand := l.right[l.idx]
			l.idx++
			if !Compatible(l.leftBinding, cand) {
				continue
			}
			merged := Merge(l.leftBinding, cand)
			if l.node.Filter != nil {
				ok, err := evalFilterExpr3VL(l.ctx, l.node.Filter, merged)
				if err != nil {
					return false, err
				}
				if !ok {
					continue
				}
			}
			l.matched = true
			l.cur = merged
			return true, nil
		}
		if !l.matched {
			l.cur = l.leftBinding
			l.haveLeft = false
			return true, nil
		}
		l.haveLeft = false
	}
}

func (l *leftJoin) Binding() Binding { return l.cur }
func (l *leftJoin) Close()           { l.left.Close() }
