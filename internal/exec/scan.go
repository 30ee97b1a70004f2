package exec

import (
	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/index"
)

// resolveTerm turns an algebra.Term into a dict.TermId given the current
// binding: a variable already bound resolves to its id; a variable not
// yet bound returns ok=false (it is a Var slot in the index pattern); a
// constant resolves via the dictionary (spec §4.1's Lookup, read-only).
func resolveTerm(ctx *Ctx, t algebra.Term, b Binding) (dict.TermId, bool, error) {
	if t.IsVar() {
		id, ok := b[t.Var.Key()]
		return id, ok, nil
	}
	id, ok, err := ctx.Dict.Lookup(t.Const)
	if err != nil {
		return 0, false, err
	}
	return id, ok, nil
}

func slot(id dict.TermId, ok bool) index.Slot {
	if !ok {
		return index.Var()
	}
	return index.Bound(id)
}

// extend implements spec §4.3.2's binding-extension rule for one
// position: unbound variable binds; already-bound variable must match;
// blank-node-as-join-variable behaves like a variable (its Var.BlankNode
// flag only affects the key namespace, handled by Var.Key()); constants
// are already forced by the scan. Returns ok=false if the candidate is
// incompatible.
func extend(out Binding, t algebra.Term, id dict.TermId) bool {
	if !t.IsVar() {
		return true
	}
	key := t.Var.Key()
	if existing, has := out[key]; has {
		return existing == id
	}
	out[key] = id
	return true
}

// singleEmptyBinding is the BGP seed stream (spec §4.3.1 step 2).
func singleEmptyBinding() Iterator {
	return newSliceIter([]Binding{{}}, false)
}

// patternJoinIterator evaluates one triple (or path) pattern against
// every binding the left iterator yields, which is exactly the BGP
// nested substitute-scan-extend loop of spec §4.3.1 step 3.
type patternJoinIterator struct {
	baseIter
	ctx     *Ctx
	left    Iterator
	pattern *algebra.TriplePattern

	leftClosed  bool
	leftBinding Binding
	cur         Iterator // per-left-binding sub-iterator (index scan or path)
}

func newPatternJoinIterator(ctx *Ctx, left Iterator, pattern *algebra.TriplePattern) *patternJoinIterator {
	return &patternJoinIterator{ctx: ctx, left: left, pattern: pattern}
}

func (p *patternJoinIterator) Next() (bool, error) {
	for {
		if p.cur == nil {
			if err := p.ctx.checkDeadline(); err != nil {
				return false, err
			}
			ok, err := p.left.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			p.leftBinding = p.left.Binding().Clone()
			if p.left.Bounded() {
				p.bounded = true
			}
			sub, err := p.openSub(p.leftBinding)
			if err != nil {
				return false, err
			}
			p.cur = sub
		}
		ok, err := p.cur.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			p.cur.Close()
			if p.cur.Bounded() {
				p.bounded = true
			}
			p.cur = nil
			continue
		}
		return true, nil
	}
}

func (p *patternJoinIterator) Binding() Binding { return p.cur.Binding() }
func (p *patternJoinIterator) Close() {
	p.left.Close()
	if p.cur != nil {
		p.cur.Close()
	}
}

func (p *patternJoinIterator) openSub(left Binding) (Iterator, error) {
	if p.pattern.IsPath() {
		return newPathPatternIterator(p.ctx, left, p.pattern)
	}
	sID, sOK, err := resolveTerm(p.ctx, p.pattern.Subject, left)
	if err != nil {
		return nil, err
	}
	pID, pOK, err := resolveTerm(p.ctx, p.pattern.Predicate, left)
	if err != nil {
		return nil, err
	}
	oID, oOK, err := resolveTerm(p.ctx, p.pattern.Object, left)
	if err != nil {
		return nil, err
	}
	// A constant that failed to resolve (absent from the dictionary)
	// can never match anything; yield an empty sub-stream rather than
	// falling back to a variable slot.
	if (!p.pattern.Subject.IsVar() && !sOK) || (!p.pattern.Predicate.IsVar() && !pOK) || (!p.pattern.Object.IsVar() && !oOK) {
		return newSliceIter(nil, false), nil
	}
	plan := index.SelectIndex(index.Pattern{S: slot(sID, sOK), P: slot(pID, pOK), O: slot(oID, oOK)})
	scan := index.Scan(p.ctx.Reader, plan)
	return &scanExtendIterator{ctx: p.ctx, left: left, pattern: p.pattern, scan: scan}, nil
}

// scanExtendIterator wraps a raw index scan, applying the binding
// extension rule per matched id-triple and skipping incompatible
// candidates (spec §4.3.2).
type scanExtendIterator struct {
	baseIter
	ctx           *Ctx
	left          Binding
	pattern       *algebra.TriplePattern
	scan          *index.ScanIterator
	cachedBinding Binding
}

func (s *scanExtendIterator) Next() (bool, error) {
	for s.scan.Next() {
		t := s.scan.Triple()
		out := s.left.Clone()
		if extend(out, s.pattern.Subject, t.S) &&
			extend(out, s.pattern.Predicate, t.P) &&
			extend(out, s.pattern.Object, t.O) {
			s.cachedBinding = out
			return true, nil
		}
	}
	return false, nil
}

func (s *scanExtendIterator) Binding() Binding { return s.cachedBinding }
func (s *scanExtendIterator) Close()           { s.scan.Close() }
