// Package optimizer implements spec §4.4: BGP pattern reordering by
// estimated cardinality and the numeric range-selectivity estimator used
// to decide between the index layer's specialized range scan and a
// post-filter.
package optimizer

import (
	"sort"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/stats"
)

// Optimizer holds the statistics snapshot used to cost patterns. A nil
// *stats.Statistics is treated as "no statistics collected yet" and
// falls back to the roughest estimate (triple count alone).
type Optimizer struct {
	Stats *stats.Statistics
}

func New(s *stats.Statistics) *Optimizer { return &Optimizer{Stats: s} }

func (o *Optimizer) tripleCount() uint64 {
	if o.Stats == nil {
		return 1
	}
	return max1(o.Stats.TripleCount)
}

func max1(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	return v
}

func distinctS(s *stats.Statistics) uint64 {
	if s == nil || s.DistinctS == 0 {
		return 1
	}
	return s.DistinctS
}
func distinctP(s *stats.Statistics) uint64 {
	if s == nil || s.DistinctP == 0 {
		return 1
	}
	return s.DistinctP
}
func distinctO(s *stats.Statistics) uint64 {
	if s == nil || s.DistinctO == 0 {
		return 1
	}
	return s.DistinctO
}

// Shape describes one pattern's bound positions and, if its predicate is
// a concrete term, that term's resolved id — the input the §4.4 rule
// table costs.
type Shape struct {
	BoundS, BoundP, BoundO bool
	PredicateID            dict.TermId
	PredicateKnown         bool // true iff the predicate position holds a resolved concrete id
}

// EstimateCardinality implements the §4.4 rule table for a single
// pattern shape.
func (o *Optimizer) EstimateCardinality(sh Shape) float64 {
	switch {
	case sh.BoundS && sh.BoundP && sh.BoundO:
		return 1
	case sh.BoundS && sh.BoundP, sh.BoundP && sh.BoundO:
		if sh.PredicateKnown && o.Stats != nil {
			return float64(o.Stats.PredicateCount(sh.PredicateID))
		}
		return float64(o.tripleCount()) / float64(distinctP(o.Stats))
	case sh.PredicateKnown:
		if o.Stats != nil {
			return float64(o.Stats.PredicateCount(sh.PredicateID))
		}
		return float64(o.tripleCount()) / float64(distinctP(o.Stats))
	case sh.BoundS:
		return float64(o.tripleCount()) / float64(distinctS(o.Stats))
	case sh.BoundO:
		return float64(o.tripleCount()) / float64(distinctO(o.Stats))
	default:
		return float64(o.tripleCount())
	}
}

// ResolveID looks up a pattern's predicate in the dictionary if it is a
// concrete term, for use building a Shape. internal/exec supplies this
// because only it has a live Dictionary handle.
type PredicateResolver func(p *algebra.TriplePattern) (dict.TermId, bool)

type rankedPattern struct {
	pattern *algebra.TriplePattern
	cost    float64
	bound   int
	index   int
}

// ReorderBGP sorts patterns ascending by estimated cardinality. Ties are
// broken by the number of bound positions already implied by earlier
// patterns, then by original order, giving a deterministic ordering
// (spec §4.3.1).
func (o *Optimizer) ReorderBGP(patterns []*algebra.TriplePattern, resolve PredicateResolver) []*algebra.TriplePattern {
	known := map[string]bool{}
	remaining := make([]*algebra.TriplePattern, len(patterns))
	copy(remaining, patterns)

	var ordered []*algebra.TriplePattern
	for len(remaining) > 0 {
		ranked := make([]rankedPattern, len(remaining))
		for i, p := range remaining {
			sh := Shape{BoundS: termBound(p.Subject, known), BoundO: termBound(p.Object, known)}
			if !p.IsPath() {
				sh.BoundP = termBound(p.Predicate, known)
				if id, ok := resolve(p); ok {
					sh.PredicateID, sh.PredicateKnown = id, true
				}
			}
			cost := o.EstimateCardinality(sh)
			nBound := boolCount(sh.BoundS, sh.BoundP, sh.BoundO)
			ranked[i] = rankedPattern{pattern: p, cost: cost, bound: nBound, index: i}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].cost != ranked[j].cost {
				return ranked[i].cost < ranked[j].cost
			}
			if ranked[i].bound != ranked[j].bound {
				return ranked[i].bound > ranked[j].bound
			}
			return ranked[i].index < ranked[j].index
		})
		next := ranked[0].pattern
		ordered = append(ordered, next)
		markBound(next.Subject, known)
		markBound(next.Object, known)
		if !next.IsPath() {
			markBound(next.Predicate, known)
		}

		out := remaining[:0]
		for _, p := range remaining {
			if p != next {
				out = append(out, p)
			}
		}
		remaining = out
	}
	return ordered
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func termBound(t algebra.Term, known map[string]bool) bool {
	if !t.IsVar() {
		return true
	}
	return known[t.Var.Key()]
}

func markBound(t algebra.Term, known map[string]bool) {
	if t.IsVar() {
		known[t.Var.Key()] = true
	}
}

// RangeSelectivity implements spec §4.4's range-selectivity estimator:
// sum(count_i * overlap(i)/bucket_width) across buckets the [min,max]
// range intersects, clamped to [0,1].
func (o *Optimizer) RangeSelectivity(predicate dict.TermId, min, max float64) (float64, bool) {
	if o.Stats == nil {
		return 0, false
	}
	h, ok := o.Stats.NumericHistograms[uint64(predicate)]
	if !ok {
		return 0, false
	}
	return h.Overlap(min, max), true
}

// UseRangeScan decides, per spec §4.2's "Range-query opportunity",
// whether a specialized range scan is worth it over a full predicate
// scan plus post-filter: it is, whenever a histogram exists and the
// estimated selectivity is meaningfully less than 1 (an arbitrary but
// conservative threshold, since any narrowing still avoids decoding
// non-matching objects).
func (o *Optimizer) UseRangeScan(predicate dict.TermId, min, max float64) bool {
	sel, ok := o.RangeSelectivity(predicate, min, max)
	return ok && sel < 0.9
}
