package exec

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/index"
)

// stepForward returns the set of nodes reachable from node via exactly
// one application of path, evaluated in the forward direction (spec
// §4.3.6). Backward traversal is obtained by stepping through
// algebra.Reverse(path) instead; Inverse(Link) is the one base case
// that scans from object to subject.
func stepForward(ctx *Ctx, path algebra.Path, node dict.TermId, depth int) ([]dict.TermId, bool, error) {
	if depth > ctx.MaxPathDepth {
		ctx.emit("path_depth_exceeded", map[string]any{"depth": depth})
		return nil, true, nil
	}
	switch p := path.(type) {
	case *algebra.LinkPath:
		return stepLink(ctx, p.IRI, node)
	case *algebra.InversePath:
		lp, isLink := p.Path.(*algebra.LinkPath)
		if !isLink {
			return stepForward(ctx, algebra.Reverse(p.Path), node, depth)
		}
		pID, ok, err := resolveTerm(ctx, lp.IRI, Binding{})
		if err != nil || !ok {
			return nil, false, err
		}
		it := index.Scan(ctx.Reader, index.SelectIndex(index.Pattern{P: index.Bound(pID), O: index.Bound(node)}))
		defer it.Close()
		var out []dict.TermId
		for it.Next() {
			out = append(out, it.Triple().S)
		}
		return out, false, nil
	case *algebra.SequencePath:
		mids, bounded1, err := stepForward(ctx, p.First, node, depth+1)
		if err != nil {
			return nil, false, err
		}
		seen := map[dict.TermId]bool{}
		var out []dict.TermId
		bounded := bounded1
		for _, mid := range mids {
			nexts, b2, err := stepForward(ctx, p.Second, mid, depth+1)
			if err != nil {
				return nil, false, err
			}
			bounded = bounded || b2
			for _, n := range nexts {
				if !seen[n] {
					seen[n] = true
					out = append(out, n)
				}
			}
		}
		return out, bounded, nil
	case *algebra.AlternativePath:
		a, b1, err := stepForward(ctx, p.First, node, depth+1)
		if err != nil {
			return nil, false, err
		}
		b, b2, err := stepForward(ctx, p.Second, node, depth+1)
		if err != nil {
			return nil, false, err
		}
		seen := map[dict.TermId]bool{}
		var out []dict.TermId
		for _, n := range append(a, b...) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		return out, b1 || b2, nil
	case *algebra.NegatedPropertySetPath:
		return stepNegated(ctx, p.IRIs, node)
	case *algebra.ZeroOrMorePath:
		set, bounded, err := bfsClosure(ctx, p.Path, node, true)
		return bitmapToSlice(set), bounded, err
	case *algebra.OneOrMorePath:
		set, bounded, err := bfsClosure(ctx, p.Path, node, false)
		return bitmapToSlice(set), bounded, err
	case *algebra.ZeroOrOnePath:
		one, bounded, err := stepForward(ctx, p.Path, node, depth+1)
		if err != nil {
			return nil, false, err
		}
		seen := map[dict.TermId]bool{node: true}
		out := []dict.TermId{node}
		for _, n := range one {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		return out, bounded, nil
	default:
		return nil, false, nil
	}
}

func bitmapToSlice(b *roaring64.Bitmap) []dict.TermId {
	out := make([]dict.TermId, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, dict.TermId(it.Next()))
	}
	return out
}

func stepLink(ctx *Ctx, iriTerm algebra.Term, node dict.TermId) ([]dict.TermId, bool, error) {
	pID, ok, err := resolveTerm(ctx, iriTerm, Binding{})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	plan := index.SelectIndex(index.Pattern{S: index.Bound(node), P: index.Bound(pID)})
	it := index.Scan(ctx.Reader, plan)
	defer it.Close()
	var out []dict.TermId
	for it.Next() {
		out = append(out, it.Triple().O)
	}
	return out, false, nil
}

func stepNegated(ctx *Ctx, iris []algebra.Term, node dict.TermId) ([]dict.TermId, bool, error) {
	excluded := map[dict.TermId]bool{}
	for _, t := range iris {
		if id, ok, err := resolveTerm(ctx, t, Binding{}); err == nil && ok {
			excluded[id] = true
		}
	}
	plan := index.SelectIndex(index.Pattern{S: index.Bound(node)})
	it := index.Scan(ctx.Reader, plan)
	defer it.Close()
	var out []dict.TermId
	for it.Next() {
		tr := it.Triple()
		if !excluded[tr.P] {
			out = append(out, tr.O)
		}
	}
	return out, false, nil
}

// bfsClosure computes the set of nodes reachable from start via zero or
// more applications of path (includeIdentity=true, ZeroOrMore) or one or
// more applications (includeIdentity=false, OneOrMore), respecting the
// depth/frontier/visited resource bounds of spec §4.3.6.
func bfsClosure(ctx *Ctx, path algebra.Path, start dict.TermId, includeIdentity bool) (*roaring64.Bitmap, bool, error) {
	visited := roaring64.New()
	bounded := false
	if includeIdentity {
		visited.Add(uint64(start))
	}
	frontier := []dict.TermId{start}
	seenForFrontier := roaring64.New()
	seenForFrontier.Add(uint64(start))
	depth := 0
	for len(frontier) > 0 {
		depth++
		if depth > ctx.MaxPathDepth {
			ctx.emit("path_depth_exceeded", map[string]any{"depth": depth})
			bounded = true
			break
		}
		if err := ctx.checkDeadline(); err != nil {
			return nil, false, err
		}
		var next []dict.TermId
		for _, n := range frontier {
			nbrs, b, err := stepForward(ctx, path, n, depth)
			if err != nil {
				return nil, false, err
			}
			bounded = bounded || b
			for _, m := range nbrs {
				visited.Add(uint64(m))
				if !seenForFrontier.Contains(uint64(m)) {
					seenForFrontier.Add(uint64(m))
					next = append(next, m)
				}
			}
		}
		if visited.GetCardinality() > uint64(ctx.MaxVisited) {
			ctx.emit("path_visited_exceeded", map[string]any{"visited": visited.GetCardinality()})
			bounded = true
			break
		}
		if len(next) > ctx.MaxFrontier {
			ctx.emit("path_frontier_exceeded", map[string]any{"frontier": len(next)})
			bounded = true
			next = next[:ctx.MaxFrontier]
		}
		frontier = next
	}
	return visited, bounded, nil
}

// rootIncludesIdentity reports whether path's outermost operator
// guarantees start==start is itself a zero-length path (ZeroOrMore),
// used to resolve the both-bound, start==target edge case per spec §9's
// open question.
func rootIncludesIdentity(path algebra.Path) bool {
	_, ok := path.(*algebra.ZeroOrMorePath)
	return ok
}

// evaluateBothBound decides whether o is reachable from s via path when
// both endpoints are already bound, using bidirectional BFS when the
// path's root is ZeroOrMore/OneOrMore (spec §4.3.6) and a single
// stepForward application of path otherwise.
func evaluateBothBound(ctx *Ctx, path algebra.Path, s, o dict.TermId) (bool, bool, error) {
	if s == o && rootIncludesIdentity(path) {
		return true, false, nil
	}
	switch path.(type) {
	case *algebra.ZeroOrMorePath, *algebra.OneOrMorePath:
		return bidirectionalBFS(ctx, path, s, o)
	}
	nodes, bounded, err := stepForward(ctx, path, s, 0)
	if err != nil {
		return false, false, err
	}
	for _, n := range nodes {
		if n == o {
			return true, bounded, nil
		}
	}
	return false, bounded, nil
}

// bidirectionalBFS expands forward from s and backward from o (backward
// = forward over algebra.Reverse(path)), always expanding the smaller
// frontier, terminating true on frontier intersection (spec §4.3.6).
func bidirectionalBFS(ctx *Ctx, path algebra.Path, s, o dict.TermId) (bool, bool, error) {
	back := algebra.Reverse(path)
	visitedF, visitedB := roaring64.New(), roaring64.New()
	visitedF.Add(uint64(s))
	visitedB.Add(uint64(o))
	frontierF := []dict.TermId{s}
	frontierB := []dict.TermId{o}
	bounded := false

	for depth := 0; depth < ctx.MaxBidirectionalDepth && len(frontierF) > 0 && len(frontierB) > 0; depth++ {
		if err := ctx.checkDeadline(); err != nil {
			return false, false, err
		}
		forward := len(frontierF) <= len(frontierB)
		var cur []dict.TermId
		var p algebra.Path
		if forward {
			cur, p = frontierF, path
		} else {
			cur, p = frontierB, back
		}
		var next []dict.TermId
		for _, n := range cur {
			nbrs, b, err := stepForward(ctx, p, n, depth)
			if err != nil {
				return false, false, err
			}
			bounded = bounded || b
			for _, m := range nbrs {
				mine, other := visitedF, visitedB
				if !forward {
					mine, other = visitedB, visitedF
				}
				if other.Contains(uint64(m)) {
					return true, bounded, nil
				}
				if !mine.Contains(uint64(m)) {
					mine.Add(uint64(m))
					next = append(next, m)
				}
			}
		}
		if forward {
			frontierF = next
		} else {
			frontierB = next
		}
		if visitedF.GetCardinality()+visitedB.GetCardinality() > uint64(ctx.MaxVisited) || len(next) > ctx.MaxFrontier {
			bounded = true
			break
		}
	}
	return false, bounded, nil
}

// newPathPatternIterator dispatches across the four endpoint binding
// modes spec §4.3.6 names.
func newPathPatternIterator(ctx *Ctx, left Binding, pattern *algebra.TriplePattern) (Iterator, error) {
	sID, sOK, err := resolveTerm(ctx, pattern.Subject, left)
	if err != nil {
		return nil, err
	}
	oID, oOK, err := resolveTerm(ctx, pattern.Object, left)
	if err != nil {
		return nil, err
	}

	switch {
	case sOK && oOK:
		hold, bounded, err := evaluateBothBound(ctx, pattern.Path, sID, oID)
		if err != nil {
			return nil, err
		}
		if !hold {
			return newSliceIter(nil, bounded), nil
		}
		return newSliceIter([]Binding{left.Clone()}, bounded), nil

	case sOK && !oOK:
		set, bounded, err := bfsClosureForMode(ctx, pattern.Path, sID, true)
		if err != nil {
			return nil, err
		}
		return bindingsFromSet(left, pattern.Object, set, bounded), nil

	case !sOK && oOK:
		set, bounded, err := bfsClosureForMode(ctx, algebra.Reverse(pattern.Path), oID, true)
		if err != nil {
			return nil, err
		}
		return bindingsFromSet(left, pattern.Subject, set, bounded), nil

	default:
		// both variable: enumerate distinct subjects up to the resource
		// bound, running a forward closure from each (spec §4.3.6
		// "max unbounded-both-ends results").
		return bothVarIterator(ctx, left, pattern), nil
	}
}

// bfsClosureForMode evaluates path from start: a ZeroOrMore/OneOrMore
// root goes through bfsClosure, any other root is one stepForward
// application.
func bfsClosureForMode(ctx *Ctx, path algebra.Path, start dict.TermId, includeIdentityIfRoot bool) (*roaring64.Bitmap, bool, error) {
	switch path.(type) {
	case *algebra.ZeroOrMorePath, *algebra.OneOrMorePath:
		identity := includeIdentityIfRoot && rootIncludesIdentity(path)
		return bfsClosure(ctx, path, start, identity)
	}
	nodes, bounded, err := stepForward(ctx, path, start, 0)
	if err != nil {
		return nil, false, err
	}
	set := roaring64.New()
	for _, n := range nodes {
		set.Add(uint64(n))
	}
	return set, bounded, nil
}

func bindingsFromSet(left Binding, t algebra.Term, set *roaring64.Bitmap, bounded bool) Iterator {
	var out []Binding
	it := set.Iterator()
	for it.HasNext() {
		b := left.Clone()
		if extend(b, t, dict.TermId(it.Next())) {
			out = append(out, b)
		}
	}
	return newSliceIter(out, bounded)
}

func bothVarIterator(ctx *Ctx, left Binding, pattern *algebra.TriplePattern) Iterator {
	plan := index.SelectIndex(index.Pattern{})
	it := index.Scan(ctx.Reader, plan)
	defer it.Close()
	seenSubjects := map[dict.TermId]bool{}
	var out []Binding
	bounded := false
	count := 0
	for it.Next() {
		s := it.Triple().S
		if seenSubjects[s] {
			continue
		}
		seenSubjects[s] = true
		set, b, err := bfsClosureForMode(ctx, pattern.Path, s, true)
		if err != nil {
			continue
		}
		bounded = bounded || b
		oIt := set.Iterator()
		for oIt.HasNext() {
			o := dict.TermId(oIt.Next())
			binding := left.Clone()
			if extend(binding, pattern.Subject, s) && extend(binding, pattern.Object, o) {
				out = append(out, binding)
				count++
			}
			if count >= ctx.MaxUnboundedBothEnds {
				ctx.emit("path_both_ends_limit", map[string]any{"limit": ctx.MaxUnboundedBothEnds})
				return newSliceIter(out, true)
			}
		}
	}
	return newSliceIter(out, bounded)
}
