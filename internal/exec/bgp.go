package exec

import (
	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
)

// evalBGP implements spec §4.3.1: reorder patterns by ascending
// estimated cardinality, seed with a single empty binding, then chain a
// patternJoinIterator per pattern in order. An empty BGP yields exactly
// one empty binding.
func evalBGP(ctx *Ctx, bgp *algebra.BGP) (Iterator, error) {
	if len(bgp.Patterns) == 0 {
		return singleEmptyBinding(), nil
	}
	resolve := func(p *algebra.TriplePattern) (dict.TermId, bool) {
		if p.IsPath() || p.Predicate.IsVar() {
			return 0, false
		}
		id, ok, err := ctx.Dict.Lookup(p.Predicate.Const)
		if err != nil || !ok {
			return 0, false
		}
		return id, true
	}
	ordered := ctx.Optimizer.ReorderBGP(bgp.Patterns, resolve)
	var stream Iterator = singleEmptyBinding()
	for _, p := range ordered {
		stream = newPatternJoinIterator(ctx, stream, p)
	}
	return stream, nil
}
