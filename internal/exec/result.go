package exec

import (
	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/index"
	"github.com/relkv/rdfstore/rdf"
)

// EvalSelect runs root and returns every solution as a binding of
// variable name to decoded RDF term (spec §4.3.9, SELECT).
func EvalSelect(ctx *Ctx, root algebra.Node) ([]map[string]rdf.Term, bool, error) {
	it, err := eval(ctx, root)
	if err != nil {
		return nil, false, err
	}
	rows, bounded, err := drain(it)
	if err != nil {
		return nil, bounded, err
	}
	out := make([]map[string]rdf.Term, 0, len(rows))
	for _, b := range rows {
		m := make(map[string]rdf.Term, len(b))
		for k, id := range b {
			t, err := ctx.Dict.Decode(id)
			if err != nil {
				continue
			}
			m[k] = t
		}
		out = append(out, m)
	}
	return out, bounded, nil
}

// evalAsk implements ASK: true iff Input yields at least one solution.
func evalAsk(ctx *Ctx, a *algebra.Ask) (bool, error) {
	it, err := eval(ctx, a.Input)
	if err != nil {
		return false, err
	}
	defer it.Close()
	ok, err := it.Next()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// EvalAsk is the public entry point for ASK queries.
func EvalAsk(ctx *Ctx, root *algebra.Ask) (bool, error) { return evalAsk(ctx, root) }

// EvalConstruct implements CONSTRUCT: instantiate Template per binding
// from Input, skipping any instantiation whose template references a
// variable the binding leaves unbound, deduplicating the resulting
// triples (spec §4.3.9).
func EvalConstruct(ctx *Ctx, c *algebra.Construct) ([]rdf.Triple, bool, error) {
	it, err := eval(ctx, c.Input)
	if err != nil {
		return nil, false, err
	}
	rows, bounded, err := drain(it)
	if err != nil {
		return nil, bounded, err
	}
	seen := map[string]bool{}
	var out []rdf.Triple
	for _, b := range rows {
		for _, tmpl := range c.Template {
			s, ok1, err := materializeTerm(ctx, tmpl.Subject, b)
			if err != nil {
				return nil, bounded, err
			}
			p, ok2, err := materializeTerm(ctx, tmpl.Predicate, b)
			if err != nil {
				return nil, bounded, err
			}
			o, ok3, err := materializeTerm(ctx, tmpl.Object, b)
			if err != nil {
				return nil, bounded, err
			}
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			tr := rdf.Triple{Subject: s, Predicate: p, Object: o}
			key := tr.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tr)
		}
	}
	return out, bounded, nil
}

func materializeTerm(ctx *Ctx, t algebra.Term, b Binding) (rdf.Term, bool, error) {
	if !t.IsVar() {
		return t.Const, true, nil
	}
	id, ok := b[t.Var.Key()]
	if !ok {
		return nil, false, nil
	}
	term, err := ctx.Dict.Decode(id)
	if err != nil {
		return nil, false, err
	}
	return term, true, nil
}

// EvalDescribe implements DESCRIBE (spec §4.3.9): the Concise Bounded
// Description of every resource named by Resources (constants) or bound
// by Input (variables) — each resource's own triples, plus a
// depth/count-bounded closure over blank-node objects.
func EvalDescribe(ctx *Ctx, d *algebra.Describe) ([]rdf.Triple, bool, error) {
	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = ctx.MaxDescribeDepth
	}
	maxTriples := d.MaxTriples
	if maxTriples <= 0 {
		maxTriples = ctx.MaxDescribeTriples
	}

	var roots []dict.TermId
	seenRoot := map[dict.TermId]bool{}
	addRoot := func(t rdf.Term) {
		id, ok, err := ctx.Dict.Lookup(t)
		if err != nil || !ok || seenRoot[id] {
			return
		}
		seenRoot[id] = true
		roots = append(roots, id)
	}

	if d.Input != nil {
		it, err := eval(ctx, d.Input)
		if err != nil {
			return nil, false, err
		}
		rows, bounded, err := drain(it)
		if err != nil {
			return nil, bounded, err
		}
		for _, b := range rows {
			for _, res := range d.Resources {
				if res.IsVar() {
					if id, ok := b[res.Var.Key()]; ok {
						if !seenRoot[id] {
							seenRoot[id] = true
							roots = append(roots, id)
						}
					}
				} else {
					addRoot(res.Const)
				}
			}
		}
	} else {
		for _, res := range d.Resources {
			if !res.IsVar() {
				addRoot(res.Const)
			}
		}
	}

	seenTriple := map[string]bool{}
	var out []rdf.Triple
	visitedNodes := map[dict.TermId]bool{}

	var visit func(node dict.TermId, depth int) error
	visit = func(node dict.TermId, depth int) error {
		if visitedNodes[node] || depth > maxDepth || len(out) >= maxTriples {
			return nil
		}
		visitedNodes[node] = true
		plan := index.SelectIndex(index.Pattern{S: index.Bound(node)})
		it := index.Scan(ctx.Reader, plan)
		defer it.Close()
		for it.Next() {
			if len(out) >= maxTriples {
				ctx.emit("describe_triples_limit", map[string]any{"limit": maxTriples})
				return nil
			}
			tr := it.Triple()
			s, err := ctx.Dict.Decode(tr.S)
			if err != nil {
				continue
			}
			p, err := ctx.Dict.Decode(tr.P)
			if err != nil {
				continue
			}
			o, err := ctx.Dict.Decode(tr.O)
			if err != nil {
				continue
			}
			full := rdf.Triple{Subject: s, Predicate: p, Object: o}
			key := full.String()
			if !seenTriple[key] {
				seenTriple[key] = true
				out = append(out, full)
			}
			if _, isBlank := o.(*rdf.BlankNode); isBlank {
				if err := visit(tr.O, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, r := range roots {
		if len(visitedNodes) >= ctx.MaxDescribeNodes {
			ctx.emit("describe_nodes_limit", map[string]any{"limit": ctx.MaxDescribeNodes})
			break
		}
		if err := visit(r, 0); err != nil {
			return nil, false, err
		}
	}
	return out, false, nil
}
