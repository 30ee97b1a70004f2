package exec

import (
	"strings"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/rdf"
)

// evalGroup implements GROUP BY + aggregation (spec §4.3.8): partition
// Input's bindings by Keys, compute each Aggregate per group, emit one
// binding per group carrying the group-key values plus each aggregate's
// result under its As variable, then apply Having as a post-grouping
// filter. Aggregates with no GROUP BY key form a single implicit group
// (including over zero input rows, so COUNT(*) over an empty pattern
// still yields one row).
func evalGroup(ctx *Ctx, g *algebra.Group) (Iterator, error) {
	in, err := eval(ctx, g.Input)
	if err != nil {
		return nil, err
	}
	rows, bounded, err := drain(in)
	if err != nil {
		return nil, err
	}

	type group struct {
		keyBinding Binding
		rows       []Binding
	}
	order := []string{}
	groups := map[string]*group{}

	addRow := func(b Binding) {
		keyVals := make(Binding)
		var sig strings.Builder
		for i, k := range g.Keys {
			v, err := evalExpr(ctx, k, b)
			sig.WriteString(itoaInt(i))
			sig.WriteByte(':')
			if err == nil && v != nil {
				if id, ok, lookErr := ctx.Dict.Lookup(v); lookErr == nil && ok {
					keyVals[groupKeyName(i)] = id
					if ve, isVar := k.(*algebra.VarExpr); isVar {
						keyVals[ve.Var.Key()] = id
					}
					sig.WriteString(itoa(uint64(id)))
				} else {
					sig.WriteString("?")
				}
			} else {
				sig.WriteString("?")
			}
			sig.WriteByte(';')
		}
		key := sig.String()
		gr, ok := groups[key]
		if !ok {
			gr = &group{keyBinding: keyVals}
			groups[key] = gr
			order = append(order, key)
		}
		gr.rows = append(gr.rows, b)
	}

	if len(g.Keys) == 0 {
		groups[""] = &group{keyBinding: Binding{}}
		order = append(order, "")
	}
	for _, b := range rows {
		addRow(b)
	}
	if len(g.Keys) == 0 {
		groups[""].rows = rows
	}

	var out []Binding
	for _, key := range order {
		gr := groups[key]
		result := gr.keyBinding.Clone()
		for _, agg := range g.Aggregates {
			v := computeAggregate(ctx, agg, gr.rows)
			if v != nil {
				if id, ok, err := ctx.Dict.Lookup(v); err == nil && ok {
					result[agg.As.Key()] = id
				}
			}
		}
		if g.Having != nil {
			pass, err := evalFilterExpr3VL(ctx, g.Having, result)
			if err != nil || !pass {
				continue
			}
		}
		out = append(out, result)
	}
	return newSliceIter(out, bounded), nil
}

func groupKeyName(i int) string {
	return "__group_key_" + itoaInt(i)
}

func itoaInt(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}

// computeAggregate implements spec §4.3.8's six aggregate kinds with
// integer < decimal < double type promotion; SUM/AVG over an empty
// group yield 0 (integer), MIN/MAX/SAMPLE yield unbound (nil),
// GROUP_CONCAT yields the empty string.
func computeAggregate(ctx *Ctx, agg algebra.Aggregate, rows []Binding) rdf.Term {
	vals := aggregateValues(ctx, agg, rows)

	switch agg.Kind {
	case algebra.AggCount:
		if agg.Expr == nil {
			return rdf.NewIntegerLiteral(int64(len(rows)))
		}
		return rdf.NewIntegerLiteral(int64(len(vals)))

	case algebra.AggSum:
		if len(vals) == 0 {
			return rdf.NewIntegerLiteral(0)
		}
		var sum float64
		var widest *rdf.Literal
		for _, v := range vals {
			lit, f, ok := asNumeric(v)
			if !ok {
				continue
			}
			sum += f
			widest = widestNumericType(widest, lit)
		}
		return numericLiteralLike(widest, sum)

	case algebra.AggAvg:
		if len(vals) == 0 {
			return rdf.NewIntegerLiteral(0)
		}
		var sum float64
		n := 0
		for _, v := range vals {
			_, f, ok := asNumeric(v)
			if !ok {
				continue
			}
			sum += f
			n++
		}
		if n == 0 {
			return rdf.NewIntegerLiteral(0)
		}
		return rdf.NewDecimalLiteral(sum / float64(n))

	case algebra.AggMin, algebra.AggMax:
		if len(vals) == 0 {
			return nil
		}
		best := vals[0]
		for _, v := range vals[1:] {
			c := compareOrderTerms(v, best)
			if (agg.Kind == algebra.AggMin && c < 0) || (agg.Kind == algebra.AggMax && c > 0) {
				best = v
			}
		}
		return best

	case algebra.AggSample:
		if len(vals) == 0 {
			return nil
		}
		return vals[0]

	case algebra.AggGroupConcat:
		sep := agg.Sep
		if sep == "" {
			sep = " "
		}
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			if lit, ok := v.(*rdf.Literal); ok {
				parts = append(parts, lit.Value)
			} else if v != nil {
				parts = append(parts, v.TermString())
			}
		}
		return rdf.NewLiteral(strings.Join(parts, sep))
	}
	return nil
}

func aggregateValues(ctx *Ctx, agg algebra.Aggregate, rows []Binding) []rdf.Term {
	var out []rdf.Term
	seen := map[string]bool{}
	for _, b := range rows {
		var v rdf.Term
		var err error
		if agg.Expr == nil {
			v = rdf.NewBooleanLiteral(true) // COUNT(*): presence only
		} else {
			v, err = evalExpr(ctx, agg.Expr, b)
		}
		if err != nil || v == nil {
			continue
		}
		if agg.Distinct {
			sig := v.TermString()
			if seen[sig] {
				continue
			}
			seen[sig] = true
		}
		out = append(out, v)
	}
	return out
}
