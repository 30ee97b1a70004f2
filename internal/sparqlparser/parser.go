// Package sparqlparser turns SPARQL query text directly into an
// internal/algebra plan tree, the same character-position recursive-
// descent shape aleksaelezovic-trigo/internal/sparql/parser uses (a
// Parser{input, pos, length, prefixes} struct, matchKeyword/
// skipWhitespace helpers, one parseX method per grammar production) —
// except it builds algebra.Node/Expr/Path directly instead of an
// intermediate AST, since this store already has a dedicated plan-tree
// package sitting between parsing and execution.
package sparqlparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/rdf"
)

// QueryKind distinguishes the four SPARQL query forms (spec §9).
type QueryKind int

const (
	QuerySelect QueryKind = iota
	QueryAsk
	QueryConstruct
	QueryDescribe
)

// Query is the fully-built result of parsing: Root is ready to hand to
// internal/exec as-is.
type Query struct {
	Kind       QueryKind
	Root       algebra.Node
	ResultVars []algebra.Var // SELECT projection order; empty for SELECT *
	SelectStar bool
}

// Parse parses a single SPARQL query string into a Query.
func Parse(input string) (*Query, error) {
	p := &Parser{input: input, length: len(input), prefixes: make(map[string]string)}
	q, err := p.parseQuery()
	if err != nil {
		return nil, errs.Wrap(errs.CodeParseError, err, "parsing sparql query")
	}
	return q, nil
}

// Parser walks input one byte at a time, same idiom rdfio.Parser and the
// teacher's SPARQL parser both use.
type Parser struct {
	input    string
	pos      int
	length   int
	prefixes map[string]string
	bnodeSeq int
	aggSeq   int

	// pendingAggs, when non-nil, is where parsePrimaryExpression appends
	// an algebra.Aggregate every time it parses an aggregate function
	// call — used while parsing a SELECT projection item, HAVING clause
	// or ORDER BY condition, the three positions SPARQL allows
	// aggregates to appear in outside the Group node itself.
	pendingAggs *[]algebra.Aggregate
}

func (p *Parser) freshAggVar() algebra.Var {
	p.aggSeq++
	return algebra.Var{Name: fmt.Sprintf("__agg%d", p.aggSeq)}
}

func (p *Parser) parseQuery() (*Query, error) {
	p.skipWS()
	for {
		if p.matchKeyword("PREFIX") {
			if err := p.parsePrefixDecl(); err != nil {
				return nil, err
			}
		} else if p.matchKeyword("BASE") {
			if _, err := p.parseIRIRef(); err != nil {
				return nil, err
			}
		} else {
			break
		}
		p.skipWS()
	}

	switch {
	case p.matchKeyword("SELECT"):
		return p.parseSelect()
	case p.matchKeyword("ASK"):
		return p.parseAsk()
	case p.matchKeyword("CONSTRUCT"):
		return p.parseConstruct()
	case p.matchKeyword("DESCRIBE"):
		return p.parseDescribe()
	default:
		return nil, p.errorf("expected SELECT, ASK, CONSTRUCT or DESCRIBE")
	}
}

func (p *Parser) parsePrefixDecl() error {
	p.skipWS()
	name := p.scanWhile(func(b byte) bool { return b != ':' && !isWS(b) })
	if !p.consumeByte(':') {
		return p.errorf("expected ':' in PREFIX declaration")
	}
	p.skipWS()
	iri, err := p.parseIRIRef()
	if err != nil {
		return err
	}
	p.prefixes[name] = iri
	return nil
}

// --- SELECT ---

func (p *Parser) parseSelect() (*Query, error) {
	distinct, reduced := false, false
	if p.matchKeyword("DISTINCT") {
		distinct = true
	} else if p.matchKeyword("REDUCED") {
		reduced = true
	}

	star := false
	var projVars []algebra.Var
	var projExtends []projItem
	var projAggs []algebra.Aggregate

	p.skipWS()
	if p.consumeByte('*') {
		star = true
	} else {
		for {
			p.skipWS()
			if p.peek() == '(' {
				p.pos++
				before := len(projAggs)
				saved := p.pendingAggs
				p.pendingAggs = &projAggs
				expr, err := p.parseExpression()
				p.pendingAggs = saved
				if err != nil {
					return nil, err
				}
				if !p.matchKeyword("AS") {
					return nil, p.errorf("expected AS in select expression")
				}
				v, err := p.parseVar()
				if err != nil {
					return nil, err
				}
				if len(projAggs) == before+1 {
					// expr parsed to a lone aggregate call: fold its
					// generated alias into the user's chosen variable
					// instead of emitting a redundant Extend.
					projAggs[len(projAggs)-1].As = v
				} else {
					projExtends = append(projExtends, projItem{v: v, expr: expr})
				}
				if !p.consumeByte(')') {
					return nil, p.errorf("expected ')' after select expression")
				}
				projVars = append(projVars, v)
				continue
			}
			if p.peek() != '?' && p.peek() != '$' {
				break
			}
			v, err := p.parseVar()
			if err != nil {
				return nil, err
			}
			projVars = append(projVars, v)
		}
	}

	where, groupBy, having, extraAggs, orderBy, limit, offset, err := p.parseWhereAndModifiers()
	if err != nil {
		return nil, err
	}
	allAggs := append(projAggs, extraAggs...)

	root := where
	for _, pe := range projExtends {
		root = &algebra.Extend{Input: root, Var: pe.v, Expr: pe.expr}
	}
	if len(groupBy) > 0 || len(allAggs) > 0 || having != nil {
		root = &algebra.Group{Input: root, Keys: groupBy, Aggregates: allAggs, Having: having}
	}
	if len(orderBy) > 0 {
		root = &algebra.OrderBy{Input: root, Conditions: orderBy}
	}
	if !star {
		root = &algebra.Project{Input: root, Vars: projVars}
	}
	if distinct {
		root = &algebra.Distinct{Input: root}
	} else if reduced {
		root = &algebra.Reduced{Input: root}
	}
	if limit != nil || offset != nil {
		root = &algebra.Slice{Input: root, Limit: limit, Offset: offset}
	}

	return &Query{Kind: QuerySelect, Root: root, ResultVars: projVars, SelectStar: star}, nil
}

type projItem struct {
	v    algebra.Var
	expr algebra.Expr
}

// --- ASK ---

func (p *Parser) parseAsk() (*Query, error) {
	where, _, _, _, _, _, _, err := p.parseWhereAndModifiers()
	if err != nil {
		return nil, err
	}
	return &Query{Kind: QueryAsk, Root: &algebra.Ask{Input: where}}, nil
}

// --- CONSTRUCT ---

func (p *Parser) parseConstruct() (*Query, error) {
	p.skipWS()
	if p.matchKeyword("WHERE") {
		p.skipWS()
		if !p.consumeByte('{') {
			return nil, p.errorf("expected '{' after CONSTRUCT WHERE")
		}
		bgp, err := p.parseTriplesBlock()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if !p.consumeByte('}') {
			return nil, p.errorf("expected '}' closing CONSTRUCT WHERE")
		}
		tmpl := templateFromBGP(bgp)
		_, having, _, orderBy, limit, offset, err := p.parseSolutionModifiers()
		if err != nil {
			return nil, err
		}
		root := algebra.Node(bgp)
		if len(orderBy) > 0 {
			root = &algebra.OrderBy{Input: root, Conditions: orderBy}
		}
		if limit != nil || offset != nil {
			root = &algebra.Slice{Input: root, Limit: limit, Offset: offset}
		}
		_ = having
		return &Query{Kind: QueryConstruct, Root: &algebra.Construct{Input: root, Template: tmpl}}, nil
	}

	p.skipWS()
	if !p.consumeByte('{') {
		return nil, p.errorf("expected '{' after CONSTRUCT")
	}
	tmplBGP, err := p.parseTriplesBlock()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if !p.consumeByte('}') {
		return nil, p.errorf("expected '}' closing CONSTRUCT template")
	}
	where, _, _, _, orderBy, limit, offset, err := p.parseWhereAndModifiers()
	if err != nil {
		return nil, err
	}
	root := where
	if len(orderBy) > 0 {
		root = &algebra.OrderBy{Input: root, Conditions: orderBy}
	}
	if limit != nil || offset != nil {
		root = &algebra.Slice{Input: root, Limit: limit, Offset: offset}
	}
	return &Query{Kind: QueryConstruct, Root: &algebra.Construct{Input: root, Template: templateFromBGP(tmplBGP)}}, nil
}

func templateFromBGP(bgp *algebra.BGP) []algebra.ConstructTemplate {
	out := make([]algebra.ConstructTemplate, 0, len(bgp.Patterns))
	for _, tp := range bgp.Patterns {
		out = append(out, algebra.ConstructTemplate{Subject: tp.Subject, Predicate: tp.Predicate, Object: tp.Object})
	}
	return out
}

// --- DESCRIBE ---

func (p *Parser) parseDescribe() (*Query, error) {
	var resources []algebra.Term
	star := false
	p.skipWS()
	if p.consumeByte('*') {
		star = true
	} else {
		for {
			p.skipWS()
			if p.peek() == '?' || p.peek() == '$' {
				v, err := p.parseVar()
				if err != nil {
					return nil, err
				}
				resources = append(resources, algebra.Term{Var: &v})
			} else if isTermStart(p.peek()) {
				t, err := p.parseTerm()
				if err != nil {
					return nil, err
				}
				resources = append(resources, t)
			} else {
				break
			}
			p.skipWS()
			if !isTermStart(p.peek()) && p.peek() != '?' && p.peek() != '$' {
				break
			}
		}
	}

	var where algebra.Node
	p.skipWS()
	if p.matchKeyword("WHERE") || p.peek() == '{' {
		w, _, _, _, _, _, _, err := p.parseWhereAndModifiers()
		if err != nil {
			return nil, err
		}
		where = w
	}
	_ = star
	return &Query{Kind: QueryDescribe, Root: &algebra.Describe{Input: where, Resources: resources, MaxDepth: 1, MaxTriples: 10000}}, nil
}

// --- WHERE + solution modifiers ---

func (p *Parser) parseWhereAndModifiers() (node algebra.Node, groupBy []algebra.Expr, having algebra.Expr, extraAggs []algebra.Aggregate, orderBy []algebra.OrderCondition, limit, offset *int64, err error) {
	p.skipWS()
	p.matchKeyword("WHERE")
	p.skipWS()
	if !p.consumeByte('{') {
		return nil, nil, nil, nil, nil, nil, nil, p.errorf("expected '{' to start graph pattern")
	}
	where, err := p.parseGroupGraphPatternSub()
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	p.skipWS()
	if !p.consumeByte('}') {
		return nil, nil, nil, nil, nil, nil, nil, p.errorf("expected '}' to close graph pattern")
	}
	groupBy, having, extraAggs, orderBy, limit, offset, err = p.parseSolutionModifiers()
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	return where, groupBy, having, extraAggs, orderBy, limit, offset, nil
}

func (p *Parser) parseSolutionModifiers() (groupBy []algebra.Expr, having algebra.Expr, extraAggs []algebra.Aggregate, orderBy []algebra.OrderCondition, limit, offset *int64, err error) {
	fail := func(e error) ([]algebra.Expr, algebra.Expr, []algebra.Aggregate, []algebra.OrderCondition, *int64, *int64, error) {
		return nil, nil, nil, nil, nil, nil, e
	}

	p.skipWS()
	if p.matchKeyword("GROUP") {
		if !p.matchKeyword("BY") {
			return fail(p.errorf("expected BY after GROUP"))
		}
		for {
			p.skipWS()
			if p.peek() == '(' {
				p.pos++
				e, err := p.parseExpression()
				if err != nil {
					return fail(err)
				}
				groupBy = append(groupBy, e)
				if p.matchKeyword("AS") {
					if _, err := p.parseVar(); err != nil {
						return fail(err)
					}
				}
				if !p.consumeByte(')') {
					return fail(p.errorf("expected ')' closing GROUP BY expression"))
				}
			} else if p.peek() == '?' || p.peek() == '$' {
				v, err := p.parseVar()
				if err != nil {
					return fail(err)
				}
				groupBy = append(groupBy, &algebra.VarExpr{Var: v})
			} else {
				break
			}
			p.skipWS()
			if p.peek() != '(' && p.peek() != '?' && p.peek() != '$' {
				break
			}
		}
	}

	p.skipWS()
	if p.matchKeyword("HAVING") {
		saved := p.pendingAggs
		p.pendingAggs = &extraAggs
		h, err := p.parseBracketedExpression()
		p.pendingAggs = saved
		if err != nil {
			return fail(err)
		}
		having = h
	}

	p.skipWS()
	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return fail(p.errorf("expected BY after ORDER"))
		}
		saved := p.pendingAggs
		p.pendingAggs = &extraAggs
		for {
			p.skipWS()
			if p.matchesKeywordAhead("LIMIT") || p.matchesKeywordAhead("OFFSET") {
				break
			}
			if p.matchKeyword("ASC") {
				e, err := p.parseBracketedExpression()
				if err != nil {
					p.pendingAggs = saved
					return fail(err)
				}
				orderBy = append(orderBy, algebra.OrderCondition{Expr: e})
				continue
			} else if p.matchKeyword("DESC") {
				e, err := p.parseBracketedExpression()
				if err != nil {
					p.pendingAggs = saved
					return fail(err)
				}
				orderBy = append(orderBy, algebra.OrderCondition{Expr: e, Descending: true})
				continue
			}
			if p.peek() == '(' || p.peek() == '?' || p.peek() == '$' || isTermStart(p.peek()) {
				e, err := p.parseExpression()
				if err != nil {
					p.pendingAggs = saved
					return fail(err)
				}
				orderBy = append(orderBy, algebra.OrderCondition{Expr: e})
			} else {
				break
			}
			p.skipWS()
			if p.peek() != '(' && p.peek() != '?' && p.peek() != '$' && !isTermStart(p.peek()) || p.matchesKeywordAhead("LIMIT") || p.matchesKeywordAhead("OFFSET") {
				break
			}
		}
		p.pendingAggs = saved
	}

	p.skipWS()
	if p.matchKeyword("LIMIT") {
		n, err := p.parseIntegerLiteralValue()
		if err != nil {
			return fail(err)
		}
		limit = &n
	}
	p.skipWS()
	if p.matchKeyword("OFFSET") {
		n, err := p.parseIntegerLiteralValue()
		if err != nil {
			return fail(err)
		}
		offset = &n
	}
	return groupBy, having, extraAggs, orderBy, limit, offset, nil
}

// --- graph pattern group ---

func (p *Parser) parseGroupGraphPatternSub() (algebra.Node, error) {
	var result algebra.Node
	var filters []algebra.Expr

	for {
		p.skipWS()
		c := p.peek()
		if c == 0 || c == '}' {
			break
		}
		switch {
		case p.matchKeyword("OPTIONAL"):
			right, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			lj := &algebra.LeftJoin{Left: emptyIfNil(result), Right: right}
			result = lj
		case p.matchKeyword("MINUS"):
			right, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			result = &algebra.Minus{Left: emptyIfNil(result), Right: right}
		case p.matchKeyword("GRAPH"):
			p.skipWS()
			var name algebra.Term
			if p.peek() == '?' || p.peek() == '$' {
				v, err := p.parseVar()
				if err != nil {
					return nil, err
				}
				name = algebra.Term{Var: &v}
			} else {
				t, err := p.parseTerm()
				if err != nil {
					return nil, err
				}
				name = t
			}
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			result = combineJoin(result, &algebra.Graph{Input: inner, Name: name})
		case p.matchKeyword("FILTER"):
			e, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			filters = append(filters, e)
		case p.matchKeyword("BIND"):
			p.skipWS()
			if !p.consumeByte('(') {
				return nil, p.errorf("expected '(' after BIND")
			}
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if !p.matchKeyword("AS") {
				return nil, p.errorf("expected AS in BIND")
			}
			v, err := p.parseVar()
			if err != nil {
				return nil, err
			}
			if !p.consumeByte(')') {
				return nil, p.errorf("expected ')' closing BIND")
			}
			result = &algebra.Extend{Input: emptyIfNil(result), Var: v, Expr: e}
		case c == '{':
			left, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			for {
				p.skipWS()
				if !p.matchKeyword("UNION") {
					break
				}
				right, err := p.parseGroupGraphPattern()
				if err != nil {
					return nil, err
				}
				left = &algebra.Union{Left: left, Right: right}
			}
			result = combineJoin(result, left)
		default:
			bgp, err := p.parseTriplesBlock()
			if err != nil {
				return nil, err
			}
			if len(bgp.Patterns) > 0 {
				result = combineJoin(result, bgp)
			}
		}
		p.skipWS()
		if p.peek() == '.' {
			p.pos++
		}
	}

	for _, f := range filters {
		result = &algebra.Filter{Input: emptyIfNil(result), Expr: f}
	}
	return emptyIfNil(result), nil
}

func (p *Parser) parseGroupGraphPattern() (algebra.Node, error) {
	p.skipWS()
	if !p.consumeByte('{') {
		return nil, p.errorf("expected '{'")
	}
	inner, err := p.parseGroupGraphPatternSub()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if !p.consumeByte('}') {
		return nil, p.errorf("expected '}'")
	}
	return inner, nil
}

func combineJoin(a, b algebra.Node) algebra.Node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &algebra.Join{Left: a, Right: b}
}

func emptyIfNil(n algebra.Node) algebra.Node {
	if n == nil {
		return &algebra.BGP{}
	}
	return n
}

// --- triples ---

func (p *Parser) parseTriplesBlock() (*algebra.BGP, error) {
	bgp := &algebra.BGP{}
	for {
		p.skipWS()
		if !p.isTripleStart() {
			break
		}
		if err := p.parseTriplesSameSubject(bgp); err != nil {
			return nil, err
		}
		p.skipWS()
		if p.peek() != '.' {
			break
		}
		p.pos++
	}
	return bgp, nil
}

func (p *Parser) isTripleStart() bool {
	c := p.peek()
	if c == '}' || c == 0 {
		return false
	}
	switch c {
	case '.', ';', ',':
		return false
	}
	for _, kw := range []string{"OPTIONAL", "FILTER", "BIND", "MINUS", "GRAPH", "UNION"} {
		if p.matchesKeywordAhead(kw) {
			return false
		}
	}
	return true
}

func (p *Parser) parseTriplesSameSubject(bgp *algebra.BGP) error {
	subj, err := p.parseVarOrTermOrCollectionOrBNode(bgp)
	if err != nil {
		return err
	}
	return p.parsePredicateObjectList(bgp, subj)
}

func (p *Parser) parsePredicateObjectList(bgp *algebra.BGP, subj algebra.Term) error {
	for {
		p.skipWS()
		path, iriPredicate, err := p.parseVerb()
		if err != nil {
			return err
		}
		for {
			obj, err := p.parseVarOrTermOrCollectionOrBNode(bgp)
			if err != nil {
				return err
			}
			tp := &algebra.TriplePattern{Subject: subj, Object: obj}
			if iriPredicate.IsVar() || iriPredicate.Const != nil {
				tp.Predicate = iriPredicate
			} else {
				tp.Path = path
			}
			bgp.Patterns = append(bgp.Patterns, tp)
			p.skipWS()
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
		p.skipWS()
		if p.peek() != ';' {
			break
		}
		p.pos++
		p.skipWS()
		if !p.isVerbStart() {
			break
		}
	}
	return nil
}

func (p *Parser) isVerbStart() bool {
	c := p.peek()
	return c == 'a' || isTermStart(c) || c == '^' || c == '!' || c == '(' || c == '?' || c == '$'
}

// parseVerb returns either a simple algebra.Term (IRI or variable
// predicate) or a Path, mirroring TriplePattern's "Predicate or Path"
// union. Property paths only apply to constant IRI predicates, so a
// variable predicate is recognized up front.
func (p *Parser) parseVerb() (algebra.Path, algebra.Term, error) {
	p.skipWS()
	if p.peek() == '?' || p.peek() == '$' {
		v, err := p.parseVar()
		if err != nil {
			return nil, algebra.Term{}, err
		}
		return nil, algebra.Term{Var: &v}, nil
	}
	if p.peek() == 'a' && !isNameByte(p.peekAt(1)) {
		p.pos++
		return nil, algebra.Const(&rdf.NamedNode{IRI: "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"}), nil
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, algebra.Term{}, err
	}
	if lp, ok := path.(*algebra.LinkPath); ok {
		return nil, lp.IRI, nil
	}
	return path, algebra.Term{}, nil
}

// --- object/subject terms, blank node property lists, collections ---

func (p *Parser) parseVarOrTermOrCollectionOrBNode(bgp *algebra.BGP) (algebra.Term, error) {
	p.skipWS()
	switch p.peek() {
	case '?', '$':
		v, err := p.parseVar()
		if err != nil {
			return algebra.Term{}, err
		}
		return algebra.Term{Var: &v}, nil
	case '[':
		return p.parseBlankNodePropertyList(bgp)
	case '(':
		return p.parseCollection(bgp)
	default:
		return p.parseTerm()
	}
}

func (p *Parser) parseBlankNodePropertyList(bgp *algebra.BGP) (algebra.Term, error) {
	p.pos++ // '['
	label := p.freshBlank()
	subj := algebra.BNodeVar(label)
	p.skipWS()
	if p.peek() != ']' {
		if err := p.parsePredicateObjectList(bgp, subj); err != nil {
			return algebra.Term{}, err
		}
	}
	p.skipWS()
	if !p.consumeByte(']') {
		return algebra.Term{}, p.errorf("expected ']' closing blank node property list")
	}
	return subj, nil
}

var rdfFirst = &rdf.NamedNode{IRI: "http://www.w3.org/1999/02/22-rdf-syntax-ns#first"}
var rdfRest = &rdf.NamedNode{IRI: "http://www.w3.org/1999/02/22-rdf-syntax-ns#rest"}
var rdfNil = &rdf.NamedNode{IRI: "http://www.w3.org/1999/02/22-rdf-syntax-ns#nil"}

func (p *Parser) parseCollection(bgp *algebra.BGP) (algebra.Term, error) {
	p.pos++ // '('
	p.skipWS()
	if p.peek() == ')' {
		p.pos++
		return algebra.Const(rdfNil), nil
	}
	head := algebra.BNodeVar(p.freshBlank())
	cur := head
	first := true
	for {
		p.skipWS()
		if p.peek() == ')' {
			p.pos++
			bgp.Patterns = append(bgp.Patterns, &algebra.TriplePattern{Subject: cur, Predicate: algebra.Const(rdfRest), Object: algebra.Const(rdfNil)})
			break
		}
		if !first {
			next := algebra.BNodeVar(p.freshBlank())
			bgp.Patterns = append(bgp.Patterns, &algebra.TriplePattern{Subject: cur, Predicate: algebra.Const(rdfRest), Object: next})
			cur = next
		}
		first = false
		item, err := p.parseVarOrTermOrCollectionOrBNode(bgp)
		if err != nil {
			return algebra.Term{}, err
		}
		bgp.Patterns = append(bgp.Patterns, &algebra.TriplePattern{Subject: cur, Predicate: algebra.Const(rdfFirst), Object: item})
	}
	return head, nil
}

func (p *Parser) freshBlank() string {
	p.bnodeSeq++
	return fmt.Sprintf("b%d", p.bnodeSeq)
}

// --- property paths ---

func (p *Parser) parsePath() (algebra.Path, error) {
	return p.parsePathAlternative()
}

func (p *Parser) parsePathAlternative() (algebra.Path, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() != '|' || p.peekAt(1) == '|' {
			break
		}
		p.pos++
		right, err := p.parsePathSequence()
		if err != nil {
			return nil, err
		}
		left = &algebra.AlternativePath{First: left, Second: right}
	}
	return left, nil
}

func (p *Parser) parsePathSequence() (algebra.Path, error) {
	left, err := p.parsePathEltOrInverse()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() != '/' {
			break
		}
		p.pos++
		right, err := p.parsePathEltOrInverse()
		if err != nil {
			return nil, err
		}
		left = &algebra.SequencePath{First: left, Second: right}
	}
	return left, nil
}

func (p *Parser) parsePathEltOrInverse() (algebra.Path, error) {
	p.skipWS()
	inverse := false
	if p.peek() == '^' {
		inverse = true
		p.pos++
	}
	elt, err := p.parsePathElt()
	if err != nil {
		return nil, err
	}
	if inverse {
		return &algebra.InversePath{Path: elt}, nil
	}
	return elt, nil
}

func (p *Parser) parsePathElt() (algebra.Path, error) {
	prim, err := p.parsePathPrimary()
	if err != nil {
		return nil, err
	}
	switch p.peek() {
	case '*':
		p.pos++
		return &algebra.ZeroOrMorePath{Path: prim}, nil
	case '+':
		p.pos++
		return &algebra.OneOrMorePath{Path: prim}, nil
	case '?':
		p.pos++
		return &algebra.ZeroOrOnePath{Path: prim}, nil
	}
	return prim, nil
}

func (p *Parser) parsePathPrimary() (algebra.Path, error) {
	p.skipWS()
	switch {
	case p.peek() == '(':
		p.pos++
		inner, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if !p.consumeByte(')') {
			return nil, p.errorf("expected ')' closing path group")
		}
		return inner, nil
	case p.peek() == '!':
		p.pos++
		return p.parsePathNegatedPropertySet()
	case p.peek() == 'a' && !isNameByte(p.peekAt(1)):
		p.pos++
		return &algebra.LinkPath{IRI: algebra.Const(&rdf.NamedNode{IRI: "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"})}, nil
	default:
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &algebra.LinkPath{IRI: t}, nil
	}
}

func (p *Parser) parsePathNegatedPropertySet() (algebra.Path, error) {
	p.skipWS()
	var iris []algebra.Term
	parseOne := func() error {
		inv := false
		if p.peek() == '^' {
			inv = true
			p.pos++
		}
		_ = inv
		if p.peek() == 'a' && !isNameByte(p.peekAt(1)) {
			p.pos++
			iris = append(iris, algebra.Const(&rdf.NamedNode{IRI: "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"}))
			return nil
		}
		t, err := p.parseTerm()
		if err != nil {
			return err
		}
		iris = append(iris, t)
		return nil
	}
	if p.peek() == '(' {
		p.pos++
		p.skipWS()
		if p.peek() != ')' {
			if err := parseOne(); err != nil {
				return nil, err
			}
			for {
				p.skipWS()
				if p.peek() != '|' {
					break
				}
				p.pos++
				if err := parseOne(); err != nil {
					return nil, err
				}
			}
		}
		p.skipWS()
		if !p.consumeByte(')') {
			return nil, p.errorf("expected ')' closing negated property set")
		}
	} else {
		if err := parseOne(); err != nil {
			return nil, err
		}
	}
	return &algebra.NegatedPropertySetPath{IRIs: iris}, nil
}

// --- terms ---

func isTermStart(c byte) bool {
	if c == 0 {
		return false
	}
	return c == '<' || c == '_' || c == '"' || c == '\'' || c == ':' || c == '+' || c == '-' ||
		(c >= '0' && c <= '9') || isAlpha(c)
}

func (p *Parser) parseTerm() (algebra.Term, error) {
	p.skipWS()
	c := p.peek()
	switch {
	case c == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return algebra.Term{}, err
		}
		return algebra.Const(&rdf.NamedNode{IRI: iri}), nil
	case c == '_':
		label, err := p.parseBlankNodeLabel()
		if err != nil {
			return algebra.Term{}, err
		}
		return algebra.Const(&rdf.BlankNode{ID: label}), nil
	case c == '"' || c == '\'':
		lit, err := p.parseRDFLiteral()
		if err != nil {
			return algebra.Term{}, err
		}
		return algebra.Const(lit), nil
	case c == '+' || c == '-' || (c >= '0' && c <= '9'):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return algebra.Term{}, err
		}
		return algebra.Const(lit), nil
	case isAlpha(c) || c == ':':
		if p.matchesKeywordAhead("true") {
			p.pos += 4
			return algebra.Const(rdf.NewBooleanLiteral(true)), nil
		}
		if p.matchesKeywordAhead("false") {
			p.pos += 5
			return algebra.Const(rdf.NewBooleanLiteral(false)), nil
		}
		iri, err := p.parsePrefixedName()
		if err != nil {
			return algebra.Term{}, err
		}
		return algebra.Const(&rdf.NamedNode{IRI: iri}), nil
	default:
		return algebra.Term{}, p.errorf("unexpected character %q in term position", string(c))
	}
}

func (p *Parser) parseVar() (algebra.Var, error) {
	p.skipWS()
	if p.peek() != '?' && p.peek() != '$' {
		return algebra.Var{}, p.errorf("expected variable")
	}
	p.pos++
	name := p.scanWhile(isNameByte)
	if name == "" {
		return algebra.Var{}, p.errorf("expected variable name")
	}
	return algebra.Var{Name: name}, nil
}

func (p *Parser) parseIRIRef() (string, error) {
	if !p.consumeByte('<') {
		return "", p.errorf("expected '<'")
	}
	iri := p.scanWhile(func(b byte) bool { return b != '>' })
	if !p.consumeByte('>') {
		return "", p.errorf("unterminated IRI reference")
	}
	return iri, nil
}

func (p *Parser) parseBlankNodeLabel() (string, error) {
	if !p.consumeByte('_') || !p.consumeByte(':') {
		return "", p.errorf("expected '_:'")
	}
	label := p.scanWhile(isNameByte)
	if label == "" {
		return "", p.errorf("expected blank node label")
	}
	return label, nil
}

func (p *Parser) parsePrefixedName() (string, error) {
	prefix := p.scanWhile(func(b byte) bool { return b != ':' && isNameByte(b) })
	if !p.consumeByte(':') {
		return "", p.errorf("expected ':' in prefixed name")
	}
	local := p.scanWhile(isNameByte)
	base, ok := p.prefixes[prefix]
	if !ok {
		return "", p.errorf("undefined prefix %q", prefix)
	}
	return base + local, nil
}

func (p *Parser) parseRDFLiteral() (*rdf.Literal, error) {
	value, err := p.parseStringLiteral()
	if err != nil {
		return nil, err
	}
	if p.peek() == '@' {
		p.pos++
		lang := p.scanWhile(func(b byte) bool { return isNameByte(b) || b == '-' })
		return rdf.NewLangLiteral(value, lang), nil
	}
	if p.peek() == '^' && p.peekAt(1) == '^' {
		p.pos += 2
		var dt string
		if p.peek() == '<' {
			dt, err = p.parseIRIRef()
		} else {
			dt, err = p.parsePrefixedName()
		}
		if err != nil {
			return nil, err
		}
		return rdf.NewTypedLiteral(value, dt), nil
	}
	return rdf.NewLiteral(value), nil
}

func (p *Parser) parseStringLiteral() (string, error) {
	quote := p.peek()
	long := p.peekAt(1) == quote && p.peekAt(2) == quote
	if long {
		p.pos += 3
	} else {
		p.pos++
	}
	var sb strings.Builder
	for {
		if p.pos >= p.length {
			return "", p.errorf("unterminated string literal")
		}
		c := p.input[p.pos]
		if c == '\\' {
			p.pos++
			if p.pos >= p.length {
				return "", p.errorf("unterminated escape in string literal")
			}
			sb.WriteByte(unescapeChar(p.input[p.pos]))
			p.pos++
			continue
		}
		if long {
			if c == quote && p.peekAt(1) == quote && p.peekAt(2) == quote {
				p.pos += 3
				break
			}
		} else if c == quote {
			p.pos++
			break
		}
		sb.WriteByte(c)
		p.pos++
	}
	return sb.String(), nil
}

func unescapeChar(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '"', '\'', '\\':
		return c
	default:
		return c
	}
}

func (p *Parser) parseNumericLiteral() (*rdf.Literal, error) {
	start := p.pos
	if p.peek() == '+' || p.peek() == '-' {
		p.pos++
	}
	p.scanWhile(func(b byte) bool { return b >= '0' && b <= '9' })
	isDecimal := false
	if p.peek() == '.' {
		isDecimal = true
		p.pos++
		p.scanWhile(func(b byte) bool { return b >= '0' && b <= '9' })
	}
	isDouble := false
	if p.peek() == 'e' || p.peek() == 'E' {
		isDouble = true
		p.pos++
		if p.peek() == '+' || p.peek() == '-' {
			p.pos++
		}
		p.scanWhile(func(b byte) bool { return b >= '0' && b <= '9' })
	}
	lex := p.input[start:p.pos]
	if lex == "" || lex == "+" || lex == "-" {
		return nil, p.errorf("invalid numeric literal")
	}
	switch {
	case isDouble:
		return rdf.NewTypedLiteral(lex, rdf.XSDDouble), nil
	case isDecimal:
		return rdf.NewTypedLiteral(lex, rdf.XSDDecimal), nil
	default:
		return rdf.NewTypedLiteral(lex, rdf.XSDInteger), nil
	}
}

func (p *Parser) parseIntegerLiteralValue() (int64, error) {
	p.skipWS()
	start := p.pos
	if p.peek() == '+' || p.peek() == '-' {
		p.pos++
	}
	p.scanWhile(func(b byte) bool { return b >= '0' && b <= '9' })
	n, err := strconv.ParseInt(p.input[start:p.pos], 10, 64)
	if err != nil {
		return 0, p.errorf("expected integer")
	}
	return n, nil
}

// --- scanning primitives ---

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) peekAt(off int) byte {
	if p.pos+off >= p.length {
		return 0
	}
	return p.input[p.pos+off]
}

func (p *Parser) consumeByte(b byte) bool {
	if p.peek() != b {
		return false
	}
	p.pos++
	return true
}

func (p *Parser) scanWhile(pred func(byte) bool) string {
	start := p.pos
	for p.pos < p.length && pred(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWS(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isNameByte(b byte) bool {
	return isAlpha(b) || (b >= '0' && b <= '9') || b == '_' || b == '-'
}

func (p *Parser) skipWS() {
	for p.pos < p.length {
		c := p.input[p.pos]
		if isWS(c) {
			p.pos++
			continue
		}
		if c == '#' {
			for p.pos < p.length && p.input[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}

// matchKeyword consumes kw (case-insensitively) if it appears next,
// followed by a non-name byte (so "ASKX" doesn't match "ASK").
func (p *Parser) matchKeyword(kw string) bool {
	p.skipWS()
	if !p.matchesKeywordAhead(kw) {
		return false
	}
	p.pos += len(kw)
	return true
}

func (p *Parser) matchesKeywordAhead(kw string) bool {
	save := p.pos
	p.skipWS()
	ok := p.pos+len(kw) <= p.length && strings.EqualFold(p.input[p.pos:p.pos+len(kw)], kw) && !isNameByte(p.peekAt(len(kw)))
	p.pos = save
	return ok
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("at byte %d: %s", p.pos, fmt.Sprintf(format, args...))
}
