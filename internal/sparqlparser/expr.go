package sparqlparser

import (
	"strings"

	"github.com/relkv/rdfstore/internal/algebra"
	"github.com/relkv/rdfstore/rdf"
)

// parseConstraint parses a FILTER's constraint: grammar-wise one of
// BrackettedExpression / BuiltInCall / FunctionCall, all of which
// parseExpression already covers via parsePrimaryExpression.
func (p *Parser) parseConstraint() (algebra.Expr, error) {
	return p.parseExpression()
}

func (p *Parser) parseBracketedExpression() (algebra.Expr, error) {
	p.skipWS()
	if !p.consumeByte('(') {
		return nil, p.errorf("expected '('")
	}
	e, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if !p.consumeByte(')') {
		return nil, p.errorf("expected ')'")
	}
	return e, nil
}

func (p *Parser) parseExpression() (algebra.Expr, error) {
	return p.parseConditionalOr()
}

func (p *Parser) parseConditionalOr() (algebra.Expr, error) {
	left, err := p.parseConditionalAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() != '|' || p.peekAt(1) != '|' {
			break
		}
		p.pos += 2
		right, err := p.parseConditionalAnd()
		if err != nil {
			return nil, err
		}
		left = &algebra.BinaryExpr{Op: algebra.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseConditionalAnd() (algebra.Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() != '&' || p.peekAt(1) != '&' {
			break
		}
		p.pos += 2
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &algebra.BinaryExpr{Op: algebra.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseRelational() (algebra.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	not := false
	if p.matchKeyword("NOT") {
		not = true
	}
	if p.matchKeyword("IN") {
		values, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return &algebra.InExpr{Expr: left, Values: values, Not: not}, nil
	}
	if not {
		return nil, p.errorf("expected IN after NOT")
	}

	op, ok := p.matchCompareOp()
	if !ok {
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &algebra.BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) matchCompareOp() (algebra.Op, bool) {
	p.skipWS()
	switch {
	case p.peek() == '=' && p.peekAt(1) != '=':
		p.pos++
		return algebra.OpEqual, true
	case p.peek() == '!' && p.peekAt(1) == '=':
		p.pos += 2
		return algebra.OpNotEqual, true
	case p.peek() == '<' && p.peekAt(1) == '=':
		p.pos += 2
		return algebra.OpLessEqual, true
	case p.peek() == '>' && p.peekAt(1) == '=':
		p.pos += 2
		return algebra.OpGreaterEqual, true
	case p.peek() == '<':
		p.pos++
		return algebra.OpLess, true
	case p.peek() == '>':
		p.pos++
		return algebra.OpGreater, true
	default:
		return 0, false
	}
}

func (p *Parser) parseExpressionList() ([]algebra.Expr, error) {
	p.skipWS()
	if !p.consumeByte('(') {
		return nil, p.errorf("expected '(' starting expression list")
	}
	var out []algebra.Expr
	p.skipWS()
	if p.peek() == ')' {
		p.pos++
		return out, nil
	}
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		p.skipWS()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	p.skipWS()
	if !p.consumeByte(')') {
		return nil, p.errorf("expected ')' closing expression list")
	}
	return out, nil
}

func (p *Parser) parseAdditive() (algebra.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		var op algebra.Op
		switch p.peek() {
		case '+':
			op = algebra.OpAdd
		case '-':
			op = algebra.OpSubtract
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &algebra.BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (algebra.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		var op algebra.Op
		switch p.peek() {
		case '*':
			op = algebra.OpMultiply
		case '/':
			op = algebra.OpDivide
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &algebra.BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (algebra.Expr, error) {
	p.skipWS()
	switch p.peek() {
	case '!':
		p.pos++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &algebra.UnaryExpr{Op: algebra.OpNot, Operand: e}, nil
	case '+':
		p.pos++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &algebra.UnaryExpr{Op: algebra.OpUnaryPlus, Operand: e}, nil
	case '-':
		p.pos++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &algebra.UnaryExpr{Op: algebra.OpUnaryMinus, Operand: e}, nil
	default:
		return p.parsePrimaryExpression()
	}
}

// aggregateNames maps the case-insensitive keyword to its AggregateKind.
var aggregateNames = map[string]algebra.AggregateKind{
	"COUNT":        algebra.AggCount,
	"SUM":          algebra.AggSum,
	"AVG":          algebra.AggAvg,
	"MIN":          algebra.AggMin,
	"MAX":          algebra.AggMax,
	"GROUP_CONCAT": algebra.AggGroupConcat,
	"SAMPLE":       algebra.AggSample,
}

func (p *Parser) parsePrimaryExpression() (algebra.Expr, error) {
	p.skipWS()

	if p.peek() == '(' {
		return p.parseBracketedExpression()
	}
	if p.peek() == '?' || p.peek() == '$' {
		v, err := p.parseVar()
		if err != nil {
			return nil, err
		}
		return &algebra.VarExpr{Var: v}, nil
	}
	if p.matchKeyword("EXISTS") {
		pattern, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return &algebra.ExistsExpr{Pattern: pattern}, nil
	}
	if p.matchKeyword("NOT") {
		if !p.matchKeyword("EXISTS") {
			return nil, p.errorf("expected EXISTS after NOT")
		}
		pattern, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return &algebra.ExistsExpr{Pattern: pattern, Not: true}, nil
	}

	for kw, kind := range aggregateNames {
		if p.matchesKeywordAhead(kw) && p.followsOpenParen(len(kw)) {
			p.pos += len(kw)
			return p.parseAggregateCall(kind)
		}
	}

	if name, ok := p.peekFunctionName(); ok {
		upper := strings.ToUpper(name)
		if isBuiltinFunction(upper) && p.followsOpenParen(len(name)) {
			p.pos += len(name)
			return p.parseCallArgs(upper)
		}
	}

	// IRIrefOrFunction / RDFLiteral / NumericLiteral / BooleanLiteral
	t, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if nn, ok := t.Const.(*rdf.NamedNode); ok {
		p.skipWS()
		if p.peek() == '(' {
			args, err := p.parseExpressionList()
			if err != nil {
				return nil, err
			}
			return &algebra.CallExpr{Function: nn.IRI, Args: args}, nil
		}
	}
	return &algebra.LiteralExpr{Term: t.Const}, nil
}

// followsOpenParen reports whether, skipping whitespace, the byte after
// skipping `offset` more bytes from the current position is '(' — used
// to disambiguate an aggregate-function keyword from a prefixed name or
// variable that merely starts with the same letters.
func (p *Parser) followsOpenParen(offset int) bool {
	save := p.pos
	p.pos += offset
	p.skipWS()
	ok := p.peek() == '('
	p.pos = save
	return ok
}

func (p *Parser) peekFunctionName() (string, bool) {
	save := p.pos
	name := p.scanWhile(isNameByte)
	p.pos = save
	if name == "" {
		return "", false
	}
	return name, true
}

var builtinFunctions = map[string]bool{
	"BOUND": true, "ISIRI": true, "ISURI": true, "ISBLANK": true, "ISLITERAL": true,
	"ISNUMERIC": true, "STR": true, "LANG": true, "DATATYPE": true, "STRLEN": true,
	"SUBSTR": true, "UCASE": true, "LCASE": true, "CONCAT": true, "CONTAINS": true,
	"STRSTARTS": true, "STRENDS": true, "REGEX": true, "LANGMATCHES": true,
	"SAMETERM": true, "ABS": true, "CEIL": true, "FLOOR": true, "ROUND": true,
	"COALESCE": true, "IF": true, "STRBEFORE": true, "STRAFTER": true, "REPLACE": true,
	"YEAR": true, "MONTH": true, "DAY": true, "HOURS": true, "MINUTES": true, "SECONDS": true,
	"NOW": true, "UUID": true, "STRUUID": true, "RAND": true, "MD5": true, "SHA1": true, "SHA256": true,
}

func isBuiltinFunction(name string) bool { return builtinFunctions[name] }

func (p *Parser) parseCallArgs(function string) (algebra.Expr, error) {
	args, err := p.parseExpressionList()
	if err != nil {
		return nil, err
	}
	return &algebra.CallExpr{Function: function, Args: args}, nil
}

func (p *Parser) parseAggregateCall(kind algebra.AggregateKind) (algebra.Expr, error) {
	p.skipWS()
	if !p.consumeByte('(') {
		return nil, p.errorf("expected '(' after aggregate function")
	}
	distinct := false
	p.skipWS()
	if p.matchKeyword("DISTINCT") {
		distinct = true
	}

	var expr algebra.Expr
	p.skipWS()
	if kind == algebra.AggCount && p.peek() == '*' {
		p.pos++
	} else {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		expr = e
	}

	sep := " "
	p.skipWS()
	if p.matchKeyword("SEPARATOR") {
		p.skipWS()
		if !p.consumeByte('=') {
			return nil, p.errorf("expected '=' after SEPARATOR")
		}
		p.skipWS()
		s, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		sep = s
	}

	p.skipWS()
	if !p.consumeByte(')') {
		return nil, p.errorf("expected ')' closing aggregate call")
	}

	alias := p.freshAggVar()
	agg := algebra.Aggregate{Kind: kind, Expr: expr, Distinct: distinct, Sep: sep, As: alias}
	if p.pendingAggs != nil {
		*p.pendingAggs = append(*p.pendingAggs, agg)
	} else {
		// Aggregate used somewhere no Group node will be built (e.g. a
		// stray aggregate inside an ordinary FILTER) — still produce a
		// valid expression tree; evaluation will simply see an unbound
		// reference, same as any other unresolved variable.
	}
	return &algebra.AggregateRefExpr{Var: alias}, nil
}
