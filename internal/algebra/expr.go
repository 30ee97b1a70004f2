package algebra

import "github.com/relkv/rdfstore/rdf"

// Expr is the FILTER/BIND/HAVING/ORDER BY expression language (spec
// §4.3.5). Sum type over node kind, same pattern as Node.
type Expr interface {
	exprNode()
}

type Op int

const (
	OpAnd Op = iota
	OpOr
	OpNot
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpUnaryMinus
	OpUnaryPlus
)

type BinaryExpr struct {
	Op          Op
	Left, Right Expr
}

func (*BinaryExpr) exprNode() {}

type UnaryExpr struct {
	Op      Op
	Operand Expr
}

func (*UnaryExpr) exprNode() {}

type VarExpr struct{ Var Var }

func (*VarExpr) exprNode() {}

type LiteralExpr struct{ Term rdf.Term }

func (*LiteralExpr) exprNode() {}

// CallExpr is a builtin function call: BOUND, ISIRI, ISBLANK, ISLITERAL,
// ISNUMERIC, STR, LANG, DATATYPE, STRLEN, SUBSTR, UCASE, LCASE, CONCAT,
// CONTAINS, STRSTARTS, STRENDS, REGEX, LANGMATCHES, SAMETERM, ABS, CEIL,
// FLOOR, ROUND, COALESCE, IF.
type CallExpr struct {
	Function string
	Args     []Expr
}

func (*CallExpr) exprNode() {}

// ExistsExpr evaluates EXISTS/NOT EXISTS { Pattern } against the store
// with the current binding's bound variables substituted in.
type ExistsExpr struct {
	Pattern Node
	Not     bool
}

func (*ExistsExpr) exprNode() {}

// InExpr is `expr IN (values...)` / `expr NOT IN (values...)`.
type InExpr struct {
	Expr   Expr
	Values []Expr
	Not    bool
}

func (*InExpr) exprNode() {}

// AggregateRefExpr references an aggregate's result variable from within
// a HAVING or a SELECT projection that names an aggregate alias.
type AggregateRefExpr struct{ Var Var }

func (*AggregateRefExpr) exprNode() {}
