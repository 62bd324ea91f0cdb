package kernel

import "fmt"

// The parser builds a small permissive AST; the extractor in kernel.go is
// what enforces the restricted-grammar rules, so that every rejection can
// name the exact rule it violates.

type position struct {
	line int
	col  int
}

func (p position) pos() position { return p }

type expr interface {
	pos() position
	exprString() string
}

type identExpr struct {
	position
	name string
}

func (e *identExpr) exprString() string { return e.name }

type intExpr struct {
	position
	value int
}

func (e *intExpr) exprString() string { return fmt.Sprintf("%d", e.value) }

type floatExpr struct {
	position
	text string
}

func (e *floatExpr) exprString() string { return e.text }

type binaryExpr struct {
	position
	op    string
	left  expr
	right expr
}

func (e *binaryExpr) exprString() string {
	return e.left.exprString() + e.op + e.right.exprString()
}

// indexExpr is one subscript application. Multi-dimensional accesses nest:
// a[j][i] is indexExpr(indexExpr(a, j), i).
type indexExpr struct {
	position
	base      expr
	subscript expr
}

func (e *indexExpr) exprString() string {
	return e.base.exprString() + "[" + e.subscript.exprString() + "]"
}

type stmt interface {
	stmtPos() position
}

type declarator struct {
	name string
	dims []expr
}

type declStmt struct {
	position
	typeName string
	items    []declarator
}

func (s *declStmt) stmtPos() position { return s.position }

type assignStmt struct {
	position
	op  string
	lhs expr
	rhs expr
}

func (s *assignStmt) stmtPos() position { return s.position }

// forPost is the third clause of a for header: ++i, i++, i += c, or i = e.
type forPost struct {
	position
	index string
	op    string
	step  expr // nil for ++ and --
}

type forStmt struct {
	position
	init *assignStmt
	cond *binaryExpr
	post *forPost
	body []stmt
}

func (s *forStmt) stmtPos() position { return s.position }

type blockStmt struct {
	position
	stmts []stmt
}

func (s *blockStmt) stmtPos() position { return s.position }
