package kernel

import (
	"fmt"
	"strconv"
)

type parser struct {
	toks []token
	pos  int
}

func parse(src string) ([]stmt, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}

	var stmts []stmt
	for p.peek().kind != tokEOF {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}

	return stmts, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}

	return p.toks[p.pos+n]
}

func (p *parser) take() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}

	return tok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.take()
	if tok.kind != kind {
		return token{}, p.errAt(tok, fmt.Sprintf("%s before %s", what, tok))
	}

	return tok, nil
}

func (p *parser) errAt(tok token, construct string) error {
	return &UnsupportedConstructError{
		Construct: construct,
		Line:      tok.line,
		Col:       tok.col,
	}
}

func (p *parser) parseStmt() (stmt, error) {
	tok := p.peek()

	switch {
	case tok.kind == tokIdent && tok.text == "for":
		return p.parseFor()
	case tok.kind == tokLBrace:
		return p.parseBlock()
	case tok.kind == tokIdent && p.peekAt(1).kind == tokIdent:
		// A type name followed by an identifier is a declaration.
		return p.parseDecl()
	default:
		return p.parseAssign()
	}
}

func (p *parser) parseDecl() (stmt, error) {
	typeTok := p.take()
	decl := &declStmt{
		position: position{typeTok.line, typeTok.col},
		typeName: typeTok.text,
	}

	for {
		nameTok, err := p.expect(tokIdent, "expected variable name")
		if err != nil {
			return nil, err
		}

		d := declarator{name: nameTok.text}
		for p.peek().kind == tokLBracket {
			p.take()
			dim, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBracket, "expected ]"); err != nil {
				return nil, err
			}
			d.dims = append(d.dims, dim)
		}
		decl.items = append(decl.items, d)

		sep := p.take()
		switch sep.kind {
		case tokComma:
			continue
		case tokSemicolon:
			return decl, nil
		default:
			return nil, p.errAt(sep, fmt.Sprintf("expected , or ; before %s", sep))
		}
	}
}

func (p *parser) parseBlock() (stmt, error) {
	open := p.take()
	block := &blockStmt{position: position{open.line, open.col}}

	for p.peek().kind != tokRBrace {
		if p.peek().kind == tokEOF {
			return nil, p.errAt(p.peek(), "unterminated block")
		}

		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		block.stmts = append(block.stmts, s)
	}
	p.take()

	return block, nil
}

func (p *parser) parseFor() (stmt, error) {
	forTok := p.take()
	loop := &forStmt{position: position{forTok.line, forTok.col}}

	if _, err := p.expect(tokLParen, "expected ( after for"); err != nil {
		return nil, err
	}

	init, err := p.parseAssignClause()
	if err != nil {
		return nil, err
	}
	loop.init = init
	if _, err := p.expect(tokSemicolon, "expected ; after loop initializer"); err != nil {
		return nil, err
	}

	cond, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	loop.cond = cond
	if _, err := p.expect(tokSemicolon, "expected ; after loop condition"); err != nil {
		return nil, err
	}

	post, err := p.parsePost()
	if err != nil {
		return nil, err
	}
	loop.post = post
	if _, err := p.expect(tokRParen, "expected ) after loop header"); err != nil {
		return nil, err
	}

	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if block, ok := body.(*blockStmt); ok {
		loop.body = block.stmts
	} else {
		loop.body = []stmt{body}
	}

	return loop, nil
}

// parseAssignClause parses `name = expr` without a trailing semicolon, as
// used in the for-loop initializer. The counter may be declared inline,
// `for (int i = 0; ...)`; the type carries no information since counters
// are always integers.
func (p *parser) parseAssignClause() (*assignStmt, error) {
	if p.peek().kind == tokIdent && p.peekAt(1).kind == tokIdent {
		p.take()
	}

	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	opTok := p.take()
	if opTok.kind != tokAssign {
		return nil, p.errAt(opTok,
			fmt.Sprintf("loop initializer must be an assignment, found %s", opTok))
	}

	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	return &assignStmt{
		position: lhs.pos(),
		op:       "=",
		lhs:      lhs,
		rhs:      rhs,
	}, nil
}

func (p *parser) parseCond() (*binaryExpr, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	opTok := p.take()
	var op string
	switch opTok.kind {
	case tokLess:
		op = "<"
	case tokLessEqual:
		op = "<="
	case tokGreater:
		op = ">"
	case tokGreaterEqual:
		op = ">="
	default:
		return nil, p.errAt(opTok,
			fmt.Sprintf("loop condition must be a comparison, found %s", opTok))
	}

	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	return &binaryExpr{
		position: left.pos(),
		op:       op,
		left:     left,
		right:    right,
	}, nil
}

func (p *parser) parsePost() (*forPost, error) {
	tok := p.take()

	// Prefix form: ++i or --i.
	if tok.kind == tokIncrement || tok.kind == tokDecrement {
		nameTok, err := p.expect(tokIdent, "expected loop counter")
		if err != nil {
			return nil, err
		}

		return &forPost{
			position: position{tok.line, tok.col},
			index:    nameTok.text,
			op:       tok.text,
		}, nil
	}

	if tok.kind != tokIdent {
		return nil, p.errAt(tok,
			fmt.Sprintf("loop step must act on the loop counter, found %s", tok))
	}

	opTok := p.take()
	post := &forPost{
		position: position{tok.line, tok.col},
		index:    tok.text,
		op:       opTok.text,
	}

	switch opTok.kind {
	case tokIncrement, tokDecrement:
		return post, nil
	case tokPlusAssign, tokAssign:
		step, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		post.step = step

		return post, nil
	default:
		return nil, p.errAt(opTok,
			fmt.Sprintf("unsupported loop step operator %s", opTok))
	}
}

func (p *parser) parseAssign() (stmt, error) {
	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	opTok := p.take()
	if opTok.kind != tokAssign && opTok.kind != tokPlusAssign {
		return nil, p.errAt(opTok,
			fmt.Sprintf("expected assignment, found %s", opTok))
	}

	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokSemicolon, "expected ; after assignment"); err != nil {
		return nil, err
	}

	return &assignStmt{
		position: lhs.pos(),
		op:       opTok.text,
		lhs:      lhs,
		rhs:      rhs,
	}, nil
}

func (p *parser) parseExpr() (expr, error) {
	return p.parseAdditive()
}

func (p *parser) parseAdditive() (expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for {
		var op string
		switch p.peek().kind {
		case tokPlus:
			op = "+"
		case tokMinus:
			op = "-"
		default:
			return left, nil
		}
		p.take()

		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}

		left = &binaryExpr{position: left.pos(), op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (expr, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}

	for {
		var op string
		switch p.peek().kind {
		case tokStar:
			op = "*"
		case tokSlash:
			op = "/"
		default:
			return left, nil
		}
		p.take()

		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}

		left = &binaryExpr{position: left.pos(), op: op, left: left, right: right}
	}
}

func (p *parser) parsePostfix() (expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokLBracket {
		open := p.take()
		sub, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "expected ]"); err != nil {
			return nil, err
		}

		e = &indexExpr{
			position:  position{open.line, open.col},
			base:      e,
			subscript: sub,
		}
	}

	return e, nil
}

func (p *parser) parsePrimary() (expr, error) {
	tok := p.take()

	switch tok.kind {
	case tokIdent:
		return &identExpr{position{tok.line, tok.col}, tok.text}, nil
	case tokInt:
		v, err := strconv.Atoi(tok.text)
		if err != nil {
			return nil, p.errAt(tok, fmt.Sprintf("integer literal %s out of range", tok))
		}
		return &intExpr{position{tok.line, tok.col}, v}, nil
	case tokFloat:
		return &floatExpr{position{tok.line, tok.col}, tok.text}, nil
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "expected )"); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, p.errAt(tok, fmt.Sprintf("unexpected %s in expression", tok))
	}
}
