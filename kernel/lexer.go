package kernel

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokSemicolon
	tokComma
	tokAssign     // =
	tokPlusAssign // +=
	tokIncrement  // ++
	tokDecrement  // --
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLess
	tokLessEqual
	tokGreater
	tokGreaterEqual
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}

	return fmt.Sprintf("%q", t.text)
}

// lexer splits kernel source into tokens. It only knows the characters the
// restricted grammar can produce; anything else is a structural error.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

// tokenize scans the whole input. It is simpler to scan eagerly than to
// interleave scanning with parsing, given how small kernels are.
func (l *lexer) tokenize() ([]token, error) {
	var toks []token

	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}

		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()

	if l.pos >= len(l.src) {
		return l.emit(tokEOF, ""), nil
	}

	c := l.src[l.pos]

	switch {
	case isIdentStart(c):
		return l.scanIdent(), nil
	case isDigit(c):
		return l.scanNumber(), nil
	}

	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}

	switch two {
	case "+=":
		return l.emitAdvance(tokPlusAssign, two), nil
	case "++":
		return l.emitAdvance(tokIncrement, two), nil
	case "--":
		return l.emitAdvance(tokDecrement, two), nil
	case "<=":
		return l.emitAdvance(tokLessEqual, two), nil
	case ">=":
		return l.emitAdvance(tokGreaterEqual, two), nil
	}

	single := map[byte]tokenKind{
		'(': tokLParen, ')': tokRParen,
		'[': tokLBracket, ']': tokRBracket,
		'{': tokLBrace, '}': tokRBrace,
		';': tokSemicolon, ',': tokComma,
		'=': tokAssign, '<': tokLess, '>': tokGreater,
		'+': tokPlus, '-': tokMinus, '*': tokStar, '/': tokSlash,
	}

	if kind, ok := single[c]; ok {
		return l.emitAdvance(kind, string(c)), nil
	}

	return token{}, &UnsupportedConstructError{
		Construct: fmt.Sprintf("character %q", string(c)),
		Line:      l.line,
		Col:       l.col,
	}
}

func (l *lexer) scanIdent() token {
	start := l.pos
	tok := l.emit(tokIdent, "")

	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.advance()
	}

	tok.text = l.src[start:l.pos]

	return tok
}

// scanNumber scans integer and float literals, including C float spellings
// like 2.0, 0.25, and 2.f.
func (l *lexer) scanNumber() token {
	start := l.pos
	tok := l.emit(tokInt, "")

	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.advance()
	}

	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		tok.kind = tokFloat
		l.advance()
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance()
		}
	}

	if l.pos < len(l.src) && (l.src[l.pos] == 'f' || l.src[l.pos] == 'F') {
		tok.kind = tokFloat
		l.advance()
	}

	tok.text = l.src[start:l.pos]

	return tok
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && strings.ContainsRune(" \t\r\n", rune(l.src[l.pos])) {
		l.advance()
	}
}

func (l *lexer) advance() {
	if l.src[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *lexer) emit(kind tokenKind, text string) token {
	return token{kind: kind, text: text, line: l.line, col: l.col}
}

func (l *lexer) emitAdvance(kind tokenKind, text string) token {
	tok := l.emit(kind, text)
	for range text {
		l.advance()
	}

	return tok
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
