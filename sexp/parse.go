package sexp

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("sexp: syntax error")

// Parse reads exactly one value from data. Trailing whitespace is
// allowed; any other trailing bytes are a syntax error.
func Parse(data []byte) (Value, error) {
	p := &parser{data: data}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.data) {
		return nil, fmt.Errorf("%w: trailing bytes at offset %d", ErrSyntax, p.pos)
	}
	return v, nil
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) value() (Value, error) {
	p.skipSpace()
	if p.pos >= len(p.data) {
		return nil, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	switch p.data[p.pos] {
	case '(':
		return p.list()
	case ')':
		return nil, fmt.Errorf("%w: unexpected ')' at offset %d", ErrSyntax, p.pos)
	case '"':
		return p.string()
	default:
		return p.atom()
	}
}

func (p *parser) list() (Value, error) {
	p.pos++ // consume '('
	var l List
	for {
		p.skipSpace()
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("%w: unterminated list", ErrSyntax)
		}
		if p.data[p.pos] == ')' {
			p.pos++
			if l == nil {
				return List{}, nil
			}
			return l, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
}

func (p *parser) string() (Value, error) {
	p.pos++ // consume opening quote
	var out []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch c {
		case '"':
			p.pos++
			return String(out), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.data) {
				return nil, fmt.Errorf("%w: unterminated escape", ErrSyntax)
			}
			switch e := p.data[p.pos]; e {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			default:
				// \" and \\ decode to the escaped byte itself
				out = append(out, e)
			}
			p.pos++
		default:
			out = append(out, c)
			p.pos++
		}
	}
	return nil, fmt.Errorf("%w: unterminated string", ErrSyntax)
}

// atom reads until a delimiter and classifies the token as an integer,
// nil, or a symbol.
func (p *parser) atom() (Value, error) {
	start := p.pos
	for p.pos < len(p.data) && !isDelim(p.data[p.pos]) {
		p.pos++
	}
	tok := string(p.data[start:p.pos])
	if tok == "nil" {
		return List{}, nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return Int(n), nil
	}
	return Symbol(tok), nil
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '"':
		return true
	}
	return false
}
