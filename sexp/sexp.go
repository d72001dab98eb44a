// Package sexp implements the s-expression value model used as EPC's
// payload syntax.
//
// The protocol only ever exchanges four shapes: symbols, strings,
// integers, and ordered lists of those. An empty list prints as the
// symbol nil (the Emacs convention); both "nil" and "()" parse back to
// the empty list.
package sexp

import (
	"strconv"
)

// Value is one s-expression node: Symbol, String, Int, or List.
type Value interface {
	appendTo(dst []byte) []byte
}

// Symbol is an unquoted atom, e.g. a method name or a message tag.
type Symbol string

// String is a double-quoted atom with backslash escapes.
type String string

// Int is a decimal integer atom.
type Int int64

// List is an ordered sequence of values. The empty list is the EPC nil.
type List []Value

func (s Symbol) appendTo(dst []byte) []byte {
	return append(dst, s...)
}

func (s String) appendTo(dst []byte) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\r':
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}

func (i Int) appendTo(dst []byte) []byte {
	return strconv.AppendInt(dst, int64(i), 10)
}

func (l List) appendTo(dst []byte) []byte {
	if len(l) == 0 {
		return append(dst, "nil"...)
	}
	dst = append(dst, '(')
	for i, v := range l {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = v.appendTo(dst)
	}
	return append(dst, ')')
}

// Encode serializes v into its textual form.
func Encode(v Value) []byte {
	return v.appendTo(nil)
}

// EncodeString is Encode returning a string, for messages and tests.
func EncodeString(v Value) string {
	return string(Encode(v))
}

// Equal reports whether two values are structurally identical. Empty
// lists compare equal regardless of whether the slice is nil.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Symbol:
		bv, ok := b.(Symbol)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	}
	return false
}
