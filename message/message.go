// Package message defines the tagged EPC message exchanged between
// peers and its mapping to the s-expression payload.
//
// Every payload is a list whose first element is the tag symbol and
// whose second element is the correlation uid:
//
//	(call uid method args)
//	(return uid value)
//	(return-error uid description)
//	(epc-error uid description)
//	(methods uid)
package message

import (
	"errors"
	"fmt"

	"go-epc/sexp"
)

// Kind is a message tag.
type Kind string

const (
	KindCall         Kind = "call"
	KindReturn       Kind = "return"
	KindReturnError  Kind = "return-error"
	KindEPCError     Kind = "epc-error"
	KindMethods      Kind = "methods"
	KindMethodsError Kind = "methods-error"

	// KindUnknown marks a structurally valid message whose tag this
	// engine does not recognize. The dispatcher ignores it; a
	// forward-compatible peer must not be able to kill the session
	// with a new tag.
	KindUnknown Kind = "unknown"
)

// ErrMalformedMessage reports a payload that is not a well-formed EPC
// message. Fatal to the session: the stream's framing trust is broken.
var ErrMalformedMessage = errors.New("message: malformed payload")

// Message is one decoded EPC message. Which fields are meaningful
// depends on Kind.
type Message struct {
	Kind Kind
	Tag  string // raw tag symbol, kept for logging unknown kinds
	UID  uint64

	Method string    // call
	Args   sexp.List // call

	Value sexp.Value // return
	Text  string     // return-error, epc-error, methods-error
}

// Decode parses one payload into a Message.
//
// A payload that does not parse, is not a list, or violates the arity
// of a known tag is ErrMalformedMessage. A list with an unrecognized
// tag symbol and an integer uid decodes successfully as KindUnknown.
func Decode(payload []byte) (*Message, error) {
	v, err := sexp.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	list, ok := v.(sexp.List)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: payload is not a tagged list", ErrMalformedMessage)
	}
	tag, ok := list[0].(sexp.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: tag is not a symbol", ErrMalformedMessage)
	}

	m := &Message{Tag: string(tag)}
	switch Kind(tag) {
	case KindCall:
		if err := m.uidFrom(list); err != nil {
			return nil, err
		}
		if len(list) != 4 {
			return nil, arityErr(tag, len(list))
		}
		name, ok := symbolOrString(list[2])
		if !ok {
			return nil, fmt.Errorf("%w: call method name is not a symbol", ErrMalformedMessage)
		}
		args, ok := list[3].(sexp.List)
		if !ok {
			return nil, fmt.Errorf("%w: call arguments are not a list", ErrMalformedMessage)
		}
		m.Kind = KindCall
		m.Method = name
		m.Args = args

	case KindReturn:
		if err := m.uidFrom(list); err != nil {
			return nil, err
		}
		if len(list) != 3 {
			return nil, arityErr(tag, len(list))
		}
		m.Kind = KindReturn
		m.Value = list[2]

	case KindReturnError, KindEPCError, KindMethodsError:
		if err := m.uidFrom(list); err != nil {
			return nil, err
		}
		if len(list) != 3 {
			return nil, arityErr(tag, len(list))
		}
		m.Kind = Kind(tag)
		m.Text = describe(list[2])

	case KindMethods:
		if err := m.uidFrom(list); err != nil {
			return nil, err
		}
		if len(list) != 2 {
			return nil, arityErr(tag, len(list))
		}
		m.Kind = KindMethods

	default:
		m.Kind = KindUnknown
		if len(list) >= 2 {
			if uid, ok := list[1].(sexp.Int); ok && uid >= 0 {
				m.UID = uint64(uid)
			}
		}
	}
	return m, nil
}

// Encode serializes the message back into its payload form.
func (m *Message) Encode() ([]byte, error) {
	var body sexp.List
	switch m.Kind {
	case KindCall:
		args := m.Args
		if args == nil {
			args = sexp.List{}
		}
		body = sexp.List{sexp.Symbol(KindCall), sexp.Int(m.UID), sexp.Symbol(m.Method), args}
	case KindReturn:
		value := m.Value
		if value == nil {
			value = sexp.List{}
		}
		body = sexp.List{sexp.Symbol(KindReturn), sexp.Int(m.UID), value}
	case KindReturnError, KindEPCError, KindMethodsError:
		body = sexp.List{sexp.Symbol(m.Kind), sexp.Int(m.UID), sexp.String(m.Text)}
	case KindMethods:
		body = sexp.List{sexp.Symbol(KindMethods), sexp.Int(m.UID)}
	default:
		return nil, fmt.Errorf("message: cannot encode kind %q", m.Kind)
	}
	return sexp.Encode(body), nil
}

// uidFrom validates and stores the uid element. A missing or negative
// uid breaks correlation, so it is malformed rather than unknown.
func (m *Message) uidFrom(list sexp.List) error {
	if len(list) < 2 {
		return fmt.Errorf("%w: %s without uid", ErrMalformedMessage, list[0])
	}
	uid, ok := list[1].(sexp.Int)
	if !ok || uid < 0 {
		return fmt.Errorf("%w: uid %s is not a non-negative integer",
			ErrMalformedMessage, sexp.EncodeString(list[1]))
	}
	m.UID = uint64(uid)
	return nil
}

func arityErr(tag sexp.Symbol, n int) error {
	return fmt.Errorf("%w: %s with %d elements", ErrMalformedMessage, tag, n)
}

func symbolOrString(v sexp.Value) (string, bool) {
	switch s := v.(type) {
	case sexp.Symbol:
		return string(s), true
	case sexp.String:
		return string(s), true
	}
	return "", false
}

// describe renders an error description element. Peers normally send a
// string, but Emacs sometimes reports raw error forms; render whatever
// arrived rather than reject it.
func describe(v sexp.Value) string {
	if s, ok := v.(sexp.String); ok {
		return string(s)
	}
	return sexp.EncodeString(v)
}
