package sexp

import (
	"errors"
	"testing"
)

func TestEncodeAtoms(t *testing.T) {
	cases := []struct {
		in   Value
		want string
	}{
		{Symbol("echo"), "echo"},
		{Symbol("return-error"), "return-error"},
		{Int(0), "0"},
		{Int(-42), "-42"},
		{String("x"), `"x"`},
		{String(`say "hi"`), `"say \"hi\""`},
		{String("a\\b"), `"a\\b"`},
		{String("line1\nline2\t."), `"line1\nline2\t."`},
		{List{}, "nil"},
		{List{Symbol("call"), Int(0), Symbol("echo"), List{String("x")}}, `(call 0 echo ("x"))`},
	}
	for _, c := range cases {
		if got := EncodeString(c.in); got != c.want {
			t.Errorf("Encode(%#v): got %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	values := []Value{
		Symbol("methods"),
		Int(123456),
		Int(-7),
		String(""),
		String("quote \" backslash \\ newline \n tab \t"),
		List{},
		List{Int(1), List{Int(2), List{Int(3), List{}}}},
		List{Symbol("return"), Int(0), List{String("x"), String("y")}},
	}
	for _, v := range values {
		encoded := Encode(v)
		back, err := Parse(encoded)
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", encoded, err)
		}
		if !Equal(v, back) {
			t.Errorf("round trip mismatch: %s parsed to %#v", encoded, back)
		}
	}
}

func TestParseNilSpellings(t *testing.T) {
	for _, in := range []string{"nil", "()", "( )"} {
		v, err := Parse([]byte(in))
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", in, err)
		}
		if !Equal(v, List{}) {
			t.Errorf("Parse(%q): got %#v, want empty list", in, v)
		}
	}
}

func TestParseWhitespace(t *testing.T) {
	v, err := Parse([]byte("  ( call  1\n  echo ( \"a\"  \"b\" ) )  \n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := List{Symbol("call"), Int(1), Symbol("echo"), List{String("a"), String("b")}}
	if !Equal(v, want) {
		t.Errorf("got %#v, want %#v", v, want)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	bad := []string{
		"",
		"(call 0",
		")",
		`"unterminated`,
		`"bad escape \`,
		"(a) trailing",
	}
	for _, in := range bad {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q): expected ErrSyntax, got %v", in, err)
		}
	}
}

func TestParseSignedTokens(t *testing.T) {
	// "+12" and "-12" are integers, a lone "-" is a symbol
	v, err := Parse([]byte("(+12 -12 -)"))
	if err != nil {
		t.Fatal(err)
	}
	want := List{Int(12), Int(-12), Symbol("-")}
	if !Equal(v, want) {
		t.Errorf("got %#v, want %#v", v, want)
	}
}

func TestEqualEmptyLists(t *testing.T) {
	if !Equal(List(nil), List{}) {
		t.Error("nil slice and empty list must compare equal")
	}
	if Equal(List{}, Symbol("nil")) {
		t.Error("empty list must not equal the symbol nil")
	}
}
