package registry

import (
	"context"
	"fmt"
	"reflect"

	"go-epc/sexp"
)

// RegisterFunc adapts an ordinary Go function into a Handler and
// registers it under name.
//
// fn may take an optional leading context.Context, then any number of
// parameters of type sexp.Value, sexp.List, string, int, int64, or
// bool (a trailing variadic of one of those is allowed). It may return
// nothing, a single value, an error, or (value, error). Return values
// convert back with Go strings becoming EPC strings, bools becoming
// t/nil, and nil results becoming nil.
//
// Argument conversion happens at call time: a peer supplying the wrong
// number or shape of arguments gets a return-error, not a crash.
func (r *Registry) RegisterFunc(name string, fn any, doc string) error {
	typ := reflect.TypeOf(fn)
	if typ == nil || typ.Kind() != reflect.Func {
		return fmt.Errorf("registry: %q is not a function", name)
	}
	val := reflect.ValueOf(fn)

	wantsCtx := typ.NumIn() > 0 && typ.In(0) == ctxType
	firstArg := 0
	if wantsCtx {
		firstArg = 1
	}
	for i := firstArg; i < typ.NumIn(); i++ {
		in := typ.In(i)
		if i == typ.NumIn()-1 && typ.IsVariadic() {
			in = in.Elem()
		}
		if !convertibleIn(in) {
			return fmt.Errorf("registry: %q parameter %d has unsupported type %s", name, i, in)
		}
	}
	if typ.NumOut() > 2 {
		return fmt.Errorf("registry: %q returns %d values, want at most 2", name, typ.NumOut())
	}
	if typ.NumOut() == 2 && typ.Out(1) != errType {
		return fmt.Errorf("registry: %q second return value must be error", name)
	}

	handler := func(ctx context.Context, args sexp.List) (sexp.Value, error) {
		in, err := buildArgs(typ, wantsCtx, ctx, args)
		if err != nil {
			return nil, err
		}
		out := val.Call(in)
		return splitResults(typ, out)
	}
	r.Register(name, handler, doc)
	return nil
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType   = reflect.TypeOf((*error)(nil)).Elem()
	valueType = reflect.TypeOf((*sexp.Value)(nil)).Elem()
	listType  = reflect.TypeOf(sexp.List(nil))
)

func convertibleIn(t reflect.Type) bool {
	switch t {
	case valueType, listType:
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Int, reflect.Int64, reflect.Bool:
		return true
	}
	return false
}

func buildArgs(typ reflect.Type, wantsCtx bool, ctx context.Context, args sexp.List) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, typ.NumIn())
	if wantsCtx {
		in = append(in, reflect.ValueOf(ctx))
	}

	fixed := typ.NumIn() - len(in)
	if typ.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("wrong number of arguments: got %d, want at least %d", len(args), fixed)
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("wrong number of arguments: got %d, want %d", len(args), fixed)
	}

	for i, arg := range args {
		var want reflect.Type
		pos := len(in)
		if typ.IsVariadic() && pos >= typ.NumIn()-1 {
			want = typ.In(typ.NumIn() - 1).Elem()
		} else {
			want = typ.In(pos)
		}
		v, err := convertArg(want, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}
	return in, nil
}

func convertArg(want reflect.Type, arg sexp.Value) (reflect.Value, error) {
	switch want {
	case valueType:
		return reflect.ValueOf(&arg).Elem(), nil
	case listType:
		l, ok := arg.(sexp.List)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected a list, got %s", sexp.EncodeString(arg))
		}
		return reflect.ValueOf(l), nil
	}
	switch want.Kind() {
	case reflect.String:
		switch s := arg.(type) {
		case sexp.String:
			return reflect.ValueOf(string(s)).Convert(want), nil
		case sexp.Symbol:
			return reflect.ValueOf(string(s)).Convert(want), nil
		}
		return reflect.Value{}, fmt.Errorf("expected a string, got %s", sexp.EncodeString(arg))
	case reflect.Int, reflect.Int64:
		n, ok := arg.(sexp.Int)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected an integer, got %s", sexp.EncodeString(arg))
		}
		return reflect.ValueOf(int64(n)).Convert(want), nil
	case reflect.Bool:
		// Lisp truth: nil and the empty list are false, all else true
		truthy := true
		if l, ok := arg.(sexp.List); ok && len(l) == 0 {
			truthy = false
		}
		return reflect.ValueOf(truthy), nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported parameter type %s", want)
}

func splitResults(typ reflect.Type, out []reflect.Value) (sexp.Value, error) {
	switch typ.NumOut() {
	case 0:
		return sexp.List{}, nil
	case 1:
		if typ.Out(0) == errType {
			if !out[0].IsNil() {
				return nil, out[0].Interface().(error)
			}
			return sexp.List{}, nil
		}
		return toSexp(out[0])
	default:
		if !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return toSexp(out[0])
	}
}

func toSexp(v reflect.Value) (sexp.Value, error) {
	if v.Type().Implements(valueType) {
		if v.Kind() == reflect.Interface && v.IsNil() {
			return sexp.List{}, nil
		}
		return v.Interface().(sexp.Value), nil
	}
	switch v.Kind() {
	case reflect.String:
		return sexp.String(v.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return sexp.Int(v.Int()), nil
	case reflect.Bool:
		if v.Bool() {
			return sexp.Symbol("t"), nil
		}
		return sexp.List{}, nil
	case reflect.Slice:
		out := make(sexp.List, v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := toSexp(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	}
	return nil, fmt.Errorf("registry: cannot convert %s result to a wire value", v.Type())
}
