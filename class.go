package asyncify

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// specialNames are method names that Class never asyncifies:
// formatting, lifecycle and marshaling hooks that other code calls
// synchronously by contract.
var specialNames = map[string]bool{
	"String":          true,
	"GoString":        true,
	"Error":           true,
	"Format":          true,
	"Close":           true,
	"Shutdown":        true,
	"Init":            true,
	"MarshalJSON":     true,
	"UnmarshalJSON":   true,
	"MarshalText":     true,
	"UnmarshalText":   true,
	"MarshalBinary":   true,
	"UnmarshalBinary": true,
}

type classOptions struct {
	ignored map[string]bool
}

// ClassOption configures Class.
type ClassOption func(*classOptions)

// Ignore marks methods to be excluded from asyncification by name.
func Ignore(names ...string) ClassOption {
	return func(o *classOptions) {
		for _, name := range names {
			o.ignored[name] = true
		}
	}
}

// Service exposes the asyncified methods of a value. Each eligible
// method is wrapped with Func; calling it returns a *Future that
// runs the original method on the loop's executor pool.
type Service struct {
	value   reflect.Value
	methods map[string]any
}

// Class asyncifies every exported method of v, skipping special
// names, names excluded with Ignore and methods whose results are
// not shaped (), (T), (error) or (T, error). This works on any
// value, including values of third-party types:
//
//	svc := asyncify.Class(client, asyncify.Ignore("Ping"))
//	fut := svc.Call(ctx, "Request", "GET", url)
//
// Class panics if v is nil.
func Class(v any, opts ...ClassOption) *Service {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		panic("asyncify: expected a value with methods, not nil")
	}

	o := classOptions{ignored: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{value: rv, methods: make(map[string]any)}

	t := rv.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if o.ignored[m.Name] || specialNames[m.Name] || !resultShapeOK(m.Func.Type()) {
			continue
		}
		s.methods[m.Name] = Func(rv.Method(i).Interface())
	}

	return s
}

// Value returns the wrapped value.
func (s *Service) Value() any {
	return s.value.Interface()
}

// Method returns the asyncified method with the given name, shaped
// func(context.Context, ...) *Future, and whether it exists.
func (s *Service) Method(name string) (any, bool) {
	m, ok := s.methods[name]
	return m, ok
}

// Names returns the sorted names of all asyncified methods.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the asyncified method by name. An unknown name yields
// an already-failed future.
func (s *Service) Call(ctx context.Context, name string, args ...any) *Future {
	m, ok := s.methods[name]
	if !ok {
		return failedFuture(nil, fmt.Errorf("asyncify: %v has no asyncified method %q", s.value.Type(), name))
	}

	mv := reflect.ValueOf(m)
	t := mv.Type()

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(ctx))
	for i, a := range args {
		if a == nil {
			in = append(in, reflect.Zero(paramType(t, i+1)))
			continue
		}
		in = append(in, reflect.ValueOf(a))
	}

	return mv.Call(in)[0].Interface().(*Future)
}

func resultShapeOK(t reflect.Type) bool {
	switch t.NumOut() {
	case 0, 1:
		return true
	case 2:
		return t.Out(1) == errType
	default:
		return false
	}
}
