package asyncify

import (
	"context"
	"fmt"
	"reflect"
)

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType    = reflect.TypeOf((*error)(nil)).Elem()
	futureType = reflect.TypeOf((*Future)(nil))
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
)

// Func makes a blocking function awaitable by running it on the
// loop's executor pool.
//
// fn may be any function returning (), (T), (error) or (T, error).
// The result has fn's parameters preceded by a context.Context
// (reused when fn already takes one first) and returns a *Future:
//
//	fetch := asyncify.Func(http.Get).(func(context.Context, string) *asyncify.Future)
//
//	loop.Run(ctx, func(ctx context.Context, task *asyncify.Task) {
//		resp, err := fetch(ctx, "https://go.dev").Result(task)
//		...
//	})
//
// The context must carry the running loop (contexts passed to task
// functions always do); otherwise the returned future is already
// failed with ErrNoEventLoop. A function that is already awaitable,
// shaped func(context.Context, ...) *Future, is returned unchanged.
// Func panics if fn is not a function or returns an unsupported
// shape.
func Func(fn any) any {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("asyncify: expected a function, not %T", fn))
	}

	t := v.Type()
	if isAsyncFunc(t) {
		return fn
	}
	validateResults(t)

	hasCtx := t.NumIn() > 0 && t.In(0) == ctxType

	in := make([]reflect.Type, 0, t.NumIn()+1)
	if !hasCtx {
		in = append(in, ctxType)
	}
	for i := 0; i < t.NumIn(); i++ {
		in = append(in, t.In(i))
	}

	wt := reflect.FuncOf(in, []reflect.Type{futureType}, t.IsVariadic())

	wrapper := reflect.MakeFunc(wt, func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)

		callArgs := args
		if !hasCtx {
			callArgs = args[1:]
		}

		loop, ok := LoopFromContext(ctx)
		if !ok {
			return []reflect.Value{reflect.ValueOf(failedFuture(nil, ErrNoEventLoop))}
		}

		fut := loop.RunInExecutor(func() (any, error) {
			var out []reflect.Value
			if t.IsVariadic() {
				out = v.CallSlice(callArgs)
			} else {
				out = v.Call(callArgs)
			}
			return splitResults(t, out)
		})

		return []reflect.Value{reflect.ValueOf(fut)}
	})

	return wrapper.Interface()
}

// Sync makes an awaitable function callable from non-suspending
// code by driving the loop until the future resolves.
//
// fn must be shaped func(context.Context, ...) *Future; anything
// else that is a function is returned unchanged. The result keeps
// fn's parameters and returns (any, error):
//
//	get := asyncify.Sync(fetch).(func(context.Context, string) (any, error))
//	resp, err := get(asyncify.WithLoop(ctx, loop), "https://go.dev")
//
// The loop is taken from the context; ErrNoEventLoop is returned
// when absent. Driving a loop that is already running fails with
// ErrLoopRunning. Sync panics if fn is not a function.
func Sync(fn any) any {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("asyncify: expected a function, not %T", fn))
	}

	t := v.Type()
	if !isAsyncFunc(t) {
		return fn
	}

	in := make([]reflect.Type, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		in = append(in, t.In(i))
	}

	wt := reflect.FuncOf(in, []reflect.Type{anyType, errType}, t.IsVariadic())

	wrapper := reflect.MakeFunc(wt, func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)

		loop, ok := LoopFromContext(ctx)
		if !ok {
			return anyError(nil, ErrNoEventLoop)
		}

		var out []reflect.Value
		if t.IsVariadic() {
			out = v.CallSlice(args)
		} else {
			out = v.Call(args)
		}

		fut, _ := out[0].Interface().(*Future)
		if fut == nil {
			return anyError(nil, nil)
		}

		val, err := loop.RunUntilComplete(fut)
		return anyError(val, err)
	})

	return wrapper.Interface()
}

// isAsyncFunc reports whether t is the awaitable shape produced by
// Func: a leading context parameter and a single *Future result.
func isAsyncFunc(t reflect.Type) bool {
	return t.NumIn() >= 1 && t.In(0) == ctxType &&
		t.NumOut() == 1 && t.Out(0) == futureType
}

func validateResults(t reflect.Type) {
	switch t.NumOut() {
	case 0, 1:
	case 2:
		if t.Out(1) != errType {
			panic("asyncify: function may only return (value, error)")
		}
	default:
		panic("asyncify: function may only return (value, error)")
	}
}

// splitResults converts a reflected call result into the (value,
// error) pair carried by a Future.
func splitResults(t reflect.Type, out []reflect.Value) (any, error) {
	switch t.NumOut() {
	case 0:
		return nil, nil
	case 1:
		if t.Out(0) == errType {
			err, _ := out[0].Interface().(error)
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		err, _ := out[1].Interface().(error)
		return out[0].Interface(), err
	}
}

func anyError(val any, err error) []reflect.Value {
	rv := reflect.New(anyType).Elem()
	if val != nil {
		rv.Set(reflect.ValueOf(val))
	}
	re := reflect.New(errType).Elem()
	if err != nil {
		re.Set(reflect.ValueOf(err))
	}
	return []reflect.Value{rv, re}
}

// reflectArgs converts loosely typed arguments into reflected values
// for calling a function of type t, zeroing nils to the parameter
// type.
func reflectArgs(t reflect.Type, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			in[i] = reflect.Zero(paramType(t, i))
			continue
		}
		in[i] = reflect.ValueOf(a)
	}
	return in
}

func paramType(t reflect.Type, i int) reflect.Type {
	if t.IsVariadic() && i >= t.NumIn()-1 {
		return t.In(t.NumIn() - 1).Elem()
	}
	return t.In(i)
}
