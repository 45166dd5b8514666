package asyncify

import "github.com/gammazero/deque"

// Future is the resolution cell for a value computed elsewhere,
// typically on the loop's executor pool. Tasks suspend on it through
// Result or Await and are resumed by the loop when it settles.
type Future struct {
	loop    *EventLoop
	value   any
	err     error
	done    bool
	waiters deque.Deque[*Task]
}

func newFuture(l *EventLoop) *Future {
	return &Future{loop: l}
}

// NewFuture creates an unresolved Future bound to l. Resolve it with
// SetResult or SetError from the loop goroutine.
func (l *EventLoop) NewFuture() *Future {
	return newFuture(l)
}

// Done reports whether f has been resolved or canceled.
func (f *Future) Done() bool {
	return f.done
}

// Result suspends task until f resolves, then returns its value and
// error. If f is already resolved it returns immediately.
func (f *Future) Result(task *Task) (any, error) {
	if !f.done {
		f.waiters.PushBack(task)
		task.norun = true
		task.suspend()
	}
	return f.value, f.err
}

// SetResult resolves f with v, resuming any waiting tasks. It panics
// if f is already resolved.
func (f *Future) SetResult(v any) {
	if f.done {
		panic("asyncify: future is already resolved")
	}
	f.value = v
	f.settle()
}

// SetError fails f with err, resuming any waiting tasks. It panics
// if f is already resolved.
func (f *Future) SetError(err error) {
	if f.done {
		panic("asyncify: future is already resolved")
	}
	f.err = err
	f.settle()
}

// Cancel fails f with ErrCanceled and reports whether it took
// effect. Cancellation is best effort: a worker already executing
// the offloaded call is not stopped, its result is discarded when it
// arrives.
func (f *Future) Cancel() bool {
	if f.done {
		return false
	}
	f.err = ErrCanceled
	f.settle()
	return true
}

func (f *Future) settle() {
	f.done = true
	for f.waiters.Len() > 0 {
		t := f.waiters.PopFront()
		t.norun = false
		t.run(nil)
	}
}

func failedFuture(l *EventLoop, err error) *Future {
	f := newFuture(l)
	f.err = err
	f.done = true
	return f
}

// Await resolves v for task. When v is a *Future it suspends until
// the future settles and returns its result; any other value is
// returned as is. This is the canonical awaited call shape that
// HybridFunc recognizes at a call site.
func Await(task *Task, v any) (any, error) {
	if f, ok := v.(*Future); ok {
		return f.Result(task)
	}
	return v, nil
}

// Gather awaits every future and returns their values in order. The
// first error encountered is returned alongside the values gathered
// so far.
func Gather(task *Task, futures ...*Future) ([]any, error) {
	var first error
	values := make([]any, len(futures))
	for i, f := range futures {
		v, err := f.Result(task)
		values[i] = v
		if err != nil && first == nil {
			first = err
		}
	}
	return values, first
}
