package asyncify

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"

	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "asyncify-task"
	taskTraceRegionType = "asyncify-region"
	taskTraceCategory   = "asyncify"
)

// Task is a cooperative unit of work driven by an EventLoop. Tasks
// suspend while awaiting a Future and resume when the loop resolves
// it. All tasks of one loop run interleaved on the goroutine that
// called EventLoop.Run.
type Task struct {
	ctx     context.Context
	yield   func(any) any
	suspend func() any
	resume  func(any) (any, bool)
	cancel  func()
	loop    *EventLoop
	single  *singleFlight
	parent  *Task
	childn  int
	norun   bool
}

func newTask(
	ctx context.Context,
	fn func(context.Context, *Task),
	parent *Task,
	loop *EventLoop,
) *Task {
	task := &Task{
		parent: parent,
		loop:   loop,
	}

	if task.parent == nil {
		task.single = newSingleFlight()
	} else {
		task.single = task.parent.single
		task.loop = task.parent.loop
		task.parent.childn++
	}

	task.ctx = withTaskContext(WithLoop(ctx, task.loop), task)

	resume, cancel := coro.New(
		func(yield func(any) any, suspend func() any) (z any) {
			region := trace.StartRegion(task.ctx, taskTraceRegionType)

			defer func() {
				if task.parent != nil {
					task.parent.childn--
				}
				region.End()
			}()

			task.yield = yield
			task.suspend = suspend

			fn(task.ctx, task)

			return
		},
	)

	task.resume = resume
	task.cancel = cancel
	return task
}

// Do deduplicates concurrent computations by key across all tasks of
// the same loop. See SingleFlight.
func (t *Task) Do(key any, fn func() (any, error)) (any, error, bool) {
	t.Logf("DO %v", key)
	return t.single.do(t, key, fn)
}

func (t *Task) gogoctx(ctx context.Context, fn func(context.Context, *Task)) {
	task := newTask(ctx, fn, t, t.loop)
	task.Log("GO")
	task.resumez()
}

func (t *Task) goctx(ctx context.Context, fn func(context.Context)) {
	t.gogoctx(ctx, func(ctx context.Context, _ *Task) { fn(ctx) })
}

// Gogo spawns a child task. The child runs immediately until its
// first suspension point; t.Wait blocks until all children complete.
func (t *Task) Gogo(fn func(context.Context, *Task)) {
	t.gogoctx(t.ctx, fn)
}

// Go spawns a child task from a context-only function. The child's
// Task is available through TaskFromContext.
func (t *Task) Go(fn func(context.Context)) {
	t.Gogo(func(ctx context.Context, _ *Task) { fn(ctx) })
}

// Group returns a new error group bound to t.
func (t *Task) Group() *Group {
	return newGroup(t)
}

// Wait suspends t until all of its child tasks have completed.
func (t *Task) Wait() {
	t.Log("WAIT")

	if t.childn > 0 {
		t.suspend()
	}
}

// Context returns the context carrying t and its loop.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Loop returns the EventLoop that t belongs to.
func (t *Task) Loop() *EventLoop {
	return t.loop
}

func (t *Task) run(data any) {
	t.Log("RUN")

	if _, ok := t.resume(data); ok {
		return
	}

	if t.parent == nil {
		return
	}

	if t.parent.norun {
		return
	}

	if t.parent.childn == 0 {
		t.parent.runz()
	}
}

func (t *Task) resumez() bool {
	_, ok := t.resume(nil)
	return ok
}

func (t *Task) runz() {
	t.run(nil)
}

func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func taskpath(sb *strings.Builder, t *Task) {
	if t == nil {
		return
	}
	taskpath(sb, t.parent)
	fmt.Fprintf(sb, "%p|", t)
}
