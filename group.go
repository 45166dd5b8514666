package asyncify

import "context"

// Group manages a set of child tasks and collects the first error
// that occurs. It provides methods to start new tasks and wait for
// all of them to complete.
type Group struct {
	task   *Task
	ctx    context.Context
	cancel func(error)
	wg     WaitGroup
	err    error
}

// newGroup creates an error group associated with the given task. It
// creates a cancellable context that will be shared by all tasks in
// the group.
func newGroup(task *Task) *Group {
	ctx, cancel := context.WithCancelCause(task.Context())
	return &Group{task: task, ctx: ctx, cancel: cancel}
}

// Go starts a child task that runs the given function with the
// group's context. If the function returns an error, the group's
// context is cancelled.
func (g *Group) Go(f func(context.Context) error) {
	g.goctx(g.ctx, f)
}

// GoWithContext starts a child task with the specified context. The
// context must be associated with the same task that created the
// group.
func (g *Group) GoWithContext(ctx context.Context, f func(context.Context) error) {
	if task := MustTaskFromContext(ctx); task != g.task {
		panic("asyncify: ctx task does not match group task")
	}
	g.goctx(ctx, f)
}

func (g *Group) goctx(ctx context.Context, f func(context.Context) error) {
	g.wg.Add(1)
	g.task.goctx(ctx, func(ctx context.Context) {
		defer g.wg.Done()
		if err := f(ctx); err != nil && g.err == nil {
			g.err = err
			if g.cancel != nil {
				g.cancel(g.err)
			}
		}
	})
}

// Wait suspends the owning task until every child has completed. It
// returns the first error encountered by any child, or nil if no
// errors occurred.
func (g *Group) Wait() error {
	g.wg.Wait(g.task)
	if g.cancel != nil {
		g.cancel(g.err)
	}
	return g.err
}
