package asyncify

import "context"

type taskContextKey struct{}

type loopContextKey struct{}

// withTaskContext creates a new context with the task value stored in
// it. This allows the task to be retrieved from the context later.
func withTaskContext(ctx context.Context, task *Task) context.Context {
	return context.WithValue(ctx, taskContextKey{}, task)
}

// WithLoop returns a context carrying loop. Syncified functions
// called outside a task use it to find the loop to drive.
func WithLoop(ctx context.Context, loop *EventLoop) context.Context {
	return context.WithValue(ctx, loopContextKey{}, loop)
}

// LoopFromContext retrieves the EventLoop from a context. Contexts
// passed to task functions always carry their loop.
func LoopFromContext(ctx context.Context) (*EventLoop, bool) {
	val, ok := ctx.Value(loopContextKey{}).(*EventLoop)
	return val, ok
}

// TaskFromContext retrieves the Task from a context. Returns the
// task and a boolean indicating whether one was found.
func TaskFromContext(ctx context.Context) (*Task, bool) {
	val, ok := ctx.Value(taskContextKey{}).(*Task)
	return val, ok
}

// MustTaskFromContext retrieves the Task from a context, panicking
// if not found. This function is useful when the caller expects the
// context to definitely carry a task.
func MustTaskFromContext(ctx context.Context) *Task {
	val, ok := ctx.Value(taskContextKey{}).(*Task)
	if !ok {
		panic("asyncify: task not found in context")
	}
	return val
}
