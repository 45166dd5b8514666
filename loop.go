package asyncify

import (
	"context"
	"fmt"
	"runtime/trace"

	"github.com/alitto/pond"
)

const (
	// LoopExecutorWorkers is the default number of worker threads in
	// a loop's executor pool.
	LoopExecutorWorkers = 32

	// LoopCompletionBuffer is the capacity of the channel delivering
	// executor completions back to the loop goroutine.
	LoopCompletionBuffer = 128
)

// EventLoop drives cooperative tasks on a single goroutine and
// offloads blocking calls to a worker pool. Futures produced by
// RunInExecutor are resolved by the loop when the worker finishes,
// resuming any tasks suspended on them.
//
// An EventLoop is not safe for concurrent use: Run, RunUntilComplete
// and RunInExecutor must all be called from the goroutine that drives
// the loop (RunInExecutor from within a running task).
type EventLoop struct {
	pool        *pond.WorkerPool
	completions chan completion
	pending     int
	running     bool
}

// completion carries a worker's result back to the loop goroutine,
// where it is applied to the future. Keeping the result off the
// future until then lets Cancel win over a late worker.
type completion struct {
	f     *Future
	value any
	err   error
}

// NewLoop creates an EventLoop with a default executor pool.
func NewLoop() *EventLoop {
	return &EventLoop{
		pool:        pond.New(LoopExecutorWorkers, LoopCompletionBuffer),
		completions: make(chan completion, LoopCompletionBuffer),
	}
}

// SetDefaultExecutor replaces the loop's executor pool. It must be
// called before any task is run.
func (l *EventLoop) SetDefaultExecutor(pool *pond.WorkerPool) {
	l.pool = pool
}

// Run executes fn as the root task and drives the loop until the
// root and every task it spawned have completed. It panics if the
// loop is already running on this or another goroutine.
func (l *EventLoop) Run(ctx context.Context, fn func(context.Context, *Task)) {
	if l.running {
		panic("asyncify: event loop is already running")
	}
	l.running = true
	defer func() { l.running = false }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tracer *trace.Task
	ctx, tracer = trace.NewTask(ctx, taskTraceTaskType)
	defer tracer.End()

	program := func(ctx context.Context, task *Task) {
		fn(ctx, task)
		task.Wait()
	}

	root := newTask(ctx, program, nil, l)
	defer root.cancel()

	trace.Logf(ctx, taskTraceCategory, "LOOP")

	for root.resumez() {
		for l.pending > 0 {
			trace.Logf(ctx, taskTraceCategory, "LOOP PENDING %v", l.pending)
			l.drain()
		}
	}

	if root.childn > 0 {
		panic("asyncify: task.childn > 0")
	}

	trace.Log(ctx, taskTraceCategory, "LOOP DONE")
}

// RunUntilComplete drives executor completions until f resolves and
// returns its value and error. It fails with ErrLoopRunning when
// called while the loop is running, and with ErrNeverCompletes when
// f is unresolved and no offloaded work remains that could resolve
// it.
func (l *EventLoop) RunUntilComplete(f *Future) (any, error) {
	if l.running {
		return nil, ErrLoopRunning
	}
	l.running = true
	defer func() { l.running = false }()

	for !f.Done() {
		if l.pending == 0 {
			return nil, ErrNeverCompletes
		}
		l.drain()
	}

	return f.value, f.err
}

// RunInExecutor submits fn to the loop's worker pool and returns a
// Future that resolves with fn's result once the worker finishes. A
// panic in fn is captured as the future's error.
func (l *EventLoop) RunInExecutor(fn func() (any, error)) *Future {
	f := newFuture(l)
	l.pending++

	l.pool.Submit(func() {
		var c completion
		c.f = f
		defer func() {
			if p := recover(); p != nil {
				c.value, c.err = nil, fmt.Errorf("asyncify: executor call panicked: %v", p)
			}
			l.completions <- c
		}()
		c.value, c.err = fn()
	})

	return f
}

// drain receives one executor completion and resolves the future,
// resuming its waiters.
func (l *EventLoop) drain() {
	c := <-l.completions
	l.pending--
	l.complete(c)
}

func (l *EventLoop) complete(c completion) {
	if c.f.done {
		// Canceled before the worker finished; the worker's result
		// is discarded.
		return
	}
	c.f.value, c.f.err = c.value, c.err
	c.f.settle()
}

// Close stops the loop's executor pool, waiting for in-flight worker
// calls to finish.
func (l *EventLoop) Close() {
	l.pool.StopAndWait()
}

// Run builds a fresh loop through the current event loop policy,
// executes fn on it and closes it afterwards.
func Run(ctx context.Context, fn func(context.Context, *Task)) {
	loop := GetEventLoopPolicy().NewEventLoop()
	defer loop.Close()
	loop.Run(ctx, fn)
}
