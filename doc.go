// Package asyncify bridges blocking and awaitable functions over a
// cooperative event loop. It wraps plain functions so they can be
// awaited by running them on a worker pool, wraps awaitable
// functions so they can be called from ordinary code by driving the
// loop to completion, and lets callers intercept event loop policy
// methods.
//
// Key components:
//
//   - EventLoop: Drives cooperative tasks on a single goroutine and
//     offloads blocking calls to a worker pool, resolving Futures as
//     workers finish.
//
//   - Task: The coroutine-like unit of work. Tasks can spawn child
//     tasks, await Futures, and wait for completion.
//
//   - Func/Sync: Decorator-style transforms between blocking
//     functions and awaitable ones.
//
//   - Class: Applies Func to every eligible method of a value,
//     producing a Service of awaitable methods.
//
//   - HybridFunc: A single call site that dispatches to a sync or
//     async implementation by inspecting the caller's source line.
//
//   - EventLoopPolicy and Policy: Produce and track loops and child
//     watchers, with a hook registry for intercepting policy method
//     calls.
//
//   - Synchronization primitives: Mutex, WaitGroup, Group, and
//     task-level single flight for tasks of one loop.
package asyncify
