package asyncify

import "errors"

var (
	// ErrNoEventLoop is reported when a wrapped call requires a loop
	// and the context does not carry one.
	ErrNoEventLoop = errors.New("asyncify: no event loop in context")

	// ErrLoopRunning is reported when a loop is asked to drive a
	// future while it is already running.
	ErrLoopRunning = errors.New("asyncify: event loop is already running")

	// ErrNeverCompletes is reported by RunUntilComplete when the
	// future is unresolved and no offloaded work remains.
	ErrNeverCompletes = errors.New("asyncify: future can never complete: no pending executor calls")

	// ErrCanceled is the failure of a canceled future.
	ErrCanceled = errors.New("asyncify: future canceled")

	// ErrCallMode is the panic value of HybridFunc.Call when no
	// caller source line could be resolved.
	ErrCallMode = errors.New("asyncify: could not tell if the call should be sync or async")

	// ErrWatcherUnsupported is reported for child watcher operations
	// on platforms without child process watching.
	ErrWatcherUnsupported = errors.New("asyncify: child watchers are not supported on this platform")
)
