package asyncify

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
)

// validEventNames are the policy methods a hook may be registered
// for.
var validEventNames = []string{
	"GetEventLoop",
	"SetEventLoop",
	"NewEventLoop",
	"GetChildWatcher",
	"SetChildWatcher",
}

// childWatcherSupported gates child watcher support per platform.
var childWatcherSupported = runtime.GOOS != "windows"

// EventLoopPolicy produces and tracks event loops and child
// watchers for the process.
type EventLoopPolicy interface {
	// GetEventLoop returns the current loop, creating one if none
	// has been set.
	GetEventLoop() (*EventLoop, error)
	// SetEventLoop makes loop the current loop.
	SetEventLoop(loop *EventLoop)
	// NewEventLoop creates a fresh loop without installing it.
	NewEventLoop() *EventLoop
	// GetChildWatcher returns the current child watcher, creating
	// one if none has been set.
	GetChildWatcher() (ChildWatcher, error)
	// SetChildWatcher makes w the current child watcher.
	SetChildWatcher(w ChildWatcher) error
}

// DefaultEventLoopPolicy is the stock policy: one current loop,
// created on first request, and a goroutine-based child watcher.
type DefaultEventLoopPolicy struct {
	mu      sync.Mutex
	current *EventLoop
	watcher ChildWatcher
}

func (p *DefaultEventLoopPolicy) GetEventLoop() (*EventLoop, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		p.current = NewLoop()
	}
	return p.current, nil
}

func (p *DefaultEventLoopPolicy) SetEventLoop(loop *EventLoop) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = loop
}

func (p *DefaultEventLoopPolicy) NewEventLoop() *EventLoop {
	return NewLoop()
}

func (p *DefaultEventLoopPolicy) GetChildWatcher() (ChildWatcher, error) {
	if !childWatcherSupported {
		return nil, ErrWatcherUnsupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		p.watcher = new(threadedChildWatcher)
	}
	return p.watcher, nil
}

func (p *DefaultEventLoopPolicy) SetChildWatcher(w ChildWatcher) error {
	if !childWatcherSupported {
		return ErrWatcherUnsupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watcher = w
	return nil
}

// ChildWatcher tracks child process termination and runs callbacks
// when children exit.
type ChildWatcher interface {
	// AddChildHandler arranges for fn to be called with the child's
	// pid and final state once proc exits.
	AddChildHandler(proc *os.Process, fn func(pid int, state *os.ProcessState))
	// Close waits for all registered children to be reaped.
	Close() error
}

// NewChildWatcher returns a watcher that dedicates a goroutine per
// registered child. It fails with ErrWatcherUnsupported on platforms
// without child watching.
func NewChildWatcher() (ChildWatcher, error) {
	if !childWatcherSupported {
		return nil, ErrWatcherUnsupported
	}
	return new(threadedChildWatcher), nil
}

type threadedChildWatcher struct {
	wg sync.WaitGroup
}

func (w *threadedChildWatcher) AddChildHandler(proc *os.Process, fn func(pid int, state *os.ProcessState)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		state, _ := proc.Wait()
		fn(proc.Pid, state)
	}()
}

func (w *threadedChildWatcher) Close() error {
	w.wg.Wait()
	return nil
}

var (
	basePolicyMu  sync.Mutex
	newBasePolicy = func() EventLoopPolicy { return new(DefaultEventLoopPolicy) }
)

// ChangeBasePolicy swaps the policy implementation that NewPolicy
// delegates to. This is a process-wide configuration action meant to
// run once, before any Policy is created; policies built earlier
// keep their old base. ChangeBasePolicy panics on a nil factory.
func ChangeBasePolicy(factory func() EventLoopPolicy) {
	if factory == nil {
		panic("asyncify: base policy factory must not be nil")
	}
	basePolicyMu.Lock()
	defer basePolicyMu.Unlock()
	newBasePolicy = factory
}

// Policy is an EventLoopPolicy that lets callers intercept policy
// method calls. A registered hook runs with the same arguments
// before the base policy's implementation; its return value, if any,
// is discarded.
type Policy struct {
	base  EventLoopPolicy
	hooks map[string]reflect.Value
}

// NewPolicy creates a Policy delegating to the configured base
// policy (DefaultEventLoopPolicy unless ChangeBasePolicy was
// called).
func NewPolicy() *Policy {
	basePolicyMu.Lock()
	factory := newBasePolicy
	basePolicyMu.Unlock()

	return &Policy{
		base:  factory(),
		hooks: make(map[string]reflect.Value),
	}
}

// Event registers fn to be called whenever the policy method with
// fn's declared name is invoked. The name must be one of
// GetEventLoop, SetEventLoop, NewEventLoop, GetChildWatcher or
// SetChildWatcher; the two watcher names are rejected on platforms
// without child watching. Registering twice for one name overwrites
// the earlier hook.
func (p *Policy) Event(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("asyncify: expected a function, not %T", fn)
	}

	name := funcName(v)
	if !slices.Contains(validEventNames, name) {
		return fmt.Errorf("asyncify: %q is not a valid event name; valid names are %s",
			name, strings.Join(validEventNames, ", "))
	}

	if !childWatcherSupported && (name == "GetChildWatcher" || name == "SetChildWatcher") {
		return fmt.Errorf("%s: %w", name, ErrWatcherUnsupported)
	}

	p.hooks[name] = v
	return nil
}

// funcName recovers the declared name of a function value, without
// package qualification. Method values lose their "-fm" suffix;
// closures come back as "funcN" and never match an event name.
func funcName(v reflect.Value) string {
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}
	name := rf.Name()
	name = name[strings.LastIndexByte(name, '.')+1:]
	return strings.TrimSuffix(name, "-fm")
}

func (p *Policy) fire(name string, args ...any) {
	h, ok := p.hooks[name]
	if !ok {
		return
	}
	h.Call(reflectArgs(h.Type(), args))
}

func (p *Policy) GetEventLoop() (*EventLoop, error) {
	p.fire("GetEventLoop")
	return p.base.GetEventLoop()
}

func (p *Policy) SetEventLoop(loop *EventLoop) {
	p.fire("SetEventLoop", loop)
	p.base.SetEventLoop(loop)
}

func (p *Policy) NewEventLoop() *EventLoop {
	p.fire("NewEventLoop")
	return p.base.NewEventLoop()
}

func (p *Policy) GetChildWatcher() (ChildWatcher, error) {
	p.fire("GetChildWatcher")
	return p.base.GetChildWatcher()
}

func (p *Policy) SetChildWatcher(w ChildWatcher) error {
	p.fire("SetChildWatcher", w)
	return p.base.SetChildWatcher(w)
}

var (
	policyMu      sync.Mutex
	currentPolicy EventLoopPolicy = new(DefaultEventLoopPolicy)
)

// SetEventLoopPolicy installs p as the process-wide policy used by
// Run. It panics if p is nil.
func SetEventLoopPolicy(p EventLoopPolicy) {
	if p == nil {
		panic("asyncify: event loop policy must not be nil")
	}
	policyMu.Lock()
	defer policyMu.Unlock()
	currentPolicy = p
}

// GetEventLoopPolicy returns the process-wide policy.
func GetEventLoopPolicy() EventLoopPolicy {
	policyMu.Lock()
	defer policyMu.Unlock()
	return currentPolicy
}
