package asyncify

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

type hookRecorder struct {
	calls []string
	seen  *EventLoop
}

func (h *hookRecorder) GetEventLoop() { h.calls = append(h.calls, "GetEventLoop") }

func (h *hookRecorder) SetEventLoop(loop *EventLoop) {
	h.calls = append(h.calls, "SetEventLoop")
	h.seen = loop
}

func (h *hookRecorder) NewEventLoop() { h.calls = append(h.calls, "NewEventLoop") }

func (h *hookRecorder) GetChildWatcher() { h.calls = append(h.calls, "GetChildWatcher") }

func (h *hookRecorder) SetChildWatcher(ChildWatcher) { h.calls = append(h.calls, "SetChildWatcher") }

func connectLoop() {}

func TestPolicyEvent(t *testing.T) {
	r := require.New(t)

	policy := NewPolicy()
	h := new(hookRecorder)

	r.NoError(policy.Event(h.NewEventLoop))

	loop := policy.NewEventLoop()
	defer loop.Close()
	r.NotNil(loop)
	r.Equal([]string{"NewEventLoop"}, h.calls)
}

func TestPolicyEventDelegates(t *testing.T) {
	r := require.New(t)

	policy := NewPolicy()
	h := new(hookRecorder)

	r.NoError(policy.Event(h.GetEventLoop))

	l1, err := policy.GetEventLoop()
	r.NoError(err)
	defer l1.Close()

	l2, err := policy.GetEventLoop()
	r.NoError(err)
	r.Same(l1, l2)

	r.Equal([]string{"GetEventLoop", "GetEventLoop"}, h.calls)
}

func TestPolicyEventArguments(t *testing.T) {
	r := require.New(t)

	policy := NewPolicy()
	h := new(hookRecorder)

	r.NoError(policy.Event(h.SetEventLoop))

	loop := NewLoop()
	defer loop.Close()

	policy.SetEventLoop(loop)
	r.Same(loop, h.seen)

	got, err := policy.GetEventLoop()
	r.NoError(err)
	r.Same(loop, got)
}

func TestPolicyEventOverwrite(t *testing.T) {
	r := require.New(t)

	policy := NewPolicy()
	h1 := new(hookRecorder)
	h2 := new(hookRecorder)

	r.NoError(policy.Event(h1.NewEventLoop))
	r.NoError(policy.Event(h2.NewEventLoop))

	loop := policy.NewEventLoop()
	defer loop.Close()

	r.Empty(h1.calls)
	r.Equal([]string{"NewEventLoop"}, h2.calls)
}

func TestPolicyEventInvalid(t *testing.T) {
	r := require.New(t)

	policy := NewPolicy()

	err := policy.Event(42)
	r.ErrorContains(err, "expected a function")

	err = policy.Event(func() {})
	r.ErrorContains(err, "not a valid event name")
	r.ErrorContains(err, "GetEventLoop, SetEventLoop, NewEventLoop, GetChildWatcher, SetChildWatcher")

	err = policy.Event(connectLoop)
	r.ErrorContains(err, `"connectLoop" is not a valid event name`)
}

func TestPolicyEventWatcherUnsupported(t *testing.T) {
	r := require.New(t)

	old := childWatcherSupported
	childWatcherSupported = false
	defer func() { childWatcherSupported = old }()

	policy := NewPolicy()
	h := new(hookRecorder)

	r.ErrorIs(policy.Event(h.SetChildWatcher), ErrWatcherUnsupported)
	r.ErrorIs(policy.Event(h.GetChildWatcher), ErrWatcherUnsupported)

	_, err := policy.GetChildWatcher()
	r.ErrorIs(err, ErrWatcherUnsupported)
	r.ErrorIs(policy.SetChildWatcher(nil), ErrWatcherUnsupported)

	_, err = NewChildWatcher()
	r.ErrorIs(err, ErrWatcherUnsupported)
}

func TestDefaultPolicyChildWatcher(t *testing.T) {
	r := require.New(t)

	if !childWatcherSupported {
		t.Skip("child watchers unsupported on this platform")
	}

	policy := new(DefaultEventLoopPolicy)

	w1, err := policy.GetChildWatcher()
	r.NoError(err)

	w2, err := policy.GetChildWatcher()
	r.NoError(err)
	r.Same(w1, w2)

	custom, err := NewChildWatcher()
	r.NoError(err)
	r.NoError(policy.SetChildWatcher(custom))

	w3, err := policy.GetChildWatcher()
	r.NoError(err)
	r.Same(custom, w3)
}

func TestChildWatcher(t *testing.T) {
	r := require.New(t)

	if !childWatcherSupported {
		t.Skip("child watchers unsupported on this platform")
	}

	w, err := NewChildWatcher()
	r.NoError(err)

	cmd := exec.Command("sh", "-c", "exit 3")
	r.NoError(cmd.Start())

	codes := make(chan int, 1)
	w.AddChildHandler(cmd.Process, func(pid int, state *os.ProcessState) {
		r.Equal(cmd.Process.Pid, pid)
		codes <- state.ExitCode()
	})

	r.NoError(w.Close())
	r.Equal(3, <-codes)
}

type recordingPolicy struct {
	DefaultEventLoopPolicy
	newLoops int
}

func (p *recordingPolicy) NewEventLoop() *EventLoop {
	p.newLoops++
	return NewLoop()
}

func TestChangeBasePolicy(t *testing.T) {
	r := require.New(t)

	rp := new(recordingPolicy)
	ChangeBasePolicy(func() EventLoopPolicy { return rp })
	defer ChangeBasePolicy(func() EventLoopPolicy { return new(DefaultEventLoopPolicy) })

	policy := NewPolicy()
	loop := policy.NewEventLoop()
	defer loop.Close()

	r.NotNil(loop)
	r.Equal(1, rp.newLoops)

	r.Panics(func() { ChangeBasePolicy(nil) })
}

func TestSetEventLoopPolicy(t *testing.T) {
	r := require.New(t)

	prev := GetEventLoopPolicy()
	defer SetEventLoopPolicy(prev)

	policy := NewPolicy()
	h := new(hookRecorder)
	r.NoError(policy.Event(h.NewEventLoop))

	SetEventLoopPolicy(policy)

	ran := false
	Run(context.Background(), func(context.Context, *Task) { ran = true })

	r.True(ran)
	r.Equal([]string{"NewEventLoop"}, h.calls)

	r.Panics(func() { SetEventLoopPolicy(nil) })
}
