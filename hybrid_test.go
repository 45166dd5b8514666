package asyncify

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHybrid(t *testing.T) {
	r := require.New(t)

	loop := NewLoop()
	defer loop.Close()

	loop.Run(context.Background(), func(_ context.Context, task *Task) {
		foo := NewHybrid("foo",
			func() int { return 1 },
			func() *Future {
				return loop.RunInExecutor(func() (any, error) { return 2, nil })
			},
		)

		v := foo.Call()
		r.Equal(1, v)

		v, err := Await(task, foo.Call())
		r.NoError(err)
		r.Equal(2, v)
	})
}

func TestHybridMismatchedArity(t *testing.T) {
	r := require.New(t)

	r.PanicsWithValue(
		"asyncify: sync and async callbacks must take the same number of parameters",
		func() {
			NewHybrid("bad",
				func(a, b int) int { return a + b },
				func(a int) *Future { return nil },
			)
		},
	)
}

func TestHybridNotAFunction(t *testing.T) {
	r := require.New(t)

	r.Panics(func() { NewHybrid("bad", 1, func() *Future { return nil }) })
	r.Panics(func() { NewHybrid("bad", func() int { return 1 }, "nope") })
}

type userClient struct {
	prefix string
}

func (c *userClient) cachedUser(id int) string {
	return fmt.Sprintf("%s:%d", c.prefix, id)
}

func TestHybridBind(t *testing.T) {
	r := require.New(t)

	loop := NewLoop()
	defer loop.Close()

	fetchUser := func(c *userClient, id int) *Future {
		return loop.RunInExecutor(func() (any, error) {
			return fmt.Sprintf("api:%d", id), nil
		})
	}

	h := NewHybrid("getUser", (*userClient).cachedUser, fetchUser)
	getUser := h.Bind(&userClient{prefix: "cache"})
	r.NotSame(h, getUser)

	loop.Run(context.Background(), func(_ context.Context, task *Task) {
		v := getUser.Call(7)
		r.Equal("cache:7", v)

		v, err := Await(task, getUser.Call(7))
		r.NoError(err)
		r.Equal("api:7", v)
	})
}

func passthrough(h *HybridFunc) any { return h.Call() }

func TestHybridOuterFrame(t *testing.T) {
	r := require.New(t)

	indirect := NewHybrid("indirect",
		func() int { return 1 },
		func() *Future { return nil },
	)

	// The immediate caller's line never mentions the name; the walk
	// reaches this frame's line, which does.
	v := passthrough(indirect)
	r.Equal(1, v)
}

func TestHybridUnknownCallMode(t *testing.T) {
	r := require.New(t)

	mystery := NewHybrid("completelyunguessable",
		func() int { return 1 },
		func() *Future { return nil },
	)

	r.PanicsWithValue(ErrCallMode, func() {
		mystery.Call()
	})
}
