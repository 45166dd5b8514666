package asyncify

// singleFlightCall represents an in-flight computation that may be
// shared among multiple tasks. It tracks the result of the call and
// the number of duplicated requests.
type singleFlightCall struct {
	wg   WaitGroup
	val  any
	err  error
	dups int
}

// singleFlight deduplicates concurrent computations with the same
// key. It ensures that only one execution happens for concurrent
// calls with the same key; the others suspend until the result is
// available.
type singleFlight struct {
	m map[any]*singleFlightCall
}

func newSingleFlight() *singleFlight {
	return new(singleFlight)
}

// do executes the given function for the key, deduplicating
// concurrent calls. It returns the result, any error, and whether
// this was a shared result.
func (g *singleFlight) do(task *Task, key any, fn func() (any, error)) (v any, err error, shared bool) {
	if g.m == nil {
		g.m = make(map[any]*singleFlightCall)
	}

	if c, ok := g.m[key]; ok {
		c.dups++
		c.wg.Wait(task)
		return c.val, c.err, true
	}

	c := new(singleFlightCall)
	c.wg.Add(1)
	g.m[key] = c

	g.doCall(c, key, fn)
	return c.val, c.err, c.dups > 0
}

// doCall executes the given function and stores the result in the
// singleFlightCall. It also cleans up the map entry when the call is
// complete.
func (g *singleFlight) doCall(c *singleFlightCall, key any, fn func() (any, error)) {
	defer func() {
		c.wg.Done()
		if g.m[key] == c {
			delete(g.m, key)
		}
	}()

	c.val, c.err = fn()
}
