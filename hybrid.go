package asyncify

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"sync"
)

// awaitPattern matches the awaited call shape at a call site: an
// Await(...) call, possibly package qualified, whose argument list
// holds the dispatcher call.
var awaitPattern = regexp.MustCompile(`(\w|\.)*Await\(.*\)`)

// HybridFunc is a call site that behaves differently depending on
// whether its result is awaited. On each call it inspects the
// caller's source line: a line matching Await(... name ...) invokes
// the async callback (returning a *Future), any other line invokes
// the sync callback (returning a direct value).
//
//	getOrFetchUser := asyncify.NewHybrid("getOrFetchUser", cacheGet, apiFetch)
//
//	user := getOrFetchUser.Call(id)                       // sync: cache lookup
//	user, err := asyncify.Await(task, getOrFetchUser.Call(id)) // async: API call
//
// This is a textual heuristic over the caller's source, not a
// semantic analysis. It misfires on line continuations, on several
// same-named calls sharing one line, and it cannot work at all when
// the caller's source file is unavailable at run time (stripped or
// relocated binaries). Name dispatchers uniquely.
type HybridFunc struct {
	name  string
	sync  reflect.Value
	async reflect.Value
	recv  reflect.Value
}

// NewHybrid builds a dispatcher. name must match the identifier the
// dispatcher is called through, since it is what the source line is
// searched for. Both callbacks must be functions taking the same
// number of parameters; NewHybrid panics otherwise.
func NewHybrid(name string, syncCallback, asyncCallback any) *HybridFunc {
	sv := reflect.ValueOf(syncCallback)
	if sv.Kind() != reflect.Func {
		panic(fmt.Sprintf("asyncify: expected a function, not %T", syncCallback))
	}
	av := reflect.ValueOf(asyncCallback)
	if av.Kind() != reflect.Func {
		panic(fmt.Sprintf("asyncify: expected a function, not %T", asyncCallback))
	}
	if sv.Type().NumIn() != av.Type().NumIn() {
		panic("asyncify: sync and async callbacks must take the same number of parameters")
	}

	return &HybridFunc{name: name, sync: sv, async: av}
}

// Name returns the registered call-site name.
func (h *HybridFunc) Name() string {
	return h.name
}

// Bind returns a fresh dispatcher that passes recv as the implicit
// first argument to both callbacks. Use it to attach a dispatcher to
// an instance, with method expressions as the callbacks.
func (h *HybridFunc) Bind(recv any) *HybridFunc {
	return &HybridFunc{
		name:  h.name,
		sync:  h.sync,
		async: h.async,
		recv:  reflect.ValueOf(recv),
	}
}

// Call classifies the calling source line and invokes the sync or
// async callback with args. It panics with ErrCallMode when no
// caller frame with resolvable source mentioning the registered name
// is found.
func (h *HybridFunc) Call(args ...any) any {
	if h.recv.IsValid() {
		args = append([]any{h.recv.Interface()}, args...)
	}

	line, err := h.callerContext()
	if err != nil {
		panic(err)
	}

	cb := h.sync
	if h.awaited(line) {
		cb = h.async
	}

	out := cb.Call(reflectArgs(cb.Type(), args))
	if len(out) == 0 {
		return nil
	}
	return out[0].Interface()
}

// callerContext walks the caller's frames outward and returns the
// first source line that mentions the registered name.
func (h *HybridFunc) callerContext() (string, error) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(3, pcs)

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		if line, ok := sourceLine(frame.File, frame.Line); ok && strings.Contains(line, h.name) {
			return strings.TrimSpace(line), nil
		}

		if !more {
			break
		}
	}

	return "", ErrCallMode
}

func (h *HybridFunc) awaited(line string) bool {
	loc := awaitPattern.FindStringIndex(line)
	if loc == nil {
		return false
	}
	return strings.Contains(line[loc[0]:loc[1]], h.name)
}

// sourceFiles caches source files by path, split into lines. Files
// that cannot be read are cached as nil so they are not retried on
// every call.
var sourceFiles sync.Map

func sourceLine(file string, n int) (string, bool) {
	if file == "" || n <= 0 {
		return "", false
	}

	v, ok := sourceFiles.Load(file)
	if !ok {
		var lines []string
		if data, err := os.ReadFile(file); err == nil {
			lines = strings.Split(string(data), "\n")
		}
		v, _ = sourceFiles.LoadOrStore(file, lines)
	}

	lines, _ := v.([]string)
	if n > len(lines) {
		return "", false
	}
	return lines[n-1], true
}
