package wordpress

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeCall records one call made through fakeCaller.
type fakeCall struct {
	method string
	args   []any
}

// fakeCaller answers calls from a per-method queue of replies. A reply that
// is an error is returned as the call error.
type fakeCaller struct {
	mu      sync.Mutex
	replies map[string][]any
	calls   []fakeCall
	closed  bool
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{replies: make(map[string][]any)}
}

func (f *fakeCaller) on(method string, replies ...any) *fakeCaller {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[method] = append(f.replies[method], replies...)
	return f
}

func (f *fakeCaller) Call(_ context.Context, method string, args []any, reply any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fakeCall{method: method, args: args})
	queue := f.replies[method]
	if len(queue) == 0 {
		return fmt.Errorf("Fault(-32601): server error. requested method %s does not exist.", method)
	}
	next := queue[0]
	if len(queue) > 1 {
		f.replies[method] = queue[1:]
	}
	if err, ok := next.(error); ok {
		return err
	}
	out, ok := reply.(*any)
	if !ok {
		return errors.New("fakeCaller: reply must be *any")
	}
	*out = next
	return nil
}

func (f *fakeCaller) Close() error {
	f.closed = true
	return nil
}

func (f *fakeCaller) callsTo(method string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}
