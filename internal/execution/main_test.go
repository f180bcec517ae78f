package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/liuxd6825/wdrunner/lib"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport hands out numbered sessions, or whatever createFn returns.
type fakeTransport struct {
	createFn func(ctx context.Context, caps lib.Capabilities) (*lib.SessionDescriptor, error)

	mu      sync.Mutex
	caps    []lib.Capabilities
	deleted []string
}

func (ft *fakeTransport) CreateSession(ctx context.Context, caps lib.Capabilities) (*lib.SessionDescriptor, error) {
	ft.mu.Lock()
	ft.caps = append(ft.caps, caps)
	n := len(ft.caps)
	ft.mu.Unlock()

	if ft.createFn != nil {
		return ft.createFn(ctx, caps)
	}
	return &lib.SessionDescriptor{ID: fmt.Sprintf("session-%d", n), Capabilities: caps}, nil
}

func (ft *fakeTransport) DeleteSession(_ context.Context, sess *lib.SessionDescriptor) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.deleted = append(ft.deleted, sess.ID)
}

func (ft *fakeTransport) created() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.caps)
}

func (ft *fakeTransport) deletedSessions() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.deleted...)
}

func funcBody(fn func() error) lib.Body {
	return lib.Body{Func: func(context.Context, *lib.SessionDescriptor) error { return fn() }}
}

func passing() lib.Body { return funcBody(func() error { return nil }) }

func module(path string, cases ...lib.TestCase) *lib.Module {
	if len(cases) == 0 {
		cases = []lib.TestCase{{Name: "works", Body: passing()}}
	}
	return &lib.Module{Path: path, Name: path, TestCases: cases}
}
