package session

import (
	"context"
	"errors"
	"time"
)

// fakeTransport is a scripted Transport used so Session's OS-detection
// and dispatch logic can be exercised without a real device or the
// network. Responses are matched by exact command text; anything
// unscripted returns "" with no error.
type fakeTransport struct {
	openErr   error
	responses map[string]string
	execErrs  map[string]error
	opened    bool
	closed    bool
	calls     []string
}

func newFakeTransport(responses map[string]string) *fakeTransport {
	return &fakeTransport{responses: responses, execErrs: map[string]error{}}
}

func (f *fakeTransport) Open(ctx context.Context) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeTransport) Exec(ctx context.Context, command string, timeout time.Duration) (string, error) {
	f.calls = append(f.calls, command)
	if err, ok := f.execErrs[command]; ok {
		return "", err
	}
	return f.responses[command], nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

var errFakeOpenFailed = errors.New("fake: open failed")
