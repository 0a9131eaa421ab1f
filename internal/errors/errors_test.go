package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

// fakeTimeoutErr simulates a net.Error with Timeout semantics.
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestClassificationPerKind(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)

	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"params", NewParamsError("command.parse", wrapped), IsParams},
		{"state", NewStateError("graphics.changeLanguage", wrapped), IsState},
		{"lock", NewLockError("server.mutex", wrapped), IsLock},
		{"list", NewListError("registry.lookup", wrapped), IsList},
		{"io", NewIoError("link.write", wrapped), IsIo},
		{"lib", NewLibError("controller.load", "/plugins/a.so", wrapped), IsLib},
		{"task", NewTaskError("server.watcher", wrapped), IsTask},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !c.check(c.err) {
				t.Fatalf("expected %s classification to match", c.name)
			}
			if !IsEngineError(c.err) {
				t.Fatalf("expected IsEngineError=true for %s", c.name)
			}
			if !stdErrors.Is(c.err, root) {
				t.Fatalf("expected errors.Is to find root cause for %s", c.name)
			}
		})
	}
}

func TestLibErrorCarriesPath(t *testing.T) {
	err := NewLibError("resolve onEvent", "/plugins/gfx.so", stdErrors.New("symbol not found"))
	var le *LibError
	if !stdErrors.As(err, &le) {
		t.Fatalf("expected errors.As to *LibError")
	}
	if le.Path != "/plugins/gfx.so" {
		t.Fatalf("unexpected path: %s", le.Path)
	}
}

func TestIsTimeout(t *testing.T) {
	root := fakeTimeoutErr{}
	to := NewTimeoutError("link.isReadyForReading", 2*time.Second, root)
	if !IsTimeout(to) {
		t.Fatalf("expected TimeoutError recognized")
	}
	if IsEngineError(to) {
		t.Fatalf("timeout should not be an engine-kind error")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected context deadline recognized")
	}
	var ne error = root
	if !IsTimeout(ne) {
		t.Fatalf("expected net-like timeout recognized")
	}
}

func TestNilSafety(t *testing.T) {
	if IsEngineError(nil) {
		t.Fatalf("nil should not be an engine error")
	}
	if IsTimeout(nil) {
		t.Fatalf("nil should not be timeout")
	}
	if IsParams(nil) || IsState(nil) || IsLock(nil) || IsList(nil) || IsIo(nil) || IsLib(nil) || IsTask(nil) {
		t.Fatalf("nil should not match any specific kind")
	}
}

func TestConstructorWithoutCause(t *testing.T) {
	p := NewParamsError("handleCommand", nil)
	if p == nil {
		t.Fatalf("constructor returned nil")
	}
	if errStr := p.Error(); errStr == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestNegativePredicates(t *testing.T) {
	plain := stdErrors.New("plain")
	if IsEngineError(plain) {
		t.Fatalf("plain error shouldn't classify as an engine error")
	}
	if IsTimeout(plain) {
		t.Fatalf("plain error shouldn't be timeout")
	}
}
