// Package task provides the engine's worker primitive: a named goroutine
// with an idempotent body function, started once, cancelled via a shared
// quit flag plus a semaphore wake. No event loop, no context tree — every
// component (server, client, controller bus) runs a small fixed number of
// these side by side.
package task

import (
	"sync"
	"sync/atomic"

	enginerrors "github.com/mmstreamer/engine/internal/errors"
)

// Body is one task's work function. It runs in a loop; each call is one
// scheduling tick. Returning false stops the task as if quit had been set.
type Body func() (more bool)

// Task is a named worker goroutine. The zero value is not usable; construct
// with New.
type Task struct {
	name string
	quit atomic.Bool
	body Body
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a task bound to body but does not start it.
func New(name string, body Body) *Task {
	return &Task{name: name, body: body}
}

// Start launches the task's goroutine. Calling Start twice is a programming
// error and returns a TaskError; Start is not safe to call concurrently with
// itself on the same Task.
func (t *Task) Start() error {
	if t == nil || t.body == nil {
		return enginerrors.NewTaskError("task.Start", nil)
	}
	started := false
	t.once.Do(func() {
		started = true
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for !t.quit.Load() {
				if !t.body() {
					return
				}
			}
		}()
	})
	if !started {
		return enginerrors.NewTaskError("task.Start: "+t.name+" already started", nil)
	}
	return nil
}

// Stop sets the quit flag. It does not itself wake a task blocked on a
// semaphore; callers post the semaphore (or otherwise cause the blocking
// call to return) after calling Stop, then call Join.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.quit.Store(true)
}

// Quit reports whether Stop has been called.
func (t *Task) Quit() bool {
	if t == nil {
		return true
	}
	return t.quit.Load()
}

// Join blocks until the task's goroutine has returned.
func (t *Task) Join() {
	if t == nil {
		return
	}
	t.wg.Wait()
}

// Name returns the task's identifying name, used only for logging.
func (t *Task) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}
