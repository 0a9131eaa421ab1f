package task

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskRunsUntilQuit(t *testing.T) {
	sem := NewSemaphore()
	var iterations int64
	var worker *Task
	worker = New("worker", func() bool {
		sem.Wait()
		if worker.Quit() {
			return false
		}
		atomic.AddInt64(&iterations, 1)
		return true
	})

	if err := worker.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 5; i++ {
		sem.Post()
	}
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt64(&iterations); got != 5 {
		t.Fatalf("expected 5 iterations, got %d", got)
	}

	worker.Stop()
	sem.Post()
	worker.Join()
}

func TestTaskDoubleStartErrors(t *testing.T) {
	sem := NewSemaphore()
	var tk *Task
	tk = New("once", func() bool {
		sem.Wait()
		return !tk.Quit()
	})
	if err := tk.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := tk.Start(); err == nil {
		t.Fatalf("expected error on second Start")
	}
	tk.Stop()
	sem.Post()
	tk.Join()
}

func TestSemaphorePostWaitOrdering(t *testing.T) {
	sem := NewSemaphore()
	sem.Post()
	sem.Post()
	if got := sem.Count(); got != 2 {
		t.Fatalf("expected count=2, got %d", got)
	}
	sem.Wait()
	if got := sem.Count(); got != 1 {
		t.Fatalf("expected count=1 after one Wait, got %d", got)
	}
	sem.Drain()
	if got := sem.Count(); got != 0 {
		t.Fatalf("expected count=0 after Drain, got %d", got)
	}
}
