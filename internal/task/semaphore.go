package task

import "sync"

// Semaphore is a counting semaphore built on sync.Mutex + sync.Cond. Unlike
// golang.org/x/sync/semaphore.Weighted (a bounded concurrency limiter with
// paired Acquire/Release up to a fixed weight), this type supports posting
// any number of times before a waiter ever arrives and draining the count
// back to zero on demand — the shape spec.md's producer/consumer hookup
// between sendData and the sender/receiver task requires.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewSemaphore returns a semaphore initialized to zero.
func NewSemaphore() *Semaphore {
	s := &Semaphore{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Post increments the count by one and wakes one waiter.
func (s *Semaphore) Post() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Wait blocks until the count is greater than zero, then decrements it by
// one. It is the caller's responsibility to check Quit (or equivalent)
// after Wait returns, since shutdown wakes a waiter with an ordinary Post.
func (s *Semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// Drain resets the count to zero without decrementing per-waiter; used by
// suspendSender to guarantee the sender observes the suspended state before
// any already-posted frame is sent. It does not itself wake blocked
// waiters — callers that need to unblock a waiter during drain should
// follow Drain with Post (e.g. on shutdown).
func (s *Semaphore) Drain() {
	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()
}

// Count returns the current pending count, for tests.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
