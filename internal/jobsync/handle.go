package jobsync

import (
	"context"
	"sync"

	"github.com/urlqueue/urlqueue/internal/job"
)

// Reason tells why a repeating task ended.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonTerminal Reason = "terminal"
	ReasonNotFound Reason = "not_found"
	ReasonStopped  Reason = "stopped"
)

// Handle controls one repeating task. Stop must be called by the owner when
// the task is no longer needed; it is safe to call any number of times, from
// any goroutine, including from the task's own callbacks.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	reason Reason
	record job.Record
	seen   bool
}

func newHandle(parent context.Context) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{cancel: cancel, done: make(chan struct{})}, ctx
}

// finishedHandle returns a handle whose task ended before it started.
func finishedHandle(rec job.Record, reason Reason) *Handle {
	h := &Handle{cancel: func() {}, done: make(chan struct{}), record: rec, seen: true}
	h.finish(reason)
	return h
}

// Stop cancels the task. It does not wait for the task goroutine to exit; use
// Wait or Done for that.
func (h *Handle) Stop() {
	h.setReason(ReasonStopped)
	h.cancel()
}

// Done is closed once the task goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task goroutine has exited.
func (h *Handle) Wait() {
	<-h.done
}

// Reason is ReasonNone while the task runs.
func (h *Handle) Reason() Reason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Status is the last status observed by a Poller, empty before the first response.
func (h *Handle) Status() job.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record.Status
}

// Record is the last record observed by a Poller.
func (h *Handle) Record() (job.Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record, h.seen
}

func (h *Handle) observe(rec job.Record) {
	h.mu.Lock()
	h.record = rec
	h.seen = true
	h.mu.Unlock()
}

// setReason keeps the first reason recorded.
func (h *Handle) setReason(r Reason) {
	h.mu.Lock()
	if h.reason == ReasonNone {
		h.reason = r
	}
	h.mu.Unlock()
}

func (h *Handle) finish(r Reason) {
	h.once.Do(func() {
		h.setReason(r)
		h.cancel()
		close(h.done)
	})
}
