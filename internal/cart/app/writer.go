package app

import (
	"context"
	"log/slog"
	"sync"
)

// writer serializes write-through to the authoritative store. Rapid mutation
// bursts coalesce into a single in-flight write with a trailing re-write when
// state changed during flight, so the store always converges on the current
// in-memory snapshot and an earlier snapshot can never stomp a later one.
type writer struct {
	mu       sync.Mutex
	log      *slog.Logger
	flush    func(ctx context.Context) error
	inFlight bool
	dirty    bool
	lastErr  error
	idle     chan struct{}
}

func newWriter(flush func(ctx context.Context) error, log *slog.Logger) *writer {
	return &writer{log: log, flush: flush}
}

// Schedule marks the snapshot dirty and starts the flush loop if none is
// running. Never blocks.
func (w *writer) Schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.dirty = true
	if w.inFlight {
		return
	}
	w.inFlight = true
	w.idle = make(chan struct{})
	go w.run()
}

func (w *writer) run() {
	for {
		w.mu.Lock()
		if !w.dirty {
			w.inFlight = false
			close(w.idle)
			w.mu.Unlock()
			return
		}
		w.dirty = false
		w.mu.Unlock()

		// Detached from any caller: in-flight writes run to completion, they
		// are idempotent full replaces.
		err := w.flush(context.Background())

		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()

		if err != nil {
			// Fail open: the in-memory state keeps the user's intent; the
			// next mutation re-schedules and retries.
			w.log.Warn("cart write-through failed", "error", err)
		}
	}
}

// Wait blocks until no write is in flight and returns the outcome of the last
// one. Used as a synchronization barrier before operations that must see the
// store converged, checkout among them.
func (w *writer) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		if !w.inFlight {
			err := w.lastErr
			w.mu.Unlock()
			return err
		}
		idle := w.idle
		w.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LastErr reports the most recent write-through outcome without blocking.
// Non-nil means the store is behind the in-memory state: a non-blocking
// retry indicator, not a reverted cart.
func (w *writer) LastErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
