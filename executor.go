// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"context"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// Executor runs queued callbacks on a single goroutine. Callbacks may be
// added from any goroutine; the queue is a bounded lock-free MPSC queue.
type Executor struct {
	q      queue[func()]
	closed atomix.Uint32
}

// NewExecutor returns an executor holding up to capacity pending callbacks.
func NewExecutor(capacity int) *Executor {
	if capacity < 2 {
		capacity = 2
	}
	return &Executor{q: newMPSC[func()](capacity)}
}

// Add queues fn. It returns ErrWouldBlock when the queue is full and
// ErrClosed after Close.
func (e *Executor) Add(fn func()) error {
	if e.closed.Load() != 0 {
		return ErrClosed
	}
	return e.q.Enqueue(&fn)
}

// RunOnce runs at most one queued callback and reports whether it did.
func (e *Executor) RunOnce() bool {
	fn, err := e.q.Dequeue()
	if err != nil {
		return false
	}
	fn()
	return true
}

// Run executes callbacks until ctx is done or the executor is closed and
// drained. Only one goroutine may call Run.
func (e *Executor) Run(ctx context.Context) error {
	var bo iox.Backoff
	for {
		if e.RunOnce() {
			bo.Reset()
			continue
		}
		if e.closed.Load() != 0 {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

// Close stops accepting callbacks. Run returns after draining the queue.
func (e *Executor) Close() {
	e.closed.Store(1)
}

// Notifier returns a notifiable that schedules fn on the executor. If the
// queue is full or closed, fn runs inline on the notifying goroutine rather
// than being lost.
func (e *Executor) Notifier(fn func()) Notifiable {
	return NotifyFunc(func() {
		if e.Add(fn) != nil {
			fn()
		}
	})
}
