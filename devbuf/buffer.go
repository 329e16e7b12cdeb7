// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package devbuf provides the bounded ring buffer that sits between a device
// "interrupt" context, which must never block, and the thread context that
// drains or fills it, plus the hub ports that connect such buffers to a
// [canhub.Hub].
package devbuf

import (
	"fmt"
	"sync"

	"code.hybscloud.com/canhub"
)

// MaxCapacity is the largest buffer capacity.
const MaxCapacity = 65535

// Option configures a Buffer.
type Option func(*bufferOptions)

type bufferOptions struct {
	sem canhub.Semaphore
	cs  canhub.CriticalSection
}

// WithSemaphore sets the semaphore a blocked thread waits on.
func WithSemaphore(s canhub.Semaphore) Option {
	return func(o *bufferOptions) { o.sem = s }
}

// WithCriticalSection sets the section that excludes the interrupt context.
func WithCriticalSection(cs canhub.CriticalSection) Option {
	return func(o *bufferOptions) { o.cs = cs }
}

// Buffer is a fixed-capacity FIFO ring of T shared by an interrupt context
// and thread contexts.
//
// Put, Get, Len, Space and SignalConditionFromISR only ever enter the
// critical section, which spins and never sleeps, so they are safe from a
// context that must not block. Thread contexts serialize with each other
// through the device mutex (Lock, Unlock) and wait for a condition with
// BlockUntilCondition or BlockUntil.
//
// Storage is allocated once by New.
type Buffer[T any] struct {
	mu  sync.Locker
	sem canhub.Semaphore
	cs  canhub.CriticalSection

	data    []T
	count   int
	rd, wr  int
	waiting bool
}

// New returns a buffer holding up to capacity items. mu is the device mutex.
// A capacity outside 1..MaxCapacity panics with a *canhub.Fault.
func New[T any](capacity int, mu sync.Locker, opts ...Option) *Buffer[T] {
	if capacity < 1 || capacity > MaxCapacity {
		panic(&canhub.Fault{Msg: fmt.Sprintf("device buffer capacity %d out of range", capacity)})
	}
	if mu == nil {
		mu = new(sync.Mutex)
	}
	o := bufferOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sem == nil {
		o.sem = canhub.NewSemaphore(0)
	}
	if o.cs == nil {
		o.cs = canhub.NewCriticalSection()
	}
	return &Buffer[T]{
		mu:   mu,
		sem:  o.sem,
		cs:   o.cs,
		data: make([]T, capacity),
	}
}

// Put appends as many of items as fit and returns how many it stored.
func (b *Buffer[T]) Put(items []T) int {
	b.cs.Enter()
	n := b.put(items)
	b.cs.Exit()
	return n
}

func (b *Buffer[T]) put(items []T) int {
	n := min(len(items), len(b.data)-b.count)
	for i := 0; i < n; {
		c := copy(b.data[b.wr:], items[i:n])
		i += c
		b.wr += c
		if b.wr == len(b.data) {
			b.wr = 0
		}
	}
	b.count += n
	return n
}

// Get removes up to len(items) of the oldest items into items and returns
// how many it removed.
func (b *Buffer[T]) Get(items []T) int {
	b.cs.Enter()
	n := b.get(items)
	b.cs.Exit()
	return n
}

func (b *Buffer[T]) get(items []T) int {
	n := min(len(items), b.count)
	for i := 0; i < n; {
		c := copy(items[i:n], b.data[b.rd:min(b.rd+n-i, len(b.data))])
		clear(b.data[b.rd : b.rd+c])
		i += c
		b.rd += c
		if b.rd == len(b.data) {
			b.rd = 0
		}
	}
	b.count -= n
	return n
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	b.cs.Enter()
	n := b.count
	b.cs.Exit()
	return n
}

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Space returns the number of free slots.
func (b *Buffer[T]) Space() int {
	b.cs.Enter()
	n := len(b.data) - b.count
	b.cs.Exit()
	return n
}

// Lock acquires the device mutex.
func (b *Buffer[T]) Lock() {
	b.mu.Lock()
}

// Unlock releases the device mutex.
func (b *Buffer[T]) Unlock() {
	b.mu.Unlock()
}

// BlockUntilCondition waits for a SignalCondition or SignalConditionFromISR.
// The device mutex must be held; it is released while waiting and held
// again on return. Callers re-check their condition in a loop.
func (b *Buffer[T]) BlockUntilCondition() {
	b.cs.Enter()
	for {
		b.waiting = true
		b.cs.Exit()
		b.mu.Unlock()

		b.sem.Wait()

		b.mu.Lock()
		b.cs.Enter()
		if !b.waiting {
			b.cs.Exit()
			return
		}
		// Another waiter took the signal.
	}
}

// BlockUntil waits until ready, given the stored item count, reports true.
// ready runs inside the critical section, so a signal between the check and
// the wait is never lost; it must not block or call back into the buffer.
// The device mutex must be held, as for BlockUntilCondition.
func (b *Buffer[T]) BlockUntil(ready func(n int) bool) {
	for {
		b.cs.Enter()
		if ready(b.count) {
			b.cs.Exit()
			return
		}
		b.waiting = true
		b.cs.Exit()
		b.mu.Unlock()

		b.sem.Wait()

		b.mu.Lock()
		b.cs.Enter()
		b.waiting = false
		b.cs.Exit()
	}
}

// SignalCondition wakes a thread blocked in BlockUntilCondition.
func (b *Buffer[T]) SignalCondition() {
	b.cs.Enter()
	if b.waiting {
		b.waiting = false
		b.sem.Post()
	}
	b.cs.Exit()
}

// SignalConditionFromISR is SignalCondition for a context that must not
// block. It reports whether a waiting thread was woken, in which case the
// caller should yield.
func (b *Buffer[T]) SignalConditionFromISR() (woken bool) {
	b.cs.Enter()
	if b.waiting {
		b.waiting = false
		woken = b.sem.PostFromISR()
	}
	b.cs.Exit()
	return woken
}
