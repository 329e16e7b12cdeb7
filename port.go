// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"context"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// FuncPort is a port that hands every payload to a function and always
// accepts. The function runs on the sender's goroutine and must not keep
// the payload without taking a reference.
type FuncPort[T any] struct {
	fn func(data *Payload[T], priority uint)
}

// NewFuncPort returns a port calling fn for every delivery.
func NewFuncPort[T any](fn func(data *Payload[T], priority uint)) *FuncPort[T] {
	return &FuncPort[T]{fn: fn}
}

// Send implements Port.
func (p *FuncPort[T]) Send(data *Payload[T], _ *Barrier, priority uint) error {
	p.fn(data, priority)
	return nil
}

// queue is the subset of the lfq queue API used here.
type queue[E any] interface {
	Enqueue(elem *E) error
	Dequeue() (E, error)
}

// newMPSC builds a bounded multi-producer single-consumer queue.
// Compact selects the CAS-based variant, which never reports empty while
// items remain.
func newMPSC[E any](capacity int) queue[E] {
	return lfq.BuildMPSC[E](lfq.New(capacity).SingleConsumer().Compact())
}

// QueuePort is a bounded port backed by lock-free MPSC queues. Any number of
// hub senders may deliver into it concurrently; exactly one goroutine
// receives. Urgent payloads are received ahead of the rest.
//
// When both queues are full, Send takes a share of the delivery barrier and
// returns ErrWouldBlock. The share is notified when the receiver frees a slot.
type QueuePort[T any] struct {
	urgent queue[*Payload[T]]
	normal queue[*Payload[T]]

	// gate is held shared by Send while it enqueues and exclusively by
	// Close, so no enqueue lands after Close has drained.
	gate   sync.RWMutex
	closed atomix.Uint32

	// mu orders a full Send's second attempt against the receiver's
	// wakeup: the receiver frees a slot before taking mu, the sender
	// registers under mu after failing again.
	mu      sync.Mutex
	waiters []*Barrier
}

// NewQueuePort returns a port holding up to capacity payloads per priority
// class. Capacity rounds up to a power of two, minimum 2.
func NewQueuePort[T any](capacity int) *QueuePort[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &QueuePort[T]{
		urgent: newMPSC[*Payload[T]](capacity),
		normal: newMPSC[*Payload[T]](capacity),
	}
}

// Send implements Port.
func (p *QueuePort[T]) Send(data *Payload[T], done *Barrier, priority uint) error {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if p.closed.LoadAcquire() != 0 {
		return ErrClosed
	}
	q := p.normal
	if priority == PriorityUrgent {
		q = p.urgent
	}
	data.Ref()
	if q.Enqueue(&data) == nil {
		return nil
	}
	p.mu.Lock()
	if q.Enqueue(&data) == nil {
		p.mu.Unlock()
		return nil
	}
	p.waiters = append(p.waiters, done.NewChild())
	p.mu.Unlock()
	data.Release()
	return ErrWouldBlock
}

// TryRecv dequeues the next payload without blocking. The caller owns the
// returned reference and must Release it. Returns ErrWouldBlock when empty.
func (p *QueuePort[T]) TryRecv() (*Payload[T], error) {
	if p.closed.LoadAcquire() != 0 {
		return nil, ErrClosed
	}
	data, err := p.urgent.Dequeue()
	if err != nil {
		data, err = p.normal.Dequeue()
	}
	if err != nil {
		return nil, ErrWouldBlock
	}
	p.wakeWaiters()
	return data, nil
}

// Recv dequeues the next payload, waiting with adaptive backoff until one
// arrives, the port is closed, or ctx is done.
func (p *QueuePort[T]) Recv(ctx context.Context) (*Payload[T], error) {
	var bo iox.Backoff
	for {
		data, err := p.TryRecv()
		if err == nil || !iox.IsWouldBlock(err) {
			return data, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bo.Wait()
	}
}

// Close rejects further deliveries, releases queued payloads and notifies
// every deferred share so that no sender waits on a dead port.
// The port should be unregistered from its hub first, and Close must not
// run concurrently with TryRecv or Recv.
func (p *QueuePort[T]) Close() {
	p.gate.Lock()
	if p.closed.LoadAcquire() != 0 {
		p.gate.Unlock()
		return
	}
	p.closed.StoreRelease(1)
	p.gate.Unlock()
	for _, q := range []queue[*Payload[T]]{p.urgent, p.normal} {
		for {
			data, err := q.Dequeue()
			if err != nil {
				break
			}
			data.Release()
		}
	}
	p.wakeWaiters()
}

// Closed reports whether Close has been called.
func (p *QueuePort[T]) Closed() bool {
	return p.closed.LoadAcquire() != 0
}

func (p *QueuePort[T]) wakeWaiters() {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()
	// Notify outside the lock: a completion may re-enter Send.
	for _, w := range waiters {
		w.Notify()
	}
}
