// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"context"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// Sender drives delivery of a stream of payloads into a hub and owns the
// retry obligation of the hub's caller.
//
// TrySend fans a payload out under a barrier. Ports that defer keep shares of
// that barrier; when the last share is notified the Sender offers the same
// payload again, to the deferring ports only. Until every port has accepted,
// the next payload is refused with ErrWouldBlock, which preserves per-port
// ordering and delivers at least once per port without dropping.
//
// A Sender is safe for concurrent use, but ordering is only defined for
// payloads submitted by a single goroutine.
type Sender[T any] struct {
	hub      *Hub[T]
	src      Source
	priority uint
	wake     Notifiable

	mu       sync.Mutex
	barrier  Barrier
	inflight *Payload[T]
	deferred []Port[T]
	retry    []Port[T]
	closed   bool

	ready    atomix.Uint32 // barrier drained since the last offer
	offering atomix.Uint32 // an offer is running under mu
	waking   atomix.Uint32 // deferred ports exist; wake on drain

	completion Notifiable
}

// SenderOption configures a Sender.
type SenderOption func(*senderOptions)

type senderOptions struct {
	priority uint
	wake     Notifiable
}

// WithPriority sets the priority hint passed to ports.
func WithPriority(priority uint) SenderOption {
	return func(o *senderOptions) { o.priority = priority }
}

// WithWake installs a notifiable invoked each time a deferred delivery
// becomes retryable. It runs on the goroutine that released the last
// share, typically a port's consumer, and should only schedule work, for
// example through Executor.Notifier.
func WithWake(n Notifiable) SenderOption {
	return func(o *senderOptions) { o.wake = n }
}

// NewSender returns a Sender delivering into hub on behalf of src.
func NewSender[T any](hub *Hub[T], src Source, opts ...SenderOption) *Sender[T] {
	o := senderOptions{priority: PriorityNormal, wake: Empty()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Sender[T]{
		hub:      hub,
		src:      src,
		priority: o.priority,
		wake:     o.wake,
	}
	s.completion = NotifyFunc(s.drained)
	return s
}

// TrySend offers data to the hub. It takes its own reference; the caller
// keeps and eventually releases its own.
//
// It returns ErrWouldBlock while a previous payload is still deferred by some
// port, and ErrClosed after Close. A nil return means the payload has been
// handed to the hub; some ports may still be retrying it in the background.
func (s *Sender[T]) TrySend(data *Payload[T]) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.progress(); err != nil {
		s.mu.Unlock()
		s.kick()
		return err
	}
	s.inflight = data.Ref()
	s.offer(nil)
	s.mu.Unlock()
	s.kick()
	return nil
}

// Send is TrySend, waiting with adaptive backoff while the Sender is busy.
func (s *Sender[T]) Send(ctx context.Context, data *Payload[T]) error {
	var bo iox.Backoff
	for {
		err := s.TrySend(data)
		if err == nil || !iox.IsWouldBlock(err) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

// Poll retries a deferred delivery if its barrier has drained.
// It returns nil once nothing is in flight.
func (s *Sender[T]) Poll() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	err := s.progress()
	s.mu.Unlock()
	s.kick()
	return err
}

// Flush waits until every port has accepted the in-flight payload.
func (s *Sender[T]) Flush(ctx context.Context) error {
	var bo iox.Backoff
	for {
		err := s.Poll()
		if err == nil || !iox.IsWouldBlock(err) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

// Busy reports whether a payload is still waiting for deferring ports.
func (s *Sender[T]) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// Close abandons any in-flight payload. Ports still holding shares of the
// barrier may notify them later; the payload is released when they do.
func (s *Sender[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.deferred = s.deferred[:0]
	if s.inflight != nil && s.ready.LoadAcquire() != 0 {
		s.inflight.Release()
		s.inflight = nil
	}
}

// progress retries the in-flight payload if possible. Requires mu.
func (s *Sender[T]) progress() error {
	if s.inflight == nil {
		if !s.barrier.Idle() {
			// A port kept a share without reporting a deferral.
			return ErrWouldBlock
		}
		return nil
	}
	if s.ready.LoadAcquire() == 0 {
		return ErrWouldBlock
	}
	if len(s.deferred) == 0 {
		s.inflight.Release()
		s.inflight = nil
		return nil
	}
	s.retry = append(s.retry[:0], s.deferred...)
	s.offer(s.retry)
	if s.inflight != nil {
		return ErrWouldBlock
	}
	return nil
}

// offer fans the in-flight payload out to all ports (ports == nil) or to the
// given ports. Requires mu and an idle barrier.
func (s *Sender[T]) offer(ports []Port[T]) {
	s.offering.StoreRelease(1)
	s.ready.StoreRelease(0)
	s.waking.StoreRelease(0)
	s.barrier.Reset(s.completion)
	if ports == nil {
		s.deferred = s.hub.AppendSend(s.deferred[:0], s.src, s.inflight, &s.barrier, s.priority)
	} else {
		s.deferred = s.hub.AppendSendTo(s.deferred[:0], ports, s.inflight, &s.barrier, s.priority)
	}
	if len(s.deferred) > 0 {
		s.waking.StoreRelease(1)
	}
	s.barrier.Notify() // creator share
	s.offering.Swap(0)
	if len(s.deferred) == 0 {
		s.inflight.Release()
		s.inflight = nil
	}
}

// drained is the barrier completion.
func (s *Sender[T]) drained() {
	// Swap pairs with the Swap clearing offering: at least one side sees
	// the other's write.
	s.ready.Swap(1)
	if s.offering.LoadAcquire() != 0 {
		// Every deferring port already notified; kick wakes after unlock.
		return
	}
	if s.waking.LoadAcquire() != 0 {
		s.wake.Notify()
	}
	s.mu.Lock()
	if s.closed && s.inflight != nil {
		s.inflight.Release()
		s.inflight = nil
	}
	s.mu.Unlock()
}

// kick wakes the owner when the barrier drained while an offer was running.
// Called without mu.
func (s *Sender[T]) kick() {
	if s.ready.LoadAcquire() != 0 && s.waking.LoadAcquire() != 0 && s.Busy() {
		s.wake.Notify()
	}
}
