// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
)

// Serial is a monotonically increasing endpoint identifier, used to tell
// endpoints apart in logs.
type Serial = uint32

var serialCounter atomix.Uint32

func nextSerial() Serial {
	return serialCounter.Add(1)
}

// endpointContext is the type-erased view of an endpoint that effect
// operations dispatch on. Every function is non-blocking.
type endpointContext struct {
	send  func(v any) error
	recv  func() (any, error)
	close func() error
}

// endpointDispatcher is the structural interface of endpoint operations.
// DispatchEndpoint returns ErrWouldBlock at the I/O boundary: the hub still
// retries the previous message, or nothing has been received yet.
type endpointDispatcher interface {
	DispatchEndpoint(ctx *endpointContext) (kont.Resumed, error)
}

// Endpoint is a typed attachment to a hub: a QueuePort receiving every
// message the other ports send, plus a Sender whose source is that port, so
// the endpoint never hears its own messages.
type Endpoint[T any] struct {
	ctx    endpointContext
	hub    *Hub[T]
	port   *QueuePort[T]
	sender *Sender[T]
	serial Serial
	closed atomix.Uint32
}

// NewEndpoint registers a new endpoint on hub with a receive queue of the
// given capacity.
func NewEndpoint[T any](hub *Hub[T], capacity int, opts ...SenderOption) (*Endpoint[T], error) {
	ep := &Endpoint[T]{
		hub:    hub,
		port:   NewQueuePort[T](capacity),
		serial: nextSerial(),
	}
	ep.sender = NewSender(hub, Source(ep.port), opts...)
	ep.ctx = endpointContext{
		send:  func(v any) error { return ep.TrySend(v.(T)) },
		recv:  func() (any, error) { return ep.TryRecv() },
		close: ep.TryClose,
	}
	if err := hub.Register(ep.port); err != nil {
		return nil, err
	}
	return ep, nil
}

// Pair creates a private hub with two endpoints attached, each receiving
// what the other sends.
func Pair[T any](capacity int) (*Endpoint[T], *Endpoint[T]) {
	hub := NewHub[T]()
	a, _ := NewEndpoint(hub, capacity)
	b, _ := NewEndpoint(hub, capacity)
	return a, b
}

// Serial returns the endpoint's serial number.
func (ep *Endpoint[T]) Serial() Serial { return ep.serial }

// Port returns the endpoint's receive port, which is also its source identity.
func (ep *Endpoint[T]) Port() *QueuePort[T] { return ep.port }

// Sender returns the endpoint's sender.
func (ep *Endpoint[T]) Sender() *Sender[T] { return ep.sender }

// TrySend publishes v to the other ports of the hub without blocking.
// It returns ErrWouldBlock while the previous message is still deferred.
func (ep *Endpoint[T]) TrySend(v T) error {
	if ep.closed.Load() != 0 {
		return ErrClosed
	}
	if err := ep.sender.Poll(); err != nil {
		return err
	}
	p := NewPayload(v)
	err := ep.sender.TrySend(p)
	p.Release()
	return err
}

// TryRecv returns the next message without blocking, or ErrWouldBlock.
func (ep *Endpoint[T]) TryRecv() (T, error) {
	var zero T
	p, err := ep.port.TryRecv()
	if err != nil {
		return zero, err
	}
	v := p.Value()
	p.Release()
	return v, nil
}

// TryClose closes the endpoint once its last message has been accepted by
// every port, returning ErrWouldBlock until then.
func (ep *Endpoint[T]) TryClose() error {
	if ep.closed.Load() == 0 {
		if err := ep.sender.Poll(); err != nil {
			return err
		}
	}
	ep.Close()
	return nil
}

// Close detaches the endpoint from its hub, abandoning a message still
// deferred by some port. Messages still queued are
// released and senders waiting on this endpoint are notified.
func (ep *Endpoint[T]) Close() {
	if !ep.closed.CompareAndSwap(0, 1) {
		return
	}
	ep.sender.Close()
	_ = ep.hub.Unregister(ep.port)
	ep.port.Close()
}
