// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// Source identifies where a message came from. Ports are their own source
// identity; callers outside any hub use External. A nil Source disables
// loop suppression.
type Source any

type externalSource struct{ _ byte }

// External is the source identity of callers that are not ports of the hub.
// It never matches a registered port, so messages from it reach every port.
var External Source = &externalSource{}

// Priority hints passed to ports. Lower values are more urgent. Ports that do
// not reorder ignore them.
const (
	PriorityUrgent uint = 0
	PriorityNormal uint = 1
	PriorityBulk   uint = 2
)

// Port is a registered delivery endpoint of a hub.
//
// Send offers one share of data. The port must not modify the payload; if it
// keeps the payload beyond the call it takes its own reference with Ref.
// Send returns nil once the port has accepted the data. If the port cannot
// accept it now, it takes a share with done.NewChild, returns ErrWouldBlock,
// and notifies the share once it has room; the hub's caller then offers the
// same payload to this port again. Any other error means the port dropped the
// data for good (typically because it is closed).
//
// Port implementations must be comparable (pointer types) so they can serve
// as a Source.
type Port[T any] interface {
	Send(data *Payload[T], done *Barrier, priority uint) error
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Messages   uint64 // Send calls
	Deliveries uint64 // port accepts
	Deferrals  uint64 // port deferrals (ErrWouldBlock)
	Drops      uint64 // port rejections
}

// Hub fans each message out to every registered port.
//
// The hub does no buffering: Send runs the fan-out synchronously on the
// calling goroutine. The registry is copy-on-write under its own lock, and
// port Send calls run outside that lock, so a slow port never blocks
// registration or other senders' registry access.
type Hub[T any] struct {
	mu    sync.RWMutex
	ports []Port[T]

	messages   atomix.Uint64
	deliveries atomix.Uint64
	deferrals  atomix.Uint64
	drops      atomix.Uint64
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{}
}

// Register adds port to the delivery set. The port receives every
// message sent after Register returns.
func (h *Hub[T]) Register(port Port[T]) error {
	if port == nil {
		fatal("registering nil port")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if indexOf(h.ports, port) >= 0 {
		return ErrPortExists
	}
	ports := make([]Port[T], len(h.ports), len(h.ports)+1)
	copy(ports, h.ports)
	h.ports = append(ports, port)
	return nil
}

// Unregister removes port from the delivery set. A fan-out already in
// progress on another goroutine may still offer the port its message; retries
// through AppendSendTo skip it from now on. A port must unregister itself
// before it is torn down.
func (h *Hub[T]) Unregister(port Port[T]) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := indexOf(h.ports, port)
	if i < 0 {
		return ErrPortNotFound
	}
	ports := make([]Port[T], 0, len(h.ports)-1)
	ports = append(ports, h.ports[:i]...)
	h.ports = append(ports, h.ports[i+1:]...)
	return nil
}

// Registered reports whether port is in the delivery set.
func (h *Hub[T]) Registered(port Port[T]) bool {
	return indexOf(h.snapshot(), port) >= 0
}

// Len returns the number of registered ports.
func (h *Hub[T]) Len() int {
	return len(h.snapshot())
}

// Send offers data to every registered port except the one equal to src.
// done must not be nil; deferring ports take shares of it. Send does not
// report which ports deferred; callers that retry use AppendSend or Sender.
func (h *Hub[T]) Send(src Source, data *Payload[T], done *Barrier, priority uint) {
	_ = h.AppendSend(nil, src, data, done, priority)
}

// AppendSend is Send, appending the ports that deferred to dst.
func (h *Hub[T]) AppendSend(dst []Port[T], src Source, data *Payload[T], done *Barrier, priority uint) []Port[T] {
	if done == nil {
		fatal("hub send without completion")
	}
	ports := h.snapshot()
	h.messages.Add(1)
	data.Ref()
	defer data.Release()
	for _, p := range ports {
		if src != nil && Source(p) == src {
			continue
		}
		dst = h.deliver(dst, p, data, done, priority)
	}
	return dst
}

// AppendSendTo offers data again to those of ports that are still
// registered, appending the ones that deferred again to dst.
// dst must not share its backing array with ports.
func (h *Hub[T]) AppendSendTo(dst []Port[T], ports []Port[T], data *Payload[T], done *Barrier, priority uint) []Port[T] {
	if done == nil {
		fatal("hub send without completion")
	}
	current := h.snapshot()
	data.Ref()
	defer data.Release()
	for _, p := range ports {
		if indexOf(current, p) < 0 {
			continue
		}
		dst = h.deliver(dst, p, data, done, priority)
	}
	return dst
}

// Stats returns a snapshot of the hub counters.
func (h *Hub[T]) Stats() HubStats {
	return HubStats{
		Messages:   h.messages.Load(),
		Deliveries: h.deliveries.Load(),
		Deferrals:  h.deferrals.Load(),
		Drops:      h.drops.Load(),
	}
}

func (h *Hub[T]) deliver(dst []Port[T], p Port[T], data *Payload[T], done *Barrier, priority uint) []Port[T] {
	err := p.Send(data, done, priority)
	switch {
	case err == nil:
		h.deliveries.Add(1)
	case iox.IsWouldBlock(err):
		h.deferrals.Add(1)
		dst = append(dst, p)
	default:
		h.drops.Add(1)
	}
	return dst
}

// snapshot returns the current registry. The slice is never mutated in place.
func (h *Hub[T]) snapshot() []Port[T] {
	h.mu.RLock()
	ports := h.ports
	h.mu.RUnlock()
	return ports
}

func indexOf[T any](ports []Port[T], port Port[T]) int {
	for i, p := range ports {
		if p == port {
			return i
		}
	}
	return -1
}
