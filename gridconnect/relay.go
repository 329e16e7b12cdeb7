// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gridconnect

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/canhub"
)

// relay is one direction of an Adapter: a port on the input hub that
// translates each payload into zero or more outputs and forwards them into
// the output hub through a Sender.
//
// Outputs the Sender cannot take yet wait in pending. While pending is not
// empty, or the Sender still retries an output, new input is deferred: the
// relay keeps a share of the caller's barrier and returns ErrWouldBlock, and
// notifies the share once both drain. Input is therefore never dropped, and
// the backlog stays bounded by the outputs of a single input.
type relay[In, Out any] struct {
	mu        sync.Mutex
	sender    *canhub.Sender[Out]
	translate func(data *canhub.Payload[In])
	pending   []*canhub.Payload[Out]
	head      int
	held      []*canhub.Barrier
	closed    bool

	again atomix.Uint32 // a wakeup arrived while mu was held
}

// Send implements canhub.Port.
func (r *relay[In, Out]) Send(data *canhub.Payload[In], done *canhub.Barrier, _ uint) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return canhub.ErrClosed
	}
	r.pumpLocked()
	if r.backlog() > 0 {
		r.held = append(r.held, done.NewChild())
		r.unlock()
		return canhub.ErrWouldBlock
	}
	r.translate(data)
	r.pumpLocked()
	r.unlock()
	return nil
}

// push queues an output. Requires mu.
func (r *relay[In, Out]) push(p *canhub.Payload[Out]) {
	r.pending = append(r.pending, p)
}

// backlog counts queued outputs plus one for an output the Sender still
// retries. Requires mu.
func (r *relay[In, Out]) backlog() int {
	n := len(r.pending) - r.head
	if r.sender.Busy() {
		n++
	}
	return n
}

// pumpLocked retries the Sender's deferred output, then hands pending
// outputs to it until it is busy. Requires mu.
func (r *relay[In, Out]) pumpLocked() {
	if r.sender.Poll() != nil {
		return
	}
	for r.head < len(r.pending) {
		p := r.pending[r.head]
		if r.sender.TrySend(p) != nil {
			break
		}
		p.Release()
		r.pending[r.head] = nil
		r.head++
	}
	if r.head == len(r.pending) {
		r.pending = r.pending[:0]
		r.head = 0
	}
}

// wake is the Sender's retry notification. It may run while mu is held by
// the same goroutine (the Sender drained inside TrySend), so it never blocks
// on mu: it leaves a flag the holder picks up in unlock.
func (r *relay[In, Out]) wake() {
	r.again.Swap(1)
	r.drain()
}

func (r *relay[In, Out]) drain() {
	for r.again.LoadAcquire() != 0 {
		if !r.mu.TryLock() {
			return
		}
		if r.again.Swap(0) == 0 {
			r.mu.Unlock()
			continue
		}
		if !r.closed {
			r.pumpLocked()
		}
		r.release()
	}
}

// unlock releases mu, notifies held shares if pending drained, and services
// any wakeup that arrived meanwhile.
func (r *relay[In, Out]) unlock() {
	r.release()
	r.drain()
}

func (r *relay[In, Out]) release() {
	var held []*canhub.Barrier
	if len(r.held) > 0 && (r.closed || r.backlog() == 0) {
		held = r.held
		r.held = nil
	}
	r.mu.Unlock()
	for _, b := range held {
		b.Notify()
	}
}

// close drops pending outputs and lets every deferred caller go.
func (r *relay[In, Out]) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, p := range r.pending[r.head:] {
		p.Release()
	}
	r.pending = nil
	r.head = 0
	r.sender.Close()
	r.release()
}

// stalled returns the number of outputs not yet accepted downstream.
func (r *relay[In, Out]) stalled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	return r.backlog()
}
