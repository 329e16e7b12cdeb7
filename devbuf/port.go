// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package devbuf

import (
	"context"
	"errors"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/canhub"
	"code.hybscloud.com/iox"
)

// ErrOversize is returned by TxPort for a payload larger than the buffer.
var ErrOversize = errors.New("devbuf: payload exceeds buffer capacity")

// TxPort is a hub port that copies each payload into a byte Buffer, whole or
// not at all. When the payload does not fit it keeps a share of the
// delivery barrier and returns ErrWouldBlock; the consumer calls Drained
// after each Get to let deferred senders retry.
type TxPort struct {
	buf    *Buffer[byte]
	held   []*canhub.Barrier // guarded by the device mutex
	closed bool              // guarded by the device mutex
}

// NewTxPort returns a port writing into buf.
func NewTxPort(buf *Buffer[byte]) *TxPort {
	return &TxPort{buf: buf}
}

// Send implements canhub.Port.
func (t *TxPort) Send(data *canhub.Payload[[]byte], done *canhub.Barrier, _ uint) error {
	b := data.Value()
	if len(b) > t.buf.Cap() {
		return ErrOversize
	}
	t.buf.Lock()
	if t.closed {
		t.buf.Unlock()
		return canhub.ErrClosed
	}
	if t.buf.Space() < len(b) {
		t.held = append(t.held, done.NewChild())
		t.buf.Unlock()
		return canhub.ErrWouldBlock
	}
	t.buf.Put(b)
	t.buf.SignalCondition()
	t.buf.Unlock()
	return nil
}

// Drained notifies deferred senders once the buffer has room. It takes the
// device mutex, so the caller must not hold it.
func (t *TxPort) Drained() {
	t.buf.Lock()
	var held []*canhub.Barrier
	if len(t.held) > 0 && t.buf.Space() > 0 {
		held = t.held
		t.held = nil
	}
	t.buf.Unlock()
	for _, b := range held {
		b.Notify()
	}
}

// Close rejects further payloads and releases every deferred sender.
func (t *TxPort) Close() {
	t.buf.Lock()
	t.closed = true
	held := t.held
	t.held = nil
	t.buf.Unlock()
	for _, b := range held {
		b.Notify()
	}
}

// Pump forwards the contents of a byte Buffer into a hub from thread
// context. The filling side only needs Put and SignalConditionFromISR.
//
// While a chunk is deferred by some port the pump leaves further bytes in
// the buffer. The Sender's wake raises retry and signals the buffer, so the
// deferred chunk is retried as soon as the port has room, even if no more
// bytes arrive.
type Pump struct {
	buf    *Buffer[byte]
	sender *canhub.Sender[[]byte]
	chunk  int

	retry   atomix.Uint32 // the deferred chunk can be retried
	blocked atomix.Uint32 // a chunk is deferred; new bytes wait
}

// NewPump returns a pump moving up to chunk bytes per message from buf into
// hub on behalf of src.
func NewPump(buf *Buffer[byte], hub *canhub.Hub[[]byte], src canhub.Source, chunk int) *Pump {
	if chunk <= 0 {
		chunk = buf.Cap()
	}
	p := &Pump{buf: buf, chunk: chunk}
	p.sender = canhub.NewSender(hub, src, canhub.WithWake(canhub.NotifyFunc(p.wake)))
	return p
}

// Sender returns the pump's sender.
func (p *Pump) Sender() *canhub.Sender[[]byte] {
	return p.sender
}

func (p *Pump) wake() {
	p.retry.Swap(1)
	p.buf.SignalCondition()
}

// Run blocks on the buffer until data arrives or a deferred chunk can be
// retried, and sends it on, until ctx is done.
func (p *Pump) Run(ctx context.Context) error {
	var done atomix.Uint32
	stop := context.AfterFunc(ctx, func() {
		done.Swap(1)
		p.buf.SignalCondition()
	})
	defer stop()
	ready := func(n int) bool {
		return done.LoadAcquire() != 0 ||
			p.retry.LoadAcquire() != 0 ||
			(n > 0 && p.blocked.LoadAcquire() == 0)
	}

	tmp := make([]byte, p.chunk)
	for {
		p.buf.Lock()
		p.buf.BlockUntil(ready)
		p.buf.Unlock()
		if done.LoadAcquire() != 0 {
			return ctx.Err()
		}

		p.retry.Swap(0)
		if err := p.sender.Poll(); err != nil {
			if !iox.IsWouldBlock(err) {
				return err
			}
			p.blocked.Swap(1)
			continue
		}
		p.blocked.Swap(0)

		n := p.buf.Get(tmp)
		if n == 0 {
			continue
		}
		msg := canhub.NewPayload(append([]byte(nil), tmp[:n]...))
		err := p.sender.Send(ctx, msg)
		msg.Release()
		if err != nil {
			return err
		}
		if p.sender.Busy() {
			p.blocked.Swap(1)
		}
	}
}
