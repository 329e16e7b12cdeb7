// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gridconnect

import (
	"context"
	"errors"
	"io"
	"net"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/can"
)

// ServeConn attaches a GridConnect byte stream, such as a TCP client or a
// USB-serial adapter, to the frame hub until the stream fails, the peer
// closes it, or ctx is done. conn is closed on return.
//
// Each connection gets a private text hub with its own Adapter, so frames a
// client sends reach every other client but are not echoed to itself.
// Outbound text is queued per connection; a slow reader backpressures the
// frame hub instead of losing frames.
func ServeConn(ctx context.Context, frames *canhub.Hub[can.Frame], conn io.ReadWriteCloser, opts ...Option) error {
	o := buildOptions(opts)
	text := canhub.NewHub[[]byte]()
	adapter, err := NewAdapter(text, frames, opts...)
	if err != nil {
		conn.Close()
		return err
	}
	out := canhub.NewQueuePort[[]byte](o.queueCapacity)
	if err := text.Register(out); err != nil {
		adapter.Close()
		conn.Close()
		return err
	}
	// A chunk the adapter deferred is retried when it frees up, not when
	// the client happens to send more.
	var in *canhub.Sender[[]byte]
	in = canhub.NewSender(text, canhub.Source(out), canhub.WithWake(waker(o.exec, func() { _ = in.Poll() })))

	ctx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 2)
	go func() { errc <- writeLoop(ctx, out, conn) }()
	go func() { errc <- readLoop(ctx, in, conn, o.readSize) }()

	err = <-errc
	cancel()
	conn.Close()
	<-errc

	_ = text.Unregister(out)
	out.Close()
	in.Close()
	adapter.Close()
	if closedErr(err) {
		err = nil
	}
	o.log.Debug("connection finished", "err", err)
	return err
}

func readLoop(ctx context.Context, in *canhub.Sender[[]byte], r io.Reader, size int) error {
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			// Payloads are shared read-only; each chunk gets its own copy.
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p := canhub.NewPayload(chunk)
			serr := in.Send(ctx, p)
			p.Release()
			if serr != nil {
				return serr
			}
		}
		if err != nil {
			return err
		}
	}
}

func writeLoop(ctx context.Context, out *canhub.QueuePort[[]byte], w io.Writer) error {
	for {
		p, err := out.Recv(ctx)
		if err != nil {
			return err
		}
		_, err = w.Write(p.Value())
		p.Release()
		if err != nil {
			return err
		}
	}
}

func closedErr(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, canhub.ErrClosed)
}
