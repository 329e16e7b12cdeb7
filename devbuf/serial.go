// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package devbuf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/canhub"
	"code.hybscloud.com/iox"
)

// SerialOption configures a Serial.
type SerialOption func(*serialOptions)

type serialOptions struct {
	rxSize   int
	txSize   int
	readSize int
	log      *slog.Logger
}

// WithRxSize sets the receive buffer capacity.
func WithRxSize(n int) SerialOption {
	return func(o *serialOptions) { o.rxSize = n }
}

// WithTxSize sets the transmit buffer capacity.
func WithTxSize(n int) SerialOption {
	return func(o *serialOptions) { o.txSize = n }
}

// WithReadSize sets the largest single device read.
func WithReadSize(n int) SerialOption {
	return func(o *serialOptions) { o.readSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SerialOption {
	return func(o *serialOptions) { o.log = l }
}

// SerialStats is a snapshot of Serial counters.
type SerialStats struct {
	RxBytes uint64
	TxBytes uint64
	Yields  uint64 // receive signals that woke the pump
}

// Serial attaches a byte device to a hub the way a UART driver does: a
// receive loop plays the interrupt handler, filling a Buffer without ever
// blocking on the device mutex, and a Pump forwards it into the hub; a
// TxPort on the same hub fills a transmit Buffer that a second loop drains
// to the device. Bytes received are not echoed back to the device.
type Serial struct {
	hub *canhub.Hub[[]byte]
	dev io.ReadWriteCloser

	rx     *Buffer[byte]
	tx     *Buffer[byte]
	txPort *TxPort
	pump   *Pump

	readSize int
	log      *slog.Logger

	rxBytes atomix.Uint64
	txBytes atomix.Uint64
	yields  atomix.Uint64
}

// NewSerial returns a bridge between dev and hub. Run starts it.
func NewSerial(hub *canhub.Hub[[]byte], dev io.ReadWriteCloser, opts ...SerialOption) *Serial {
	o := serialOptions{rxSize: 1024, txSize: 1024, readSize: 256}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = canhub.Logger(canhub.ComponentDevice)
	}
	s := &Serial{
		hub:      hub,
		dev:      dev,
		rx:       New[byte](o.rxSize, new(sync.Mutex)),
		tx:       New[byte](o.txSize, new(sync.Mutex)),
		readSize: o.readSize,
		log:      o.log,
	}
	s.txPort = NewTxPort(s.tx)
	s.pump = NewPump(s.rx, hub, canhub.Source(s.txPort), o.readSize)
	return s
}

// Port returns the transmit port registered on the hub while Run is active.
func (s *Serial) Port() *TxPort {
	return s.txPort
}

// Stats returns the byte counters.
func (s *Serial) Stats() SerialStats {
	return SerialStats{
		RxBytes: s.rxBytes.Load(),
		TxBytes: s.txBytes.Load(),
		Yields:  s.yields.Load(),
	}
}

// Run moves bytes until ctx is done or the device fails. The device is
// closed on return. End of input and cancellation are not errors.
func (s *Serial) Run(ctx context.Context) error {
	if err := s.hub.Register(s.txPort); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 3)
	wg.Go(func() { errc <- s.receive(ctx) })
	wg.Go(func() { errc <- s.pump.Run(ctx) })
	wg.Go(func() { errc <- s.transmit(ctx) })

	err := <-errc
	cancel()
	s.dev.Close()
	wg.Wait()

	_ = s.hub.Unregister(s.txPort)
	s.txPort.Close()
	if quiet(err) {
		err = nil
	}
	s.log.Debug("serial device detached", "rx", s.rxBytes.Load(), "tx", s.txBytes.Load(), "err", err)
	return err
}

// receive is the interrupt side: it only uses Put and SignalConditionFromISR.
// It never reads more than fits, so no byte is lost.
func (s *Serial) receive(ctx context.Context) error {
	buf := make([]byte, s.readSize)
	var bo iox.Backoff
	for {
		space := s.rx.Space()
		if space == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			bo.Wait()
			continue
		}
		bo.Reset()
		n, err := s.dev.Read(buf[:min(space, len(buf))])
		if n > 0 {
			s.rx.Put(buf[:n])
			s.rxBytes.Add(uint64(n))
			if s.rx.SignalConditionFromISR() {
				s.yields.Add(1)
				runtime.Gosched()
			}
		}
		if err != nil {
			return err
		}
	}
}

func (s *Serial) transmit(ctx context.Context) error {
	var done atomix.Uint32
	stop := context.AfterFunc(ctx, func() {
		done.Store(1)
		s.tx.SignalCondition()
	})
	defer stop()
	ready := func(n int) bool { return n > 0 || done.Load() != 0 }

	tmp := make([]byte, s.tx.Cap())
	s.tx.Lock()
	for {
		s.tx.BlockUntil(ready)
		if done.Load() != 0 {
			s.tx.Unlock()
			return ctx.Err()
		}
		n := s.tx.Get(tmp)
		s.tx.Unlock()
		s.txPort.Drained()

		if _, err := s.dev.Write(tmp[:n]); err != nil {
			return err
		}
		s.txBytes.Add(uint64(n))
		s.tx.Lock()
	}
}

func quiet(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, context.Canceled)
}
