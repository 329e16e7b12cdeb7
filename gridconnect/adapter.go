// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gridconnect

import (
	"errors"
	"log/slog"
	"sync"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/can"
)

// Adapter bridges a hub of GridConnect text chunks and a hub of binary CAN
// frames.
//
// Chunks sent into the text hub are parsed, and every complete frame is sent
// into the frame hub. Frames sent into the frame hub are rendered, and each
// rendering is sent into the text hub as one chunk. Frames the adapter
// produced are not offered back to the adapter itself, so a single text hub
// carries both directions without echo.
//
// Neither direction drops on backpressure: a direction whose output is
// blocked defers its input through the hub's barrier protocol.
type Adapter struct {
	gcRead  *canhub.Hub[[]byte]
	gcWrite *canhub.Hub[[]byte]
	frames  *canhub.Hub[can.Frame]

	parse  *relay[[]byte, can.Frame]
	render *relay[can.Frame, []byte]
	parser Parser // guarded by parse.mu

	double bool
	log    *slog.Logger

	closeOnce sync.Once
}

// NewAdapter connects the text hub gc and the frame hub frames in both
// directions.
func NewAdapter(gc *canhub.Hub[[]byte], frames *canhub.Hub[can.Frame], opts ...Option) (*Adapter, error) {
	return NewSplitAdapter(gc, gc, frames, opts...)
}

// NewSplitAdapter is NewAdapter with separate hubs for incoming text
// (gcRead) and outgoing text (gcWrite).
func NewSplitAdapter(gcRead, gcWrite *canhub.Hub[[]byte], frames *canhub.Hub[can.Frame], opts ...Option) (*Adapter, error) {
	o := buildOptions(opts)
	a := &Adapter{
		gcRead:  gcRead,
		gcWrite: gcWrite,
		frames:  frames,
		parse:   &relay[[]byte, can.Frame]{},
		render:  &relay[can.Frame, []byte]{},
		double:  o.doubleBytes,
		log:     o.log,
	}
	a.parse.translate = a.decode
	a.render.translate = a.encode

	// Each direction speaks into its output hub as the other direction's
	// port, which suppresses the echo.
	a.parse.sender = canhub.NewSender(frames, canhub.Source(a.render), canhub.WithWake(waker(o.exec, a.parse.wake)))
	a.render.sender = canhub.NewSender(gcWrite, canhub.Source(a.parse), canhub.WithWake(waker(o.exec, a.render.wake)))

	if err := gcRead.Register(a.parse); err != nil {
		return nil, err
	}
	if err := frames.Register(a.render); err != nil {
		_ = gcRead.Unregister(a.parse)
		return nil, err
	}
	a.log.Debug("adapter attached", "double_bytes", a.double, "split", gcRead != gcWrite)
	return a, nil
}

func waker(exec *canhub.Executor, fn func()) canhub.Notifiable {
	if exec != nil {
		return exec.Notifier(fn)
	}
	return canhub.NotifyFunc(fn)
}

// decode parses one text chunk. Runs under parse.mu.
func (a *Adapter) decode(data *canhub.Payload[[]byte]) {
	before := a.parser.Stats().Malformed
	a.parser.Feed(data.Value(), a.emitFrame)
	if n := a.parser.Stats().Malformed - before; n > 0 {
		a.log.Debug("dropped malformed frames", "count", n)
	}
}

func (a *Adapter) emitFrame(f can.Frame) {
	a.parse.push(canhub.NewPayload(f))
}

// encode renders one frame. Runs under render.mu.
func (a *Adapter) encode(data *canhub.Payload[can.Frame]) {
	f := data.Value()
	if err := f.Validate(); err != nil {
		a.log.Warn("dropped invalid frame", "frame", f.String(), "err", err)
		return
	}
	size := MaxFrameLen
	if a.double {
		size *= 2
	}
	a.render.push(canhub.NewPayload(AppendFrame(make([]byte, 0, size), f, a.double)))
}

// AdapterStats is a snapshot of adapter counters.
type AdapterStats struct {
	Parser        ParserStats
	PendingFrames int // parsed frames waiting for the frame hub
	PendingText   int // rendered chunks waiting for the text hub
}

// Stats returns the adapter counters.
func (a *Adapter) Stats() AdapterStats {
	a.parse.mu.Lock()
	ps := a.parser.Stats()
	a.parse.mu.Unlock()
	return AdapterStats{
		Parser:        ps,
		PendingFrames: a.parse.stalled(),
		PendingText:   a.render.stalled(),
	}
}

// Close detaches the adapter from both hubs, drops queued outputs and
// releases every deferred caller. A partially received frame is discarded.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = errors.Join(a.gcRead.Unregister(a.parse), a.frames.Unregister(a.render))
		a.parse.close()
		a.render.close()
		a.parse.mu.Lock()
		a.parser.Reset()
		a.parse.mu.Unlock()
		a.log.Debug("adapter detached")
	})
	return err
}
