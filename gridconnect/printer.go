// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gridconnect

import (
	"encoding/hex"
	"io"
	"log/slog"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/can"
)

// PrintFormat selects the Printer line format.
type PrintFormat int

// Print formats.
const (
	PrintGridConnect PrintFormat = iota // one GridConnect frame per line
	PrintJSON                           // one JSON object per line
)

// printRecord is the JSON line layout.
type printRecord struct {
	Time     int64  `json:"t"`
	ID       uint32 `json:"id"`
	Extended bool   `json:"ext"`
	RTR      bool   `json:"rtr,omitempty"`
	Data     string `json:"data"`
}

// Printer is a frame hub port that writes every frame to a writer, one line
// per frame. It always accepts; write errors are logged once and counted.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	format PrintFormat
	clock  canhub.Clock
	buf    []byte
	errs   uint64
	log    *slog.Logger
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, format PrintFormat) *Printer {
	return &Printer{
		w:      w,
		format: format,
		clock:  canhub.SystemClock(),
		log:    canhub.Logger(canhub.ComponentAdapter),
	}
}

// Send implements canhub.Port.
func (p *Printer) Send(data *canhub.Payload[can.Frame], _ *canhub.Barrier, _ uint) error {
	f := data.Value()
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.format {
	case PrintJSON:
		b, err := sonnet.Marshal(printRecord{
			Time:     p.clock.Monotonic(),
			ID:       f.ID,
			Extended: f.Extended,
			RTR:      f.RTR,
			Data:     hex.EncodeToString(f.Data[:f.Len]),
		})
		if err != nil {
			p.fail(err)
			return nil
		}
		p.buf = append(p.buf[:0], b...)
	default:
		p.buf = AppendFrame(p.buf[:0], f, false)
	}
	p.buf = append(p.buf, '\n')
	if _, err := p.w.Write(p.buf); err != nil {
		p.fail(err)
	}
	return nil
}

func (p *Printer) fail(err error) {
	if p.errs == 0 {
		p.log.Warn("printer write failed", "err", err)
	}
	p.errs++
}

// Errors returns the number of failed writes.
func (p *Printer) Errors() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs
}
