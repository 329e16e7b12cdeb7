// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package capture records the frames of a hub to a byte stream and replays
// them.
//
// The stream is a sequence of records, each a 4-byte big-endian length
// followed by a msgpack-encoded [Record]. A record carries its frame in the
// 16-byte SocketCAN layout of [can.Frame.MarshalBinary].
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/can"
)

// MaxRecordLen bounds the encoded size of one record.
const MaxRecordLen = 1 << 10

// ErrCorrupt is returned by Reader for a stream that is not a record stream.
var ErrCorrupt = errors.New("capture: corrupt record")

// Record is one captured frame.
type Record struct {
	Time int64  `msgpack:"t"` // canhub.Clock nanoseconds
	Raw  []byte `msgpack:"f"` // SocketCAN can_frame
}

// Frame converts r back to a validated frame.
func (r Record) Frame() (can.Frame, error) {
	var f can.Frame
	err := f.UnmarshalBinary(r.Raw)
	return f, err
}

// Recorder is a frame hub port appending every frame to a writer. It always
// accepts. After the first write error it stops writing and reports the
// error from Err.
type Recorder struct {
	mu    sync.Mutex
	w     io.Writer
	clock canhub.Clock
	buf   []byte
	count uint64
	err   error
	log   *slog.Logger
}

// NewRecorder returns a Recorder writing to w with timestamps from clock.
// A nil clock uses canhub.SystemClock.
func NewRecorder(w io.Writer, clock canhub.Clock) *Recorder {
	if clock == nil {
		clock = canhub.SystemClock()
	}
	return &Recorder{
		w:     w,
		clock: clock,
		log:   canhub.Logger(canhub.ComponentCapture),
	}
}

// Send implements canhub.Port.
func (r *Recorder) Send(data *canhub.Payload[can.Frame], _ *canhub.Barrier, _ uint) error {
	f := data.Value()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil
	}
	if err := r.record(f); err != nil {
		r.err = err
		r.log.Error("capture stopped", "err", err, "records", r.count)
	}
	return nil
}

// Record appends f directly, outside any hub.
func (r *Recorder) Record(f can.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.err = r.record(f)
	return r.err
}

func (r *Recorder) record(f can.Frame) error {
	raw, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	b, err := msgpack.Marshal(Record{Time: r.clock.Monotonic(), Raw: raw})
	if err != nil {
		return fmt.Errorf("capture: encode: %w", err)
	}
	r.buf = binary.BigEndian.AppendUint32(r.buf[:0], uint32(len(b)))
	r.buf = append(r.buf, b...)
	if _, err := r.w.Write(r.buf); err != nil {
		return fmt.Errorf("capture: write: %w", err)
	}
	r.count++
	return nil
}

// Count returns the number of records written.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the error that stopped the recorder, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Reader decodes a record stream.
type Reader struct {
	r   io.Reader
	hdr [4]byte
	buf []byte
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next record. It returns io.EOF at a clean end of stream
// and io.ErrUnexpectedEOF inside a truncated record.
func (rd *Reader) Next() (Record, error) {
	var rec Record
	if _, err := io.ReadFull(rd.r, rd.hdr[:]); err != nil {
		return rec, err
	}
	n := binary.BigEndian.Uint32(rd.hdr[:])
	if n == 0 || n > MaxRecordLen {
		return rec, fmt.Errorf("%w: length %d", ErrCorrupt, n)
	}
	if cap(rd.buf) < int(n) {
		rd.buf = make([]byte, n)
	}
	rd.buf = rd.buf[:n]
	if _, err := io.ReadFull(rd.r, rd.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return rec, err
	}
	if err := msgpack.Unmarshal(rd.buf, &rec); err != nil {
		return rec, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return rec, nil
}

// Replay sends every record of r into a hub through s, in order, and
// returns the number of frames sent. Invalid records end the replay with an
// error.
func Replay(ctx context.Context, r *Reader, s *canhub.Sender[can.Frame]) (int, error) {
	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, s.Flush(ctx)
		}
		if err != nil {
			return n, err
		}
		f, err := rec.Frame()
		if err != nil {
			return n, fmt.Errorf("capture: record %d: %w", n, err)
		}
		p := canhub.NewPayload(f)
		err = s.Send(ctx, p)
		p.Release()
		if err != nil {
			return n, err
		}
		n++
	}
}
