// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package devbuf_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/devbuf"
)

func TestTxPortDefersUntilDrained(t *testing.T) {
	buf := devbuf.New[byte](4, new(sync.Mutex))
	tx := devbuf.NewTxPort(buf)
	hub := canhub.NewHub[[]byte]()
	_ = hub.Register(tx)
	s := canhub.NewSender(hub, canhub.External)

	first := canhub.NewPayload([]byte("abc"))
	defer first.Release()
	if err := s.TrySend(first); err != nil {
		t.Fatal(err)
	}
	second := canhub.NewPayload([]byte("de"))
	defer second.Release()
	if err := s.TrySend(second); err != nil {
		t.Fatal(err)
	}
	// "de" does not fit whole next to "abc"; nothing of it was written.
	if !s.Busy() || buf.Len() != 3 {
		t.Fatalf("busy=%v len=%d", s.Busy(), buf.Len())
	}
	if err := s.Poll(); !errors.Is(err, canhub.ErrWouldBlock) {
		t.Fatalf("Poll before drain = %v", err)
	}

	out := make([]byte, 8)
	n := buf.Get(out)
	tx.Drained()
	if err := s.Poll(); err != nil {
		t.Fatalf("Poll after drain = %v", err)
	}
	n += buf.Get(out[n:])
	if got := string(out[:n]); got != "abcde" {
		t.Fatalf("buffer = %q", got)
	}
}

func TestTxPortOversizeDropped(t *testing.T) {
	buf := devbuf.New[byte](2, nil)
	hub := canhub.NewHub[[]byte]()
	_ = hub.Register(devbuf.NewTxPort(buf))
	p := canhub.NewPayload([]byte("toolong"))
	defer p.Release()
	hub.Send(canhub.External, p, canhub.NewBarrier(canhub.Empty()), canhub.PriorityNormal)
	if st := hub.Stats(); st.Drops != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestTxPortCloseReleasesSenders(t *testing.T) {
	buf := devbuf.New[byte](1, nil)
	tx := devbuf.NewTxPort(buf)
	hub := canhub.NewHub[[]byte]()
	_ = hub.Register(tx)
	s := canhub.NewSender(hub, canhub.External)
	for _, b := range []string{"a", "b"} {
		p := canhub.NewPayload([]byte(b))
		if err := s.TrySend(p); err != nil {
			t.Fatal(err)
		}
		p.Release()
	}
	_ = hub.Unregister(tx)
	tx.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush = %v", err)
	}
}

// TestPumpRetriesLastChunk feeds three single-byte chunks into a port that
// holds two and then adds nothing more to the buffer.
func TestPumpRetriesLastChunk(t *testing.T) {
	skipRace(t)
	buf := devbuf.New[byte](16, nil)
	hub := canhub.NewHub[[]byte]()
	sink := canhub.NewQueuePort[[]byte](2)
	_ = hub.Register(sink)
	pump := devbuf.NewPump(buf, hub, canhub.External, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- pump.Run(ctx) }()

	buf.Put([]byte("abc"))
	buf.SignalCondition()
	var got []byte
	for len(got) < 3 {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		p, err := sink.Recv(rctx)
		rcancel()
		if err != nil {
			t.Fatalf("Recv: %v (have %q, hub %+v)", err, got, hub.Stats())
		}
		got = append(got, p.Value()...)
		p.Release()
	}
	if string(got) != "abc" {
		t.Fatalf("received %q", got)
	}
	if st := hub.Stats(); st.Drops != 0 || st.Deliveries != 3 {
		t.Fatalf("stats = %+v", st)
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func readFull(t *testing.T, r net.Conn, n int) string {
	t.Helper()
	_ = r.SetReadDeadline(time.Now().Add(2 * time.Second))
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSerialEndToEnd(t *testing.T) {
	skipRace(t)
	hub := canhub.NewHub[[]byte]()
	sink := canhub.NewQueuePort[[]byte](16)
	_ = hub.Register(sink)

	device, client := net.Pipe()
	defer client.Close()
	serial := devbuf.NewSerial(hub, device, devbuf.WithRxSize(16), devbuf.WithTxSize(16))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serial.Run(ctx) }()

	// Device to hub.
	in := ":X195B4N0102;"
	go func() { _, _ = client.Write([]byte(in)) }()
	var got bytes.Buffer
	for got.Len() < len(in) {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		p, err := sink.Recv(rctx)
		rcancel()
		if err != nil {
			t.Fatalf("Recv: %v (have %q)", err, got.String())
		}
		got.Write(p.Value())
		p.Release()
	}
	if got.String() != in {
		t.Fatalf("hub received %q", got.String())
	}

	// Hub to device, not echoed from the device's own input.
	for !hub.Registered(serial.Port()) {
		time.Sleep(time.Millisecond)
	}
	out := canhub.NewPayload([]byte(":S123N;"))
	s := canhub.NewSender(hub, canhub.Source(sink))
	sctx, scancel := context.WithTimeout(ctx, 2*time.Second)
	if err := s.Send(sctx, out); err != nil {
		t.Fatal(err)
	}
	scancel()
	out.Release()
	if r := readFull(t, client, len(":S123N;")); r != ":S123N;" {
		t.Fatalf("device received %q", r)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if st := serial.Stats(); st.RxBytes != uint64(len(in)) || st.TxBytes != uint64(len(":S123N;")) {
		t.Fatalf("stats = %+v", st)
	}
	if hub.Registered(serial.Port()) {
		t.Fatal("tx port still registered")
	}
}
