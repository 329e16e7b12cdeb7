// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/canhub/internal/config"
)

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestServerRelaysBetweenClients(t *testing.T) {
	skipRace(t)
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Printer = "gc"
	cfg.Shutdown = 1
	s := newServer(cfg)
	var printed lockedBuffer
	s.out = &printed
	if err := s.listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.run(ctx) }()

	addr := s.ln.Addr().String()
	a, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	// Printer plus one adapter per client.
	deadline := time.Now().Add(2 * time.Second)
	for s.frames.Len() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("frame hub has %d ports", s.frames.Len())
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := a.Write([]byte(":X195B4N0102;")); err != nil {
		t.Fatal(err)
	}
	want := ":X000195B4N0102;"
	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(want))
	if _, err := io.ReadFull(b, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("client b read %q, want %q", got, want)
	}

	// No echo to the sender.
	_ = a.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if n, _ := a.Read(make([]byte, 32)); n != 0 {
		t.Fatal("sender received its own frame")
	}

	for !strings.Contains(printed.String(), want+"\n") {
		if time.Now().After(deadline) {
			t.Fatalf("printer output %q", printed.String())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig("", "127.0.0.1:1", "/dev/null")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:1" || cfg.Serial == nil || cfg.Serial.Device != "/dev/null" {
		t.Fatalf("cfg = %+v", cfg)
	}
}
