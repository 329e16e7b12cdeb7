// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/can"
	"code.hybscloud.com/canhub/capture"
	"code.hybscloud.com/canhub/devbuf"
	"code.hybscloud.com/canhub/gridconnect"
	"code.hybscloud.com/canhub/internal/config"
)

// server is the GridConnect hub daemon: one CAN frame hub shared by every
// TCP client, an optional serial adapter, printer and capture file.
type server struct {
	cfg    config.Config
	frames *canhub.Hub[can.Frame]
	exec   *canhub.Executor
	log    *slog.Logger
	out    io.Writer // printer output

	ln    net.Listener
	conns sync.WaitGroup
}

func newServer(cfg config.Config) *server {
	return &server{
		cfg:    cfg,
		frames: canhub.NewHub[can.Frame](),
		exec:   canhub.NewExecutor(cfg.Hub.ExecutorCapacity),
		log:    canhub.Logger(canhub.ComponentServer),
		out:    os.Stdout,
	}
}

// listen opens the TCP listener, if one is configured.
func (s *server) listen() error {
	if s.cfg.Listen == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	s.log.Info("listening", "addr", ln.Addr().String())
	return nil
}

func (s *server) adapterOptions() []gridconnect.Option {
	return []gridconnect.Option{
		gridconnect.WithDoubleBytes(s.cfg.Hub.DoubleBytes),
		gridconnect.WithExecutor(s.exec),
		gridconnect.WithQueueCapacity(s.cfg.Hub.QueueCapacity),
		gridconnect.WithReadSize(s.cfg.Hub.ReadSize),
	}
}

// run serves until ctx is done or a component fails, then waits up to the
// shutdown timeout for connections to finish.
func (s *server) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bg sync.WaitGroup
	bg.Go(func() { _ = s.exec.Run(ctx) })
	defer func() {
		cancel()
		s.exec.Close()
		bg.Wait()
	}()

	if err := s.attachOutputs(ctx, &bg); err != nil {
		return err
	}

	errc := make(chan error, 2)
	if s.cfg.Serial != nil {
		dev, err := os.OpenFile(s.cfg.Serial.Device, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("open serial device: %w", err)
		}
		bg.Go(func() { errc <- s.serveSerial(ctx, dev) })
	}
	if s.ln != nil {
		bg.Go(func() { errc <- s.accept(ctx) })
	}
	if s.cfg.Replay != "" {
		bg.Go(func() {
			n, err := replayFile(ctx, s.frames, s.cfg.Replay, s.cfg.Hub.QueueCapacity)
			if err != nil && ctx.Err() == nil {
				s.log.Error("replay failed", "file", s.cfg.Replay, "frames", n, "err", err)
				return
			}
			s.log.Info("replay finished", "file", s.cfg.Replay, "frames", n)
		})
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancel()
	if s.ln != nil {
		s.ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Duration(s.cfg.Shutdown) * time.Second):
		s.log.Warn("connections still open after shutdown timeout")
	}
	return err
}

// attachOutputs registers the printer and capture ports.
func (s *server) attachOutputs(ctx context.Context, bg *sync.WaitGroup) error {
	switch s.cfg.Printer {
	case "gc":
		_ = s.frames.Register(gridconnect.NewPrinter(s.out, gridconnect.PrintGridConnect))
	case "json":
		_ = s.frames.Register(gridconnect.NewPrinter(s.out, gridconnect.PrintJSON))
	}
	if s.cfg.Capture == "" {
		return nil
	}
	f, err := os.Create(s.cfg.Capture)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	rec := capture.NewRecorder(f, nil)
	_ = s.frames.Register(rec)
	bg.Go(func() {
		<-ctx.Done()
		_ = s.frames.Unregister(rec)
		if err := f.Close(); err != nil {
			s.log.Warn("closing capture file", "err", err)
		}
		s.log.Info("capture closed", "records", rec.Count())
	})
	return nil
}

func (s *server) serveSerial(ctx context.Context, dev io.ReadWriteCloser) error {
	text := canhub.NewHub[[]byte]()
	adapter, err := gridconnect.NewAdapter(text, s.frames, s.adapterOptions()...)
	if err != nil {
		dev.Close()
		return err
	}
	defer adapter.Close()
	serial := devbuf.NewSerial(text, dev,
		devbuf.WithRxSize(s.cfg.Serial.RxSize),
		devbuf.WithTxSize(s.cfg.Serial.TxSize),
	)
	s.log.Info("serial device attached", "device", s.cfg.Serial.Device)
	return serial.Run(ctx)
}

func (s *server) accept(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		id := uuid.New()
		log := s.log.With("conn", id.String(), "remote", conn.RemoteAddr().String())
		log.Info("client connected")
		opts := append(s.adapterOptions(), gridconnect.WithLogger(log))
		s.conns.Go(func() {
			err := gridconnect.ServeConn(ctx, s.frames, conn, opts...)
			log.Info("client disconnected", "err", err)
		})
	}
}
