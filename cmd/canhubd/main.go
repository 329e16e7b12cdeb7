// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command canhubd is a GridConnect CAN hub: TCP clients and an optional
// USB-serial adapter exchange CAN frames in GridConnect text.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	listen := flag.String("listen", "", "TCP listen address (overrides config)")
	device := flag.String("serial", "", "serial device path (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *listen, *device)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	setupLogging(cfg.Log, *debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := newServer(cfg)
	if err := s.listen(); err != nil {
		canhub.LogError(canhub.ComponentServer, "startup failed", "err", err)
		os.Exit(1)
	}
	if err := s.run(ctx); err != nil {
		canhub.LogError(canhub.ComponentServer, "server failed", "err", err)
		os.Exit(1)
	}
	canhub.LogInfo(canhub.ComponentServer, "stopped", "hub", s.frames.Stats())
}

func loadConfig(path, listen, device string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if device != "" {
		if cfg.Serial == nil {
			cfg.Serial = &config.SerialConfig{RxSize: 1024, TxSize: 1024}
		}
		cfg.Serial.Device = device
	}
	return cfg, cfg.Validate()
}

func setupLogging(c config.LogConfig, debug bool) {
	level, _ := c.SlogLevel()
	if debug {
		level = slog.LevelDebug
	}
	canhub.SetLogLevel(level)
	if c.Format == "json" {
		canhub.SetLogFormat(canhub.LogFormatJSON)
	}
}
