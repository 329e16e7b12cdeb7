// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the canhubd configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the canhubd configuration.
type Config struct {
	Listen   string        `yaml:"listen"`
	Hub      HubConfig     `yaml:"hub"`
	Serial   *SerialConfig `yaml:"serial,omitempty"`
	Log      LogConfig     `yaml:"log"`
	Capture  string        `yaml:"capture,omitempty"`  // record file, empty to disable
	Replay   string        `yaml:"replay,omitempty"`   // capture file sent once serving starts
	Printer  string        `yaml:"printer,omitempty"`  // "", "gc" or "json"
	Shutdown int           `yaml:"shutdown_timeout_s"` // grace period in seconds
}

// HubConfig sizes the hub machinery.
type HubConfig struct {
	DoubleBytes      bool `yaml:"double_bytes"`
	QueueCapacity    int  `yaml:"queue_capacity"`    // per-connection outbound queue
	ExecutorCapacity int  `yaml:"executor_capacity"` // retry callbacks
	ReadSize         int  `yaml:"read_size"`
}

// SerialConfig attaches a GridConnect USB-serial adapter.
type SerialConfig struct {
	Device string `yaml:"device"`
	RxSize int    `yaml:"rx_size"`
	TxSize int    `yaml:"tx_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen: ":12021",
		Hub: HubConfig{
			QueueCapacity:    64,
			ExecutorCapacity: 256,
			ReadSize:         1024,
		},
		Log:      LogConfig{Level: "warn", Format: "text"},
		Shutdown: 5,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Serial != nil {
		if cfg.Serial.RxSize == 0 {
			cfg.Serial.RxSize = 1024
		}
		if cfg.Serial.TxSize == 0 {
			cfg.Serial.TxSize = 1024
		}
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" && c.Serial == nil {
		errs = append(errs, errors.New("nothing to serve: set listen or serial"))
	}
	if c.Hub.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("hub.queue_capacity %d must be positive", c.Hub.QueueCapacity))
	}
	if c.Hub.ExecutorCapacity < 1 {
		errs = append(errs, fmt.Errorf("hub.executor_capacity %d must be positive", c.Hub.ExecutorCapacity))
	}
	if c.Hub.ReadSize < 1 {
		errs = append(errs, fmt.Errorf("hub.read_size %d must be positive", c.Hub.ReadSize))
	}
	if s := c.Serial; s != nil {
		if s.Device == "" {
			errs = append(errs, errors.New("serial.device is required"))
		}
		for _, b := range []struct {
			name string
			n    int
		}{{"serial.rx_size", s.RxSize}, {"serial.tx_size", s.TxSize}} {
			if b.n < 1 || b.n > 65535 {
				errs = append(errs, fmt.Errorf("%s %d out of range 1..65535", b.name, b.n))
			}
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	switch c.Printer {
	case "", "gc", "json":
	default:
		errs = append(errs, fmt.Errorf("printer %q must be gc or json", c.Printer))
	}
	if c.Shutdown < 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout_s %d must not be negative", c.Shutdown))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return level, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}
