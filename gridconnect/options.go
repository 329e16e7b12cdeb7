// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gridconnect

import (
	"log/slog"

	"code.hybscloud.com/canhub"
)

// Option configures an Adapter or a served connection.
type Option func(*options)

type options struct {
	doubleBytes   bool
	exec          *canhub.Executor
	log           *slog.Logger
	queueCapacity int
	readSize      int
}

func defaultOptions() options {
	return options{
		queueCapacity: 64,
		readSize:      1024,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = canhub.Logger(canhub.ComponentAdapter)
	}
	return o
}

// WithDoubleBytes doubles every rendered byte.
func WithDoubleBytes(on bool) Option {
	return func(o *options) { o.doubleBytes = on }
}

// WithExecutor runs retry wakeups on exec instead of on the goroutine that
// freed the room.
func WithExecutor(exec *canhub.Executor) Option {
	return func(o *options) { o.exec = exec }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithQueueCapacity sets the outbound queue size of a served connection.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueCapacity = n
		}
	}
}

// WithReadSize sets the read chunk size of a served connection.
func WithReadSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}
