// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrWouldBlock reports backpressure: the operation could not make
	// progress now and should be retried after the peer moves. It is the
	// iox sentinel, so iox.IsWouldBlock works on every canhub error.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrPortExists is returned when registering a port twice.
	ErrPortExists = errors.New("canhub: port already registered")

	// ErrPortNotFound is returned when unregistering an unknown port.
	ErrPortNotFound = errors.New("canhub: port not registered")

	// ErrClosed is returned by operations on a closed executor, endpoint or port.
	ErrClosed = errors.New("canhub: closed")

	// ErrTimeout is returned by Semaphore.TimedWait.
	ErrTimeout = errors.New("canhub: timed out")
)
