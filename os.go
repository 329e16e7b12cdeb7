// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Semaphore is the counting semaphore capability of the OS layer.
type Semaphore interface {
	// Post increments the count, waking one waiter.
	Post()
	// PostFromISR is Post for interrupt context: it never blocks and
	// reports whether a waiting thread was woken, so the caller can request
	// a reschedule on interrupt return.
	PostFromISR() (woken bool)
	// Wait blocks until the count is positive, then decrements it.
	Wait()
	// TimedWait is Wait bounded by d; it returns ErrTimeout on expiry.
	TimedWait(d time.Duration) error
}

// chanSemaphore is a counting semaphore on a buffered channel. The channel
// capacity bounds the count; posts beyond it are coalesced.
type chanSemaphore struct {
	ch      chan struct{}
	waiters atomix.Uint32
}

// semaphoreLimit bounds the count of semaphores created by NewSemaphore.
const semaphoreLimit = 1 << 16

// NewSemaphore returns a channel-backed semaphore with the given initial count.
func NewSemaphore(initial int) Semaphore {
	s := &chanSemaphore{ch: make(chan struct{}, semaphoreLimit)}
	for range initial {
		s.ch <- struct{}{}
	}
	return s
}

func (s *chanSemaphore) Post() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *chanSemaphore) PostFromISR() bool {
	s.Post()
	return s.waiters.Load() > 0
}

func (s *chanSemaphore) Wait() {
	s.waiters.Add(1)
	<-s.ch
	s.waiters.Add(^uint32(0))
}

func (s *chanSemaphore) TimedWait(d time.Duration) error {
	select {
	case <-s.ch:
		return nil
	default:
	}
	s.waiters.Add(1)
	defer s.waiters.Add(^uint32(0))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ch:
		return nil
	case <-t.C:
		return ErrTimeout
	}
}

// CriticalSection is the interrupt-masking section of the OS layer. It is
// short, never sleeps, and is usable from both thread and interrupt context.
// It must never be held while acquiring a thread-only lock.
type CriticalSection interface {
	Enter()
	Exit()
}

// spinSection masks "interrupts" with a spin lock.
type spinSection struct {
	l spin.Lock
}

// NewCriticalSection returns a spinning critical section.
func NewCriticalSection() CriticalSection {
	return &spinSection{}
}

func (s *spinSection) Enter() { s.l.Lock() }

func (s *spinSection) Exit() { s.l.Unlock() }

// Clock is the monotonic clock capability.
type Clock interface {
	// Monotonic returns nanoseconds since an arbitrary fixed origin.
	Monotonic() int64
}

type systemClock struct {
	origin time.Time
}

func (c systemClock) Monotonic() int64 {
	return int64(time.Since(c.origin))
}

var defaultClock Clock = systemClock{origin: time.Now()}

// SystemClock returns the process monotonic clock.
func SystemClock() Clock { return defaultClock }
