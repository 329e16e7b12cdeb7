// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import "code.hybscloud.com/atomix"

// Barrier is a reference-counted fan-in completion. It defers calling the
// wrapped completion until every outstanding share has been released.
//
// Reset opens a batch with one implicit share held by the creator.
// Each NewChild adds a share and returns the barrier itself, so handing
// "this barrier" to N sub-operations allocates nothing. The wrapped
// completion runs exactly once, on the goroutine that releases the last
// share, after the count has been published as zero. It may therefore
// Reset the same barrier for the next batch.
//
// The zero value is an idle barrier.
type Barrier struct {
	count atomix.Uint32
	done  Notifiable
}

// NewBarrier returns a barrier reset with done and one creator share.
func NewBarrier(done Notifiable) *Barrier {
	b := &Barrier{}
	return b.Reset(done)
}

// Reset installs done and sets the share count to one.
// Only legal on an idle barrier; done must not be nil.
func (b *Barrier) Reset(done Notifiable) *Barrier {
	if done == nil {
		fatal("barrier reset with nil completion")
	}
	if b.count.Load() != 0 {
		fatal("barrier reset while active")
	}
	b.done = done
	if !b.count.CompareAndSwap(0, 1) {
		fatal("barrier reset while active")
	}
	return b
}

// NewChild takes one more share and returns the barrier.
// The caller owning the share must call Notify exactly once.
func (b *Barrier) NewChild() *Barrier {
	if b.count.Add(1) == 1 {
		// A share on an idle barrier has no completion to run.
		b.count.Add(^uint32(0))
		fatal("barrier child taken while idle")
	}
	return b
}

// Notify releases one share. Releasing the last share runs the wrapped
// completion. Notifying an idle barrier is fatal.
func (b *Barrier) Notify() {
	for {
		c := b.count.Load()
		if c == 0 {
			fatal("barrier received too many notifications")
		}
		// While we hold the last share nobody can Reset, so done is stable.
		var done Notifiable
		if c == 1 {
			done = b.done
		}
		if b.count.CompareAndSwap(c, c-1) {
			if done != nil {
				done.Notify()
			}
			return
		}
	}
}

// Idle reports whether no shares are outstanding.
func (b *Barrier) Idle() bool {
	return b.count.Load() == 0
}

// Pending returns the number of outstanding shares.
func (b *Barrier) Pending() int {
	return int(b.count.Load())
}

// Close checks that the barrier can be discarded. An active barrier must
// never be abandoned; doing so is fatal.
func (b *Barrier) Close() {
	if b.count.Load() != 0 {
		fatal("closing barrier with outstanding shares")
	}
}
