// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/kont"

	"code.hybscloud.com/canhub"
)

// execExpr drives a protocol to completion on ep via Step+Advance loop.
// Retries on iox.ErrWouldBlock (hub still retrying, or queue empty).
// Used by stepping tests to exercise the non-blocking path.
func execExpr[T, R any](ep *canhub.Endpoint[T], protocol kont.Expr[R]) R {
	result, susp := canhub.Step[R](protocol)
	for susp != nil {
		var err error
		result, susp, err = canhub.Advance(ep, susp)
		if err != nil {
			continue
		}
	}
	return result
}

// expectFault runs fn and fails unless it panics with a *canhub.Fault.
func expectFault(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		var f *canhub.Fault
		if !ok || !errors.As(err, &f) {
			t.Fatalf("recovered %v, want *canhub.Fault", r)
		}
	}()
	fn()
}

// deliver fans v out on h from src and returns the ports that deferred.
func deliver[T any](h *canhub.Hub[T], src canhub.Source, v T, priority uint) []canhub.Port[T] {
	p := canhub.NewPayload(v)
	defer p.Release()
	b := canhub.NewBarrier(canhub.Empty())
	deferred := h.AppendSend(nil, src, p, b, priority)
	b.Notify()
	return deferred
}

// recvValue takes the next value from port, failing if none is queued.
func recvValue[T any](t *testing.T, port *canhub.QueuePort[T]) T {
	t.Helper()
	p, err := port.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv: %v", err)
	}
	v := p.Value()
	p.Release()
	return v
}

// expectEmpty fails if port has a queued payload.
func expectEmpty[T any](t *testing.T, port *canhub.QueuePort[T]) {
	t.Helper()
	if p, err := port.TryRecv(); err == nil {
		v := p.Value()
		p.Release()
		t.Fatalf("unexpected payload %v", v)
	}
}
