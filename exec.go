// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// endpointHandler implements kont.Handler by dispatching on an endpoint and
// backing off past ErrWouldBlock.
type endpointHandler struct {
	ctx *endpointContext
}

func (h endpointHandler) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	eop, ok := op.(endpointDispatcher)
	if !ok {
		panic("canhub: unhandled effect in endpoint handler")
	}
	var bo iox.Backoff
	for {
		v, err := eop.DispatchEndpoint(h.ctx)
		if err == nil {
			return v, true
		}
		bo.Wait()
	}
}

// Exec runs a Cont-world protocol on ep, waiting with adaptive backoff
// whenever an operation would block. It spawns no goroutines.
func Exec[T, R any](ep *Endpoint[T], protocol kont.Eff[R]) R {
	return kont.Handle(protocol, endpointHandler{ctx: &ep.ctx})
}

// ExecExpr is Exec for Expr-world protocols.
func ExecExpr[T, R any](ep *Endpoint[T], protocol kont.Expr[R]) R {
	return kont.HandleExpr(protocol, endpointHandler{ctx: &ep.ctx})
}

// Reify converts a Cont-world protocol to Expr-world for stepping.
func Reify[A any](m kont.Eff[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts an Expr-world protocol back to Cont-world.
func Reflect[A any](m kont.Expr[A]) kont.Eff[A] {
	return kont.Reflect(m)
}

// Step evaluates protocol up to its first endpoint operation.
// It returns (result, nil) on completion or (zero, suspension) if pending.
func Step[R any](protocol kont.Expr[R]) (R, *kont.Suspension[R]) {
	return kont.StepExpr(protocol)
}

// Advance dispatches the suspended operation on ep without blocking.
// On ErrWouldBlock the suspension is returned unconsumed for a later retry,
// which makes Advance suitable for an event loop polling many endpoints.
func Advance[T, R any](ep *Endpoint[T], susp *kont.Suspension[R]) (R, *kont.Suspension[R], error) {
	eop, ok := susp.Op().(endpointDispatcher)
	if !ok {
		panic("canhub: unhandled effect in Advance")
	}
	v, err := eop.DispatchEndpoint(&ep.ctx)
	if err != nil {
		var zero R
		return zero, susp, err
	}
	result, next := susp.Resume(v)
	return result, next, nil
}

// Run attaches two endpoints to a private hub and runs one protocol on each,
// interleaved on the calling goroutine.
func Run[T, A, B any](capacity int, a kont.Eff[A], b kont.Eff[B]) (A, B) {
	return RunExpr[T](capacity, Reify(a), Reify(b))
}

// RunExpr is Run for Expr-world protocols. When neither side can make
// progress it backs off with iox.Backoff.
func RunExpr[T, A, B any](capacity int, a kont.Expr[A], b kont.Expr[B]) (A, B) {
	epA, epB := Pair[T](capacity)
	resultA, suspA := Step(a)
	resultB, suspB := Step(b)
	var bo iox.Backoff
	for suspA != nil || suspB != nil {
		progress := false
		if suspA != nil {
			var err error
			if resultA, suspA, err = Advance(epA, suspA); err == nil {
				progress = true
			}
		}
		if suspB != nil {
			var err error
			if resultB, suspB, err = Advance(epB, suspB); err == nil {
				progress = true
			}
		}
		if progress {
			bo.Reset()
		} else {
			bo.Wait()
		}
	}
	epA.Close()
	epB.Close()
	return resultA, resultB
}
