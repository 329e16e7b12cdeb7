// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import (
	"code.hybscloud.com/kont"
)

// Send is the effect operation publishing a value of type T on the endpoint.
// Perform(Send[T]{Value: v}) completes once the hub has taken the message.
type Send[T any] struct {
	kont.Phantom[struct{}]
	Value T
}

// DispatchEndpoint handles Send. Non-blocking: ErrWouldBlock while the
// previous message is still deferred by some port.
func (s Send[T]) DispatchEndpoint(ctx *endpointContext) (kont.Resumed, error) {
	if err := ctx.send(s.Value); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// Recv is the effect operation receiving the next value of type T.
type Recv[T any] struct {
	kont.Phantom[T]
}

// DispatchEndpoint handles Recv. Non-blocking: ErrWouldBlock when the
// endpoint's queue is empty.
func (Recv[T]) DispatchEndpoint(ctx *endpointContext) (kont.Resumed, error) {
	v, err := ctx.recv()
	if err != nil {
		return nil, err
	}
	return v.(T), nil
}

// Close is the effect operation detaching the endpoint from its hub.
// Non-blocking: ErrWouldBlock while the last message is still deferred.
type Close struct {
	kont.Phantom[struct{}]
}

// DispatchEndpoint handles Close.
func (Close) DispatchEndpoint(ctx *endpointContext) (kont.Resumed, error) {
	if err := ctx.close(); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// SendThen publishes v and continues with next.
func SendThen[T, B any](v T, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Send[T]{Value: v}), next)
}

// RecvBind receives a value and continues with f applied to it.
func RecvBind[T, B any](f func(T) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Recv[T]{}), f)
}

// CloseDone closes the endpoint and returns a.
func CloseDone[A any](a A) kont.Eff[A] {
	return kont.Then(kont.Perform(Close{}), kont.Pure(a))
}

// Loop repeats step from initial. step returns Left(next state) to go on
// or Right(result) to stop.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	return kont.Bind(step(initial), func(e kont.Either[S, A]) kont.Eff[A] {
		if next, ok := e.GetLeft(); ok {
			return Loop(next, step)
		}
		result, _ := e.GetRight()
		return kont.Pure(result)
	})
}
