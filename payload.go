// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

import "code.hybscloud.com/atomix"

// Payload is an immutable message shared by every port of a hub.
// Holders take references with Ref and drop them with Release; the value is
// handed to the release hook once the last reference is gone. No holder may
// mutate the value, including the backing array of a slice payload.
type Payload[T any] struct {
	refs    atomix.Uint32
	value   T
	release func(T)
}

// NewPayload wraps v with one reference owned by the caller.
func NewPayload[T any](v T) *Payload[T] {
	p := &Payload[T]{value: v}
	p.refs.Store(1)
	return p
}

// NewPayloadFunc is like NewPayload, and calls release with the value after
// the last reference is dropped. Use it to return buffers to a pool.
func NewPayloadFunc[T any](v T, release func(T)) *Payload[T] {
	p := NewPayload(v)
	p.release = release
	return p
}

// Value returns the shared value. The caller must hold a reference.
func (p *Payload[T]) Value() T {
	return p.value
}

// Ref takes another reference and returns p.
func (p *Payload[T]) Ref() *Payload[T] {
	if p.refs.Add(1) == 1 {
		fatal("payload referenced after release")
	}
	return p
}

// Release drops one reference.
func (p *Payload[T]) Release() {
	for {
		n := p.refs.Load()
		if n == 0 {
			fatal("payload released too many times")
		}
		if p.refs.CompareAndSwap(n, n-1) {
			if n == 1 && p.release != nil {
				p.release(p.value)
			}
			return
		}
	}
}

// Refs returns the current number of references.
func (p *Payload[T]) Refs() int {
	return int(p.refs.Load())
}
