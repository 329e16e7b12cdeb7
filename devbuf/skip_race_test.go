// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package devbuf_test

import "testing"

// skipRace skips tests that drive lfq MPSC queues across goroutines.
// The race detector cannot see the queue's cross-variable memory
// ordering and reports false positives inside Enqueue and Dequeue.
func skipRace(tb testing.TB) {
	tb.Helper()
	tb.Skip("skip: MPSC queue uses cross-variable memory ordering")
}
