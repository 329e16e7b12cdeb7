// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/canhub"
)

func TestSemaphoreCounts(t *testing.T) {
	sem := canhub.NewSemaphore(1)
	sem.Wait()
	if err := sem.TimedWait(10 * time.Millisecond); !errors.Is(err, canhub.ErrTimeout) {
		t.Fatalf("TimedWait on zero count = %v", err)
	}
	sem.Post()
	sem.Post()
	if err := sem.TimedWait(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := sem.TimedWait(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if sem.PostFromISR() {
		t.Fatal("PostFromISR reported a woken waiter with none waiting")
	}
}

func TestSemaphoreWakesWaiter(t *testing.T) {
	sem := canhub.NewSemaphore(0)
	done := make(chan struct{})
	go func() {
		sem.Wait()
		close(done)
	}()
	sem.Post()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken")
	}
}

// TestCriticalSectionExcludes also runs under the race detector, which
// must see Exit publish the writes made inside the section.
func TestCriticalSectionExcludes(t *testing.T) {
	cs := canhub.NewCriticalSection()
	counter := 0
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 1000 {
				cs.Enter()
				counter++
				cs.Exit()
			}
		})
	}
	wg.Wait()
	if counter != 8000 {
		t.Fatalf("counter = %d, want 8000", counter)
	}
}

func TestSystemClockMonotonic(t *testing.T) {
	c := canhub.SystemClock()
	a := c.Monotonic()
	time.Sleep(time.Millisecond)
	if b := c.Monotonic(); b <= a {
		t.Fatalf("clock went from %d to %d", a, b)
	}
}
