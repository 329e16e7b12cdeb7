// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"testing/quick"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/can"
)

func TestEndpointNoEcho(t *testing.T) {
	hub := canhub.NewHub[int]()
	a, err := canhub.NewEndpoint(hub, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := canhub.NewEndpoint(hub, 4)
	c, _ := canhub.NewEndpoint(hub, 4)
	if a.Serial() == b.Serial() || b.Serial() == c.Serial() {
		t.Fatal("endpoint serials collide")
	}

	if err := a.TrySend(5); err != nil {
		t.Fatal(err)
	}
	if _, err := a.TryRecv(); !iox.IsWouldBlock(err) {
		t.Fatalf("sender heard itself: %v", err)
	}
	for _, ep := range []*canhub.Endpoint[int]{b, c} {
		if v, err := ep.TryRecv(); err != nil || v != 5 {
			t.Fatalf("TryRecv = %d, %v", v, err)
		}
	}

	c.Close()
	if hub.Len() != 2 || hub.Registered(c.Port()) {
		t.Fatal("Close left the port registered")
	}
	if err := c.TrySend(1); !errors.Is(err, canhub.ErrClosed) {
		t.Fatalf("TrySend after Close = %v", err)
	}
}

func TestEndpointTryCloseWaitsForDelivery(t *testing.T) {
	a, b := canhub.Pair[int](2)
	sent := 0
	for !a.Sender().Busy() {
		if err := a.TrySend(sent); err != nil {
			t.Fatal(err)
		}
		sent++
	}
	if err := a.TryClose(); !iox.IsWouldBlock(err) {
		t.Fatalf("TryClose with deferred message = %v", err)
	}
	if v, _ := b.TryRecv(); v != 0 {
		t.Fatalf("got %d", v)
	}
	if err := a.TryClose(); err != nil {
		t.Fatalf("TryClose after drain = %v", err)
	}
	for want := 1; want < sent; want++ {
		if v, err := b.TryRecv(); err != nil || v != want {
			t.Fatalf("TryRecv = %d, %v, want %d", v, err, want)
		}
	}
}

func TestRunRequestResponse(t *testing.T) {
	skipRace(t)
	client := canhub.SendThen(10,
		canhub.SendThen(20,
			canhub.RecvBind(func(sum int) kont.Eff[int] {
				return canhub.CloseDone(sum)
			}),
		),
	)
	server := canhub.RecvBind(func(a int) kont.Eff[int] {
		return canhub.RecvBind(func(b int) kont.Eff[int] {
			return canhub.SendThen(a+b, canhub.CloseDone(a+b))
		})
	})

	clientResult, serverResult := canhub.Run[int, int, int](4, client, server)
	if clientResult != 30 || serverResult != 30 {
		t.Fatalf("client %d, server %d, want 30", clientResult, serverResult)
	}
}

func TestRunFrames(t *testing.T) {
	skipRace(t)
	query := can.MustFrame(0x19170, nil)
	reply := can.MustFrame(0x19170, []byte{1, 2, 3})
	node := canhub.SendThen(query,
		canhub.RecvBind(func(f can.Frame) kont.Eff[can.Frame] {
			return canhub.CloseDone(f)
		}),
	)
	peer := canhub.RecvBind(func(f can.Frame) kont.Eff[can.Frame] {
		return canhub.SendThen(reply, canhub.CloseDone(f))
	})
	gotReply, gotQuery := canhub.Run[can.Frame, can.Frame, can.Frame](2, node, peer)
	if !reflect.DeepEqual(gotReply, reply) || !reflect.DeepEqual(gotQuery, query) {
		t.Fatalf("node got %v, peer got %v", gotReply, gotQuery)
	}
}

func TestExecOnGoroutines(t *testing.T) {
	skipRace(t)
	a, b := canhub.Pair[string](4)
	var serverResult string
	var wg sync.WaitGroup
	wg.Go(func() {
		serverResult = canhub.Exec(b, canhub.RecvBind(func(s string) kont.Eff[string] {
			return canhub.SendThen(s+"!", canhub.CloseDone(s))
		}))
	})
	clientResult := canhub.Exec(a, canhub.SendThen("ping",
		canhub.RecvBind(func(s string) kont.Eff[string] {
			return canhub.CloseDone(s)
		}),
	))
	wg.Wait()
	if clientResult != "ping!" || serverResult != "ping" {
		t.Fatalf("client %q, server %q", clientResult, serverResult)
	}
}

func TestStepAdvance(t *testing.T) {
	protocol := canhub.Reify(canhub.RecvBind(func(n int) kont.Eff[int] {
		return canhub.CloseDone(n)
	}))
	_, susp := canhub.Step[int](protocol)
	if susp == nil {
		t.Fatal("expected suspension for Recv")
	}

	epA, epB := canhub.Pair[int](4)

	// epA's queue is empty.
	_, retry, err := canhub.Advance(epA, susp)
	if !iox.IsWouldBlock(err) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
	if retry != susp {
		t.Fatal("suspension should be returned unconsumed on error")
	}

	execExpr(epB, canhub.Reify(canhub.SendThen(99, canhub.CloseDone(struct{}{}))))

	var result int
	for susp != nil {
		result, susp, err = canhub.Advance(epA, susp)
		if err != nil {
			t.Fatalf("Advance error: %v", err)
		}
	}
	if result != 99 {
		t.Fatalf("result got %d, want 99", result)
	}
}

func TestReflectRoundTrip(t *testing.T) {
	skipRace(t)
	client := canhub.Reflect(canhub.Reify(canhub.SendThen(1, canhub.CloseDone("sent"))))
	server := canhub.RecvBind(func(n int) kont.Eff[int] { return canhub.CloseDone(n) })
	a, b := canhub.Run[int, string, int](2, client, server)
	if a != "sent" || b != 1 {
		t.Fatalf("got %q, %d", a, b)
	}
}

// TestPropertyEndpointFIFO proves that for any generated sequence the
// endpoints deliver every element in order, without loss or duplication,
// even through a receive queue far smaller than the sequence.
func TestPropertyEndpointFIFO(t *testing.T) {
	skipRace(t)
	property := func(payload []int) bool {
		// Sender: a length prefix, then every element.
		sender := canhub.SendThen(len(payload), canhub.Loop(payload, func(s []int) kont.Eff[kont.Either[[]int, struct{}]] {
			if len(s) == 0 {
				return canhub.CloseDone(kont.Right[[]int, struct{}](struct{}{}))
			}
			return canhub.SendThen(s[0], kont.Pure(kont.Left[[]int, struct{}](s[1:])))
		}))

		receiver := canhub.RecvBind(func(n int) kont.Eff[[]int] {
			return canhub.Loop(make([]int, 0, n), func(acc []int) kont.Eff[kont.Either[[]int, []int]] {
				if len(acc) == n {
					return canhub.CloseDone(kont.Right[[]int, []int](acc))
				}
				return canhub.RecvBind(func(v int) kont.Eff[kont.Either[[]int, []int]] {
					return kont.Pure(kont.Left[[]int, []int](append(acc, v)))
				})
			})
		})

		_, received := canhub.Run[int, struct{}, []int](2, sender, receiver)
		if len(payload) == 0 && len(received) == 0 {
			return true
		}
		return reflect.DeepEqual(payload, received)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}
