// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package canhub is the asynchronous completion and fan-out backbone of a CAN
// control-network stack: it moves frames between hardware transports,
// software queues and protocol front-ends without unbounded blocking, lost
// wakeups, or per-port copies.
//
// # Architecture
//
//   - Completion: [Notifiable] is a single-shot completion. [Empty] and [Crash] are
//     process-wide singletons. [Barrier] is a reference-counted fan-in that runs its
//     wrapped completion once every share has been released.
//   - Fan-out: [Hub] delivers one shared, read-only [Payload] to every registered
//     [Port]. A port that cannot take the data now keeps a share of the delivery
//     barrier and returns [ErrWouldBlock]; the caller retries that port once the
//     share is notified. [Sender] implements that retry obligation.
//   - Transport: [QueuePort] and [Executor] are bounded lock-free MPSC queues via
//     [code.hybscloud.com/lfq]; waits use [code.hybscloud.com/iox.Backoff].
//   - Capabilities: [Semaphore], [CriticalSection] and [Clock] are the OS contracts
//     consumed by device buffers (package devbuf).
//   - Protocols: [Endpoint] attaches to a hub and runs typed protocols built from
//     the [Send], [Recv] and [Close] effects on [code.hybscloud.com/kont], either
//     blocking ([Exec], [Run]) or stepped ([Step], [Advance]).
//
// # Error Handling
//
//   - Backpressure is [ErrWouldBlock] (the iox sentinel) and is never a loss.
//   - Accounting bugs (double notify, closing an active barrier, missing completion)
//     panic with a [*Fault]; they are not recoverable conditions.
//
// # Example
//
//	hub := canhub.NewHub[can.Frame]()
//	port := canhub.NewQueuePort[can.Frame](64)
//	_ = hub.Register(port)
//
//	s := canhub.NewSender(hub, canhub.External)
//	p := canhub.NewPayload(can.MustFrame(0x195B4, []byte{1, 2}))
//	_ = s.Send(ctx, p)
//	p.Release()
//
//	got, _ := port.Recv(ctx)
//	defer got.Release()
package canhub
