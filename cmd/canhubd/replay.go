// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"

	"code.hybscloud.com/canhub"
	"code.hybscloud.com/canhub/can"
	"code.hybscloud.com/canhub/capture"
)

type replayResult struct {
	frames int
	err    error
}

// replayProtocol sends every record of r on the endpoint, then closes it.
// sent tracks the frames the hub has taken so far. Frames other ports send
// to the endpoint meanwhile are discarded.
func replayProtocol(ep *canhub.Endpoint[can.Frame], r *capture.Reader, sent *int) kont.Eff[replayResult] {
	return canhub.Loop(0, func(n int) kont.Eff[kont.Either[int, replayResult]] {
		*sent = n
		for {
			if _, err := ep.TryRecv(); err != nil {
				break
			}
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return canhub.CloseDone(kont.Right[int](replayResult{frames: n}))
		}
		if err == nil {
			var f can.Frame
			if f, err = rec.Frame(); err == nil {
				return canhub.SendThen(f, kont.Pure(kont.Left[int, replayResult](n+1)))
			}
			err = fmt.Errorf("record %d: %w", n, err)
		}
		return kont.Pure(kont.Right[int](replayResult{frames: n, err: err}))
	})
}

// replayFile feeds a capture file into hub through a private endpoint and
// returns the number of frames sent. It stops early when ctx is done.
func replayFile(ctx context.Context, hub *canhub.Hub[can.Frame], path string, capacity int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()
	ep, err := canhub.NewEndpoint(hub, capacity)
	if err != nil {
		return 0, err
	}
	defer ep.Close()

	sent := 0
	res, susp := canhub.Step(canhub.Reify(replayProtocol(ep, capture.NewReader(f), &sent)))
	var bo iox.Backoff
	for susp != nil {
		if err := ctx.Err(); err != nil {
			susp.Discard()
			return sent, err
		}
		res, susp, err = canhub.Advance(ep, susp)
		switch {
		case err == nil:
			bo.Reset()
		case errors.Is(err, canhub.ErrWouldBlock):
			bo.Wait()
		default:
			susp.Discard()
			return sent, err
		}
	}
	return res.frames, res.err
}
