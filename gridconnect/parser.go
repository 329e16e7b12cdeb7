// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gridconnect

import (
	"errors"

	"code.hybscloud.com/canhub/can"
)

// ErrMalformed is returned by ParseFrame for text that is not exactly one
// well-formed GridConnect frame.
var ErrMalformed = errors.New("gridconnect: malformed frame")

type parseState uint8

const (
	stateIdle    parseState = iota // awaiting ':'
	stateType                      // awaiting 'X' or 'S'
	stateID                        // reading identifier digits
	stateData                      // reading payload digit pairs
	stateDiscard                   // malformed, skipping to ';'
)

// ParserStats counts parser outcomes.
type ParserStats struct {
	Frames    uint64 // frames emitted
	Malformed uint64 // frames dropped as malformed or truncated
	Skipped   uint64 // bytes outside any frame
}

// Parser is the byte-oriented GridConnect decoder. It keeps partial-frame
// state between Feed calls, so input may be split at any byte. Malformed
// frames are dropped silently and decoding resumes at the next ':'.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	state    parseState
	extended bool
	rtr      bool
	digits   int
	id       uint32
	half     bool
	nibble   byte
	frame    can.Frame
	stats    ParserStats
}

// Feed decodes chunk and calls emit for every complete frame. It returns the
// number of frames emitted.
func (p *Parser) Feed(chunk []byte, emit func(can.Frame)) int {
	n := 0
	for _, c := range chunk {
		if c == ':' {
			if p.state != stateIdle && p.state != stateDiscard {
				p.stats.Malformed++
			}
			p.begin()
			continue
		}
		switch p.state {
		case stateIdle:
			p.stats.Skipped++
		case stateType:
			switch c {
			case 'X', 'x':
				p.extended = true
				p.state = stateID
			case 'S', 's':
				p.extended = false
				p.state = stateID
			default:
				p.malformed(c)
			}
		case stateID:
			p.readID(c)
		case stateData:
			if c == ';' {
				if p.finish() {
					emit(p.frame)
					n++
				}
				continue
			}
			p.readData(c)
		case stateDiscard:
			if c == ';' {
				p.state = stateIdle
			}
		}
	}
	return n
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state = stateIdle
}

// Stats returns the parser counters.
func (p *Parser) Stats() ParserStats {
	return p.stats
}

func (p *Parser) begin() {
	p.state = stateType
	p.rtr = false
	p.digits = 0
	p.id = 0
	p.half = false
	p.frame = can.Frame{}
}

func (p *Parser) maxDigits() int {
	if p.extended {
		return 8
	}
	return 3
}

func (p *Parser) readID(c byte) {
	if v, ok := unhex(c); ok {
		p.digits++
		if p.digits > p.maxDigits() {
			p.malformed(c)
			return
		}
		p.id = p.id<<4 | uint32(v)
		return
	}
	switch c {
	case 'N', 'n':
	case 'R', 'r':
		p.rtr = true
	default:
		p.malformed(c)
		return
	}
	if p.digits == 0 {
		p.malformed(c)
		return
	}
	p.state = stateData
}

func (p *Parser) readData(c byte) {
	v, ok := unhex(c)
	if !ok {
		p.malformed(c)
		return
	}
	if !p.half {
		p.nibble = v
		p.half = true
		return
	}
	p.half = false
	if p.frame.Len == can.MaxLen {
		p.malformed(c)
		return
	}
	p.frame.Data[p.frame.Len] = p.nibble<<4 | v
	p.frame.Len++
}

// finish validates the frame at ';'.
func (p *Parser) finish() bool {
	p.state = stateIdle
	if p.half {
		p.stats.Malformed++
		return false
	}
	p.frame.ID = p.id
	p.frame.Extended = p.extended
	p.frame.RTR = p.rtr
	if p.frame.Validate() != nil {
		p.stats.Malformed++
		return false
	}
	p.stats.Frames++
	return true
}

// malformed drops the current frame. A ';' ends it at once.
func (p *Parser) malformed(c byte) {
	p.stats.Malformed++
	if c == ';' {
		p.state = stateIdle
		return
	}
	p.state = stateDiscard
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// ParseFrame decodes exactly one frame from s.
func ParseFrame(s string) (can.Frame, error) {
	var p Parser
	var f can.Frame
	if p.Feed([]byte(s), func(got can.Frame) { f = got }) != 1 || p.state != stateIdle {
		return can.Frame{}, ErrMalformed
	}
	return f, nil
}
