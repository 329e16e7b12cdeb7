// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gridconnect

import "code.hybscloud.com/canhub/can"

const hexDigits = "0123456789ABCDEF"

// MaxFrameLen is the longest rendered frame, without doubling:
// ":X" + 8 id digits + "N" + 16 data digits + ";".
const MaxFrameLen = 2 + 8 + 1 + 2*can.MaxLen + 1

// AppendFrame appends the GridConnect text of f to dst. Extended identifiers
// render as eight digits, standard ones as three. Remote frames render 'R'
// with no data. With doubleBytes every output byte is written twice, which
// some USB adapters need to survive their own byte stuffing.
func AppendFrame(dst []byte, f can.Frame, doubleBytes bool) []byte {
	w := writer{dst: dst, double: doubleBytes}
	w.put(':')
	if f.Extended {
		w.put('X')
		w.hex(f.ID, 8)
	} else {
		w.put('S')
		w.hex(f.ID, 3)
	}
	if f.RTR {
		w.put('R')
	} else {
		w.put('N')
		for _, b := range f.Data[:f.Len] {
			w.hex(uint32(b), 2)
		}
	}
	w.put(';')
	return w.dst
}

// Format returns the GridConnect text of f.
func Format(f can.Frame) string {
	var buf [MaxFrameLen]byte
	return string(AppendFrame(buf[:0], f, false))
}

type writer struct {
	dst    []byte
	double bool
}

func (w *writer) put(c byte) {
	w.dst = append(w.dst, c)
	if w.double {
		w.dst = append(w.dst, c)
	}
}

func (w *writer) hex(v uint32, digits int) {
	for shift := 4 * (digits - 1); shift >= 0; shift -= 4 {
		w.put(hexDigits[v>>uint(shift)&0xF])
	}
}
