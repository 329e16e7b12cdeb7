// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package can defines the binary CAN frame exchanged across hub ports.
package can

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Identifier limits.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF

	// MaxLen is the payload limit of a classical CAN frame.
	MaxLen = 8
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Frame is a classical CAN 2.0A/2.0B frame.
type Frame struct {
	ID       uint32 // 11-bit standard or 29-bit extended
	Extended bool
	RTR      bool // remote transmission request
	Len      uint8
	Data     [MaxLen]byte
}

// NewFrame builds a validated frame.
func NewFrame(id uint32, extended bool, data []byte) (Frame, error) {
	var f Frame
	if len(data) > MaxLen {
		return f, ErrInvalidLen
	}
	f.ID = id
	f.Extended = extended
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// MustFrame is NewFrame for literals; an id above MaxStdID selects the
// extended format. It panics on invalid input.
func MustFrame(id uint32, data []byte) Frame {
	f, err := NewFrame(id, id > MaxStdID, data)
	if err != nil {
		panic(err)
	}
	return f
}

// Validate reports whether the identifier and length fit the frame format.
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return ErrInvalidLen
	}
	if f.Extended && f.ID > MaxExtID || !f.Extended && f.ID > MaxStdID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the data bytes in use. The slice aliases f.
func (f *Frame) Payload() []byte {
	return f.Data[:f.Len]
}

// String formats the frame as "000195B4 [2] 01 02", or "123 [1] 0A" for a
// standard identifier.
func (f Frame) String() string {
	id := fmt.Sprintf("%03X", f.ID)
	if f.Extended {
		id = fmt.Sprintf("%08X", f.ID)
	}
	if f.RTR {
		return fmt.Sprintf("%s [%d] remote", id, f.Len)
	}
	return fmt.Sprintf("%s [%d] % X", id, f.Len, f.Data[:f.Len])
}

// SocketCAN can_id flags.
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
)

// BinaryLen is the size of the SocketCAN struct can_frame layout.
const BinaryLen = 16

// MarshalBinary encodes f in the 16-byte Linux SocketCAN layout:
// little-endian can_id with EFF/RTR flags, length, three pad bytes, data.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f.AppendBinary(make([]byte, 0, BinaryLen))
}

// AppendBinary appends the SocketCAN layout of f to b.
func (f Frame) AppendBinary(b []byte) ([]byte, error) {
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.RTR {
		id |= rtrFlag
	}
	b = binary.LittleEndian.AppendUint32(b, id)
	b = append(b, f.Len, 0, 0, 0)
	return append(b, f.Data[:]...), nil
}

// UnmarshalBinary decodes the SocketCAN layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < BinaryLen {
		return fmt.Errorf("can: need %d bytes, got %d", BinaryLen, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&effFlag != 0
	f.RTR = id&rtrFlag != 0
	if f.Extended {
		f.ID = id & MaxExtID
	} else {
		f.ID = id & MaxStdID
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}
