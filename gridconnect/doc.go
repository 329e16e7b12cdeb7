// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gridconnect translates between the GridConnect ASCII encoding of
// CAN frames and binary frames.
//
// A GridConnect frame is ':' then 'X' with up to eight hex identifier digits
// (extended) or 'S' with up to three (standard), then 'N' for a data frame
// or 'R' for a remote request, up to eight hex byte pairs, and ';'. Bytes
// outside frames are ignored, a ':' always starts a new frame, and malformed
// frames are dropped.
//
// [Parser] and [AppendFrame] are the codec. [Adapter] wires the codec between
// a text hub and a frame hub with full backpressure, [ServeConn] attaches a
// byte stream, and [Printer] logs the traffic of a frame hub.
package gridconnect
