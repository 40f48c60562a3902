/*
 * yams - Endianness and bitfield helpers
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package bits holds the small, shared building blocks every other layer of
// the simulator depends on: guest<->host endian conversion and bitfield
// extraction/insertion. Nothing here knows about CPUs, memory, or devices.
package bits

import "encoding/binary"

// Order selects the guest's configured endianness. Every memory and device
// port access routes its byte<->word conversion through it, per design note
// in SPEC_FULL.md §9 ("isolate all guest<->host byte-swap conversions
// behind two functions").
type Order bool

const (
	Little Order = false
	Big    Order = true
)

// ByteOrder returns the encoding/binary.ByteOrder matching o.
func (o Order) ByteOrder() binary.ByteOrder {
	if o == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Uint16 decodes a guest halfword from b[0:2].
func (o Order) Uint16(b []byte) uint16 { return o.ByteOrder().Uint16(b) }

// Uint32 decodes a guest word from b[0:4].
func (o Order) Uint32(b []byte) uint32 { return o.ByteOrder().Uint32(b) }

// PutUint16 encodes a guest halfword into b[0:2].
func (o Order) PutUint16(b []byte, v uint16) { o.ByteOrder().PutUint16(b, v) }

// PutUint32 encodes a guest word into b[0:4].
func (o Order) PutUint32(b []byte, v uint32) { o.ByteOrder().PutUint32(b, v) }

// Lane returns the host bit-shift used to pick byte b (0..3) of a 32-bit
// word for the port-width quirk: byte b of word w sits at host-shift
// 8*(big ? 3-b%4 : b%4).
func (o Order) Lane(b int) uint {
	b &= 3
	if o == Big {
		return uint(8 * (3 - b))
	}
	return uint(8 * b)
}

// SignExtend16 sign-extends a 16-bit immediate to 32 bits.
func SignExtend16(v uint16) uint32 {
	return uint32(int32(int16(v)))
}

// SignExtend8 sign-extends an 8-bit immediate to 32 bits.
func SignExtend8(v uint8) uint32 {
	return uint32(int32(int8(v)))
}

// Field extracts bits [hi:lo] (inclusive, lo <= hi <= 31) from v.
func Field(v uint32, hi, lo uint) uint32 {
	width := hi - lo + 1
	mask := uint32(1)<<width - 1
	return (v >> lo) & mask
}

// SetField returns v with bits [hi:lo] replaced by the low bits of val.
func SetField(v uint32, hi, lo uint, val uint32) uint32 {
	width := hi - lo + 1
	mask := uint32(1)<<width - 1
	return (v &^ (mask << lo)) | ((val & mask) << lo)
}
