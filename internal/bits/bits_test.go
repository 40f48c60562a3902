/*
 * yams - Endianness and bitfield helper test set.
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

package bits

import "testing"

func TestUint32RoundTrip(t *testing.T) {
	for _, o := range []Order{Little, Big} {
		buf := make([]byte, 4)
		o.PutUint32(buf, 0x01020304)
		if got := o.Uint32(buf); got != 0x01020304 {
			t.Errorf("order %v: Uint32 round trip = %#x, want 0x01020304", o, got)
		}
	}
}

func TestLittleBigDisagreeOnByteOrder(t *testing.T) {
	buf := make([]byte, 4)
	Big.PutUint32(buf, 0x01020304)
	if buf[0] != 0x01 || buf[3] != 0x04 {
		t.Fatalf("big endian bytes = %v, want [01 02 03 04]", buf)
	}
	Little.PutUint32(buf, 0x01020304)
	if buf[0] != 0x04 || buf[3] != 0x01 {
		t.Fatalf("little endian bytes = %v, want [04 03 02 01]", buf)
	}
}

func TestLane(t *testing.T) {
	cases := []struct {
		o    Order
		b    int
		want uint
	}{
		{Little, 0, 0}, {Little, 1, 8}, {Little, 2, 16}, {Little, 3, 24},
		{Big, 0, 24}, {Big, 1, 16}, {Big, 2, 8}, {Big, 3, 0},
	}
	for _, c := range cases {
		if got := c.o.Lane(c.b); got != c.want {
			t.Errorf("Lane(%v,%d) = %d, want %d", c.o, c.b, got, c.want)
		}
	}
}

func TestSignExtend16(t *testing.T) {
	if got := SignExtend16(0xffff); got != 0xffffffff {
		t.Errorf("SignExtend16(0xffff) = %#x, want 0xffffffff", got)
	}
	if got := SignExtend16(0x7fff); got != 0x00007fff {
		t.Errorf("SignExtend16(0x7fff) = %#x, want 0x7fff", got)
	}
}

func TestSignExtend8(t *testing.T) {
	if got := SignExtend8(0x80); got != 0xffffff80 {
		t.Errorf("SignExtend8(0x80) = %#x, want 0xffffff80", got)
	}
}

func TestFieldAndSetField(t *testing.T) {
	v := uint32(0xdeadbeef)
	if got := Field(v, 15, 0); got != 0xbeef {
		t.Errorf("Field(v,15,0) = %#x, want 0xbeef", got)
	}
	if got := Field(v, 31, 16); got != 0xdead {
		t.Errorf("Field(v,31,16) = %#x, want 0xdead", got)
	}
	updated := SetField(v, 15, 0, 0x1234)
	if updated != 0xdead1234 {
		t.Errorf("SetField(v,15,0,0x1234) = %#x, want 0xdead1234", updated)
	}
}

func TestSetFieldMasksValue(t *testing.T) {
	got := SetField(0, 3, 0, 0xff)
	if got != 0xf {
		t.Errorf("SetField masking = %#x, want 0xf", got)
	}
}
