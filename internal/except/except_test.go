/*
 * yams - Guest-visible exception taxonomy test set.
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

package except

import "testing"

func TestTLBLoadInvalidDecodesToTLBLoad(t *testing.T) {
	c := TLBLoadInvalid()
	if !c.IsTLBInvalid() {
		t.Error("TLBLoadInvalid() should report IsTLBInvalid() true")
	}
	if got := c.Real(); got != TLBLoad {
		t.Errorf("Real() = %v, want TLBLoad", got)
	}
}

func TestTLBStoreInvalidDecodesToTLBStore(t *testing.T) {
	c := TLBStoreInvalid()
	if !c.IsTLBInvalid() {
		t.Error("TLBStoreInvalid() should report IsTLBInvalid() true")
	}
	if got := c.Real(); got != TLBStore {
		t.Errorf("Real() = %v, want TLBStore", got)
	}
}

func TestOrdinaryCodesAreNotTLBInvalid(t *testing.T) {
	for _, c := range []Code{None, Interrupt, TLBLoad, TLBStore, Syscall, Breakpoint, ArithmeticOverflow} {
		if c.IsTLBInvalid() {
			t.Errorf("%v.IsTLBInvalid() = true, want false", c)
		}
		if got := c.Real(); got != c {
			t.Errorf("%v.Real() = %v, want itself unchanged", c, got)
		}
	}
}

func TestExceptionZeroValueIsInvalid(t *testing.T) {
	var e Exception
	if e.Valid {
		t.Error("zero-value Exception should not be Valid")
	}
}
