/*
 * yams - Guest-visible exception taxonomy
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

// Package except holds the synchronous exception codes shared by the TLB,
// the memory bus, and the CPU interpreter. Kept as a leaf package so none
// of cp0/bus/cpu need to import one another just to talk about faults.
package except

// Code is a MIPS32 ExcCode value, or one of the two internal-only virtual
// codes produced by the TLB that are rewritten before delivery.
type Code int

const (
	None Code = -1 // no exception pending

	Interrupt           Code = 0
	TLBModification     Code = 1
	TLBLoad             Code = 2
	TLBStore            Code = 3
	AddressLoad         Code = 4
	AddressStore        Code = 5
	BusErrorInstr       Code = 6
	BusErrorData        Code = 7
	Syscall             Code = 8
	Breakpoint          Code = 9
	ReservedInstruction Code = 10
	CoprocessorUnusable Code = 11
	ArithmeticOverflow  Code = 12
	Trap                Code = 13

	// Virtual-only: produced by cp0.Translate, rewritten to TLBLoad/TLBStore
	// with vector offset 0x180 at delivery time. Never appear in Cause.ExcCode.
	tlbLoadInvalid  Code = 100
	tlbStoreInvalid Code = 101
)

// TLBLoadInvalid and TLBStoreInvalid are exported constructors so cp0
// stays the only place that knows their private sentinel values.
func TLBLoadInvalid() Code  { return tlbLoadInvalid }
func TLBStoreInvalid() Code { return tlbStoreInvalid }

// Exception is a latched synchronous fault plus whatever data the vector
// path or the guest-visible CP0 registers need to report it.
type Exception struct {
	Code    Code
	BadVAddr uint32 // for Address*/TLB* faults
	CE      uint8   // coprocessor number, for CoprocessorUnusable
	Valid   bool
}

// IsTLBInvalid reports whether c is one of the two virtual TLB codes that
// must be rewritten to TLBLoad/TLBStore with vector offset 0x180 instead of
// the refill vector.
func (c Code) IsTLBInvalid() bool {
	return c == tlbLoadInvalid || c == tlbStoreInvalid
}

// Real returns the ExcCode actually placed in Cause.ExcCode at delivery:
// TLBLoadInvalid/TLBStoreInvalid decode to TLBLoad/TLBStore.
func (c Code) Real() Code {
	switch c {
	case tlbLoadInvalid:
		return TLBLoad
	case tlbStoreInvalid:
		return TLBStore
	default:
		return c
	}
}

// RefType distinguishes a load, store, or instruction-fetch reference for
// TLB lookup and permission checking purposes.
type RefType int

const (
	RefLoad RefType = iota
	RefStore
	RefFetch
	RefProbe // width==0 permission probe: no data movement
)
