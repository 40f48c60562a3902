/*
 * yams - Coprocessor-0 test set.
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

package cp0

import (
	"testing"

	"github.com/yams-go/yams/internal/except"
)

func TestNewStartupState(t *testing.T) {
	c := New(2)
	if !c.BEV() {
		t.Error("BEV should be set at reset")
	}
	if !c.ERL() {
		t.Error("ERL should be set at reset")
	}
	if c.CPUID() != 2 {
		t.Errorf("CPUID() = %d, want 2", c.CPUID())
	}
}

func TestKernelModeAtReset(t *testing.T) {
	c := New(0)
	if !c.KernelMode() {
		t.Error("KernelMode() at reset should be true (ERL set)")
	}
}

func TestStatusWriteMask(t *testing.T) {
	c := New(0)
	c.MTC0(RegStatus, 0xFFFFFFFF)
	if c.Status() != statusWriteMask {
		t.Errorf("Status() after all-ones write = %#x, want %#x", c.Status(), statusWriteMask)
	}
}

func TestIERequiredForPendingInterrupt(t *testing.T) {
	c := New(0)
	c.RaiseIRQ(0)
	c.MTC0(RegStatus, StatusIM0|0xFF00) // enable IM but leave IE clear
	if c.PendingInterrupt() {
		t.Error("PendingInterrupt() with IE=0 should be false")
	}
	c.MTC0(RegStatus, StatusIE|0xFF00)
	if !c.PendingInterrupt() {
		t.Error("PendingInterrupt() with IE=1 and matching IM should be true")
	}
}

func TestRaiseAndClearIRQ(t *testing.T) {
	c := New(0)
	c.RaiseIRQ(3)
	if c.Cause()&(CauseIP0<<5) == 0 {
		t.Fatal("RaiseIRQ(3) did not set Cause.IP5")
	}
	c.ClearIRQ(3)
	if c.Cause()&(CauseIP0<<5) != 0 {
		t.Error("ClearIRQ(3) did not clear Cause.IP5")
	}
}

func TestTimerTickRaisesOnCompareMatch(t *testing.T) {
	c := New(0)
	c.MTC0(RegCompare, 3)
	for i := 0; i < 3; i++ {
		c.TimerTick()
	}
	if c.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", c.Count())
	}
	if c.Cause()&(CauseIP0<<7) == 0 {
		t.Error("TimerTick did not raise IP7 on compare match")
	}
}

func TestWritingCompareClearsTimerIRQ(t *testing.T) {
	c := New(0)
	c.MTC0(RegCompare, 1)
	c.TimerTick()
	if c.Cause()&(CauseIP0<<7) == 0 {
		t.Fatal("setup: expected timer IRQ pending")
	}
	c.MTC0(RegCompare, 100)
	if c.Cause()&(CauseIP0<<7) != 0 {
		t.Error("writing Compare did not clear the pending timer IRQ")
	}
}

func TestMTC0WiredBoundsRandom(t *testing.T) {
	c := New(0)
	c.MTC0(RegWired, 4)
	if c.reg[RegRandom] != NumTLBEntries-1 {
		t.Errorf("Random after MTC0 Wired = %d, want %d", c.reg[RegRandom], NumTLBEntries-1)
	}
}

func TestTranslateMissWithEmptyTLB(t *testing.T) {
	c := New(0)
	_, code := c.Translate(0x80001000, except.RefLoad)
	if code != except.TLBLoad {
		t.Errorf("Translate on empty TLB = %v, want TLBLoad", code)
	}
}

func TestTLBWIAndTranslateHit(t *testing.T) {
	c := New(0)
	vaddr := uint32(0x10000000)
	c.MTC0(RegEntryHi, (vaddr>>13)<<13)
	// EntryLo fields: PFN<<6 | C<<3 | D<<2 | V<<1 | G
	lo0 := (uint32(0x1234) << 6) | (1 << 2) | (1 << 1) | 1 // D=1,V=1,G=1
	lo1 := (uint32(0x5678) << 6) | (1 << 2) | (1 << 1) | 1
	c.MTC0(RegEntryLo0, lo0)
	c.MTC0(RegEntryLo1, lo1)
	c.MTC0(RegIndex, 0)
	c.TLBWI()

	paddr, code := c.Translate(vaddr, except.RefLoad)
	if code != except.None {
		t.Fatalf("Translate after TLBWI: code = %v, want None", code)
	}
	if paddr != 0x1234000 {
		t.Errorf("Translate even-page paddr = %#x, want 0x1234000", paddr)
	}

	paddr, code = c.Translate(vaddr|0x1000, except.RefLoad)
	if code != except.None {
		t.Fatalf("Translate odd page: code = %v, want None", code)
	}
	if paddr != 0x5678000 {
		t.Errorf("Translate odd-page paddr = %#x, want 0x5678000", paddr)
	}
}

func TestTranslateStoreToReadOnlyPageFaults(t *testing.T) {
	c := New(0)
	vaddr := uint32(0x20000000)
	c.MTC0(RegEntryHi, (vaddr>>13)<<13)
	lo0 := (uint32(0x100) << 6) | (1 << 1) | 1 // D=0, V=1, G=1
	c.MTC0(RegEntryLo0, lo0)
	c.MTC0(RegEntryLo1, 0)
	c.MTC0(RegIndex, 1)
	c.TLBWI()

	_, code := c.Translate(vaddr, except.RefStore)
	if code != except.TLBModification {
		t.Errorf("store to dirty=0 page = %v, want TLBModification", code)
	}
}

func TestTLBRRoundTrip(t *testing.T) {
	c := New(0)
	c.MTC0(RegEntryHi, (uint32(0x30000000>>13) << 13) | 5)
	lo0 := (uint32(0xAAA) << 6) | (1 << 2) | (1 << 1)
	lo1 := (uint32(0xBBB) << 6) | (1 << 1)
	c.MTC0(RegEntryLo0, lo0)
	c.MTC0(RegEntryLo1, lo1)
	c.MTC0(RegIndex, 2)
	c.TLBWI()

	c.MTC0(RegEntryHi, 0)
	c.MTC0(RegEntryLo0, 0)
	c.MTC0(RegEntryLo1, 0)
	c.MTC0(RegIndex, 2)
	c.TLBR()

	if c.reg[RegEntryLo0] != lo0 {
		t.Errorf("EntryLo0 after TLBR = %#x, want %#x", c.reg[RegEntryLo0], lo0)
	}
	if c.reg[RegEntryLo1] != lo1&entryLoMask {
		t.Errorf("EntryLo1 after TLBR = %#x, want %#x", c.reg[RegEntryLo1], lo1&entryLoMask)
	}
}

func TestTLBPFindsMatchingEntry(t *testing.T) {
	c := New(0)
	vaddr := uint32(0x40000000)
	c.MTC0(RegEntryHi, ((vaddr>>13)<<13)|7)
	c.MTC0(RegEntryLo0, 1<<1)
	c.MTC0(RegEntryLo1, 0)
	c.MTC0(RegIndex, 9)
	c.TLBWI()

	c.MTC0(RegEntryHi, ((vaddr>>13)<<13)|7)
	c.TLBP()
	if c.reg[RegIndex] != 9 {
		t.Errorf("Index after TLBP = %d, want 9", c.reg[RegIndex])
	}
}

func TestTLBPMissSetsProbeBit(t *testing.T) {
	c := New(0)
	c.MTC0(RegEntryHi, 0x1234)
	c.TLBP()
	if c.reg[RegIndex]&0x8000_0000 == 0 {
		t.Error("TLBP miss should leave the probe-failure bit set")
	}
}

func TestMFC0EntryLoMasked(t *testing.T) {
	c := New(0)
	c.reg[RegEntryLo0] = 0xFFFFFFFF
	if got := c.MFC0(RegEntryLo0, 0); got != entryLoMask {
		t.Errorf("MFC0(EntryLo0) = %#x, want %#x", got, entryLoMask)
	}
}

func TestInvalidateLL(t *testing.T) {
	c := New(0)
	c.SetLLAddr(0x1000)
	c.InvalidateLL()
	if c.LLAddr() != 0xFFFFFFFF {
		t.Errorf("LLAddr after InvalidateLL = %#x, want 0xffffffff", c.LLAddr())
	}
}
