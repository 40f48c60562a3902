/*
 * yams - MIPS32 R2 per-tick interpreter
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

// Package cpu is one simulated MIPS32 R2 core: registers, PC/next-PC,
// latched synchronous exceptions, and the one-instruction-per-tick
// classical decode-execute loop. It depends only on cp0, bits, and except;
// the memory bus is consumed through the small Bus interface below so this
// package never has to import the thing that serves its loads and stores.
package cpu

import (
	"fmt"
	"math/bits"
	"strings"

	gbits "github.com/yams-go/yams/internal/bits"
	"github.com/yams-go/yams/internal/cp0"
	"github.com/yams-go/yams/internal/except"
)

// Bus is everything the interpreter needs from the memory subsystem.
// internal/bus.Bus satisfies this structurally.
type Bus interface {
	Read(vaddr uint32, width int, cpuID int, kernel bool) (uint32, except.Code)
	ReadFetch(vaddr uint32, cpuID int, kernel bool) (uint32, except.Code)
	Write(vaddr uint32, width int, cpuID int, kernel bool, value uint32) except.Code
	ReadLL(vaddr uint32, cpuID int, kernel bool) (value uint32, paddr uint32, code except.Code)
	WriteSC(vaddr uint32, cpuID int, kernel bool, expectedLLAddr uint32, value uint32) (stored bool, code except.Code)
}

// Startup constants, SPEC_FULL.md §4.3.
const (
	StartPC     uint32 = 0x8001_0000
	vectorBEV   uint32 = 0xBFC0_0200
	vectorNoBEV uint32 = 0x8000_0000
	vecRefill   uint32 = 0x000
	vecGeneral  uint32 = 0x180
	vecInterr   uint32 = 0x200
)

// CPU is one simulated MIPS32 R2 core.
type CPU struct {
	ID int

	Regs [32]uint32
	PC   uint32
	Next uint32 // next_pc
	HI   uint32
	LO   uint32

	CP0   *cp0.CP0
	Bus   Bus
	Order gbits.Order

	pending except.Exception

	// Halted is set by a breakpoint hit; the scheduler inspects it after
	// each tick.
	Halted bool

	Breakpoint     uint32
	BreakpointSet  bool
	waitRP         bool // mirrors CP0 RP, cached so PC-on-resume logic reads clean
}

// New creates a CPU with the architectural startup state.
func New(id int, c0 *cp0.CP0, bus Bus, order gbits.Order) *CPU {
	return &CPU{
		ID:    id,
		PC:    StartPC,
		Next:  StartPC + 4,
		CP0:   c0,
		Bus:   bus,
		Order: order,
	}
}

// Reg reads general register n; register 0 always reads 0.
func (c *CPU) Reg(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return c.Regs[n]
}

// SetReg writes general register n; writes to register 0 are discarded.
func (c *CPU) SetReg(n uint32, v uint32) {
	if n == 0 {
		return
	}
	c.Regs[n] = v
}

// LatchException records a synchronous fault to be delivered at the start
// of the CPU's next tick. At most one can be pending at a time.
func (c *CPU) LatchException(code except.Code, badVAddr uint32) {
	if c.pending.Valid {
		return // a tick delivers its one latched exception before fetching again
	}
	c.pending = except.Exception{Code: code, BadVAddr: badVAddr, Valid: true}
}

func (c *CPU) latchCoprocessorUnusable(cpNum uint8) {
	c.pending = except.Exception{Code: except.CoprocessorUnusable, CE: cpNum, Valid: true}
}

// Tick advances the CPU by exactly one simulated cycle: deliver a pending
// exception (if any), else fetch-decode-execute one instruction, then
// advance the timer. Returns true if a breakpoint was hit this tick.
func (c *CPU) Tick() (hitBreakpoint bool) {
	if c.checkDeliverException() {
		if c.BreakpointSet && c.PC == c.Breakpoint {
			c.Halted = true
			return true
		}
		c.timerTick()
		return false
	}

	if c.waitRP {
		// WAIT stalls fetch/execute until an interrupt resumes us; the
		// resume path is handled in checkDeliverException via RP, so if we
		// reach here RP is still set and nothing else happens this tick.
		c.timerTick()
		return false
	}

	word, code := c.Bus.ReadFetch(c.PC, c.ID, c.CP0.KernelMode())
	if code != except.None {
		c.LatchException(code, c.PC)
		c.timerTick()
		return false
	}

	nextNext := c.Next + 4
	if !c.execute(word, &nextNext) {
		c.PC = c.Next
		c.Next = nextNext
	}
	// A faulting instruction leaves PC/Next untouched: checkDeliverException
	// reads c.PC as the faulting address (or the branch before it, for the
	// branch-delay-slot case) on the next tick. ERET is the one "faulted"
	// return that has already set PC/Next itself, to its popped target.

	if c.BreakpointSet && c.PC == c.Breakpoint {
		c.Halted = true
		hitBreakpoint = true
	}

	c.timerTick()
	return hitBreakpoint
}

// checkDeliverException implements SPEC_FULL.md §4.3 step 1: choose
// between the latched synchronous fault and an asynchronous interrupt,
// then vector to it. Returns true if an exception was delivered this tick
// (meaning fetch/execute was skipped).
func (c *CPU) checkDeliverException() bool {
	exc := c.pending
	interrupt := false
	if !exc.Valid {
		if c.CP0.PendingInterrupt() {
			exc = except.Exception{Code: except.Interrupt, Valid: true}
			interrupt = true
		} else {
			return false
		}
	}
	c.pending = except.Exception{}

	exlWasZero := !c.CP0.EXL()

	if exlWasZero {
		switch {
		case c.waitRP:
			c.CP0.SetEPC(c.PC + 4)
			c.CP0.SetRP(false)
			c.waitRP = false
		case c.PC != c.Next-4:
			c.CP0.SetBD(true)
			c.CP0.SetEPC(c.PC - 4)
		default:
			c.CP0.SetBD(false)
			c.CP0.SetEPC(c.PC)
		}
	}

	code := exc.Code.Real()

	var offset uint32
	switch {
	case (exc.Code == except.TLBLoad || exc.Code == except.TLBStore) && exlWasZero:
		offset = vecRefill
	case interrupt && c.CP0.IV():
		offset = vecInterr
	default:
		offset = vecGeneral
	}
	if exc.Code.IsTLBInvalid() {
		offset = vecGeneral
	}

	c.CP0.SetBadVAddr(exc.BadVAddr)
	c.CP0.SetExcCode(code)
	if code == except.CoprocessorUnusable {
		c.CP0.SetCE(exc.CE)
	}
	c.CP0.SetEXL(true)

	base := vectorNoBEV
	if c.CP0.BEV() {
		base = vectorBEV
	}
	c.PC = base + offset
	c.Next = c.PC + 4
	return true
}

func (c *CPU) timerTick() {
	c.CP0.TimerTick()
}

// fmtReg renders register n for diagnostics (regdump).
func (c *CPU) fmtReg(n uint32) string {
	return fmt.Sprintf("r%d=%08x", n, c.Reg(n))
}

// Dump renders a one-line-per-quad register summary for the console's
// regdump command.
func (c *CPU) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cpu%d pc=%08x next=%08x hi=%08x lo=%08x\n", c.ID, c.PC, c.Next, c.HI, c.LO)
	for i := uint32(0); i < 32; i += 4 {
		sb.WriteString(c.fmtReg(i) + " " + c.fmtReg(i+1) + " " + c.fmtReg(i+2) + " " + c.fmtReg(i+3) + "\n")
	}
	fmt.Fprintf(&sb, "status=%08x cause=%08x epc=%08x\n", c.CP0.Status(), c.CP0.Cause(), c.CP0.EPC())
	return sb.String()
}

// leadingZeros32 exposes math/bits to the CLZ/CLO instruction handlers.
func leadingZeros32(v uint32) uint32 { return uint32(bits.LeadingZeros32(v)) }

// signExtend16 / signExtend8 re-exported for the execute table.
var (
	signExtend16 = gbits.SignExtend16
	signExtend8  = gbits.SignExtend8
)
