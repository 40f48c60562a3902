/*
 * yams - Hardware root and run/step scheduler
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

// Package machine owns the CPUs, the bus, the device list and the cycle
// counter, and drives them one tick at a time from a single goroutine --
// generalized from the teacher's emu/core run loop (done channel, running
// flag, front-end command channel) per SPEC_FULL.md §5. It is the only
// package that wires cpu, bus, cp0 and device together; implementing
// device.System here is what lets every device raise interrupts, read the
// cycle counter and reach physical memory without depending on machine.
package machine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yams-go/yams/internal/bits"
	"github.com/yams-go/yams/internal/bus"
	"github.com/yams-go/yams/internal/cp0"
	"github.com/yams-go/yams/internal/cpu"
	"github.com/yams-go/yams/internal/device"
	"github.com/yams-go/yams/internal/device/shutdown"
	"github.com/yams-go/yams/internal/memory"
)

// RunState is the scheduler's run/stop/exit tri-state, set by console
// commands and by the shutdown device's magic-value writes.
type RunState int

const (
	// StateConsole: CPUs are not ticking; the front end reads commands.
	StateConsole RunState = iota
	StateRunning
	StateExited
)

// Commands sent on the front-end channel, mirroring the teacher's
// master.Packet dispatch in emu/core.processPacket.
type cmdKind int

const (
	cmdRun cmdKind = iota
	cmdStop
	cmdStep
	cmdSetBreak
	cmdClearBreak
	cmdInterrupt
	cmdQuit
)

type command struct {
	kind    cmdKind
	cpu     int
	addr    uint32
	count   int
	irqLine int
	reply   chan struct{}
}

// irqEntry tracks the CPU chosen for one IRQ line while it stays pending,
// per SPEC_FULL.md §4.1's "selection is round-robin, computed once when
// the line first becomes pending" rule.
type irqEntry struct {
	pending bool
	cpu     int
}

// Machine is the simulator's hardware root.
type Machine struct {
	CPUs    []*cpu.CPU
	Bus     *bus.Bus
	devices []device.Device
	mem     *memory.Memory
	order   bits.Order

	cycle uint64

	irqs   [6]irqEntry
	rrNext int

	state       RunState
	breakpointCPU int
	stoppedAt     string // reason the last run stopped, for the console

	cmd  chan command
	done chan struct{}
	wg   sync.WaitGroup

	// fatalCheck reports a plugin device's protocol violation; the
	// scheduler polls it after every tick and forces a console drop.
	fatalCheck func() error
}

// New builds a machine with numCPUs cores sharing mem and bus. The caller
// still has to AddDevice each peripheral before calling Start.
func New(numCPUs int, mem *memory.Memory, order bits.Order) *Machine {
	m := &Machine{
		mem:   mem,
		order: order,
		cmd:   make(chan command),
		done:  make(chan struct{}),
	}

	cp0s := make([]*cp0.CP0, numCPUs)
	for i := range cp0s {
		cp0s[i] = cp0.New(i)
	}
	m.Bus = bus.New(mem, cp0s)

	m.CPUs = make([]*cpu.CPU, numCPUs)
	for i := range m.CPUs {
		m.CPUs[i] = cpu.New(i, cp0s[i], m.Bus, order)
	}
	return m
}

// AddDevice registers a peripheral on the bus and in the tick list.
func (m *Machine) AddDevice(d device.Device) error {
	if err := m.Bus.AddDevice(d); err != nil {
		return err
	}
	m.devices = append(m.devices, d)
	return nil
}

// SetFatalCheck installs a hook polled once per tick; a non-nil return
// forces the machine to drop to console, per the plugin bridge's
// terminate-on-protocol-violation contract.
func (m *Machine) SetFatalCheck(f func() error) { m.fatalCheck = f }

// --- device.System ---

func (m *Machine) RaiseIRQ(line int) int {
	if line < 0 || line > 5 {
		return -1
	}
	e := &m.irqs[line]
	if !e.pending {
		e.pending = true
		e.cpu = m.rrNext
		m.rrNext = (m.rrNext + 1) % len(m.CPUs)
	}
	m.CPUs[e.cpu].CP0.RaiseIRQ(line)
	return e.cpu
}

func (m *Machine) ClearIRQ(line int) {
	if line < 0 || line > 5 {
		return
	}
	e := &m.irqs[line]
	if e.pending {
		m.CPUs[e.cpu].CP0.ClearIRQ(line)
		e.pending = false
	}
}

// RaiseIRQOn and ClearIRQOn bypass round-robin selection, for devices
// (cpuinfo's inter-CPU signal, a plugin's CPUIRQ reply) that name an
// exact target CPU.
func (m *Machine) RaiseIRQOn(cpuID int, line int) {
	if cpuID < 0 || cpuID >= len(m.CPUs) || line < 0 || line > 5 {
		return
	}
	m.CPUs[cpuID].CP0.RaiseIRQ(line)
}

func (m *Machine) ClearIRQOn(cpuID int, line int) {
	if cpuID < 0 || cpuID >= len(m.CPUs) || line < 0 || line > 5 {
		return
	}
	m.CPUs[cpuID].CP0.ClearIRQ(line)
}

func (m *Machine) Cycles() uint64         { return m.cycle }
func (m *Machine) Memory() *memory.Memory { return m.mem }
func (m *Machine) Order() bits.Order      { return m.order }

// --- front-end control, called from the console/gdbstub goroutines ---

func (m *Machine) Run() { m.send(command{kind: cmdRun}) }

func (m *Machine) StopRun() { m.send(command{kind: cmdStop}) }

// Step single-steps every CPU n times and blocks until done.
func (m *Machine) Step(n int) {
	reply := make(chan struct{})
	m.cmd <- command{kind: cmdStep, count: n, reply: reply}
	<-reply
}

func (m *Machine) SetBreakpoint(cpuID int, addr uint32) {
	m.send(command{kind: cmdSetBreak, cpu: cpuID, addr: addr})
}

func (m *Machine) ClearBreakpoint(cpuID int) {
	m.send(command{kind: cmdClearBreak, cpu: cpuID})
}

func (m *Machine) Interrupt(line int) {
	m.send(command{kind: cmdInterrupt, irqLine: line})
}

func (m *Machine) Quit() {
	m.send(command{kind: cmdQuit})
}

// ShutdownHandler builds the callback the shutdown device invokes on a
// magic-value write: exit drops the whole process out of the run loop,
// console just parks the scheduler the way a breakpoint does.
func (m *Machine) ShutdownHandler() func(shutdown.Action) {
	return func(a shutdown.Action) {
		switch a {
		case shutdown.ActionExit:
			m.state = StateExited
			m.stoppedAt = "guest requested shutdown"
		case shutdown.ActionConsole:
			m.state = StateConsole
			m.stoppedAt = "guest dropped to console"
		}
	}
}

func (m *Machine) send(c command) {
	select {
	case m.cmd <- c:
	case <-m.done:
	}
}

// State reports the scheduler's current run state and, if it most
// recently stopped on its own (breakpoint, halt, fatal plugin error), why.
func (m *Machine) State() (RunState, string) { return m.state, m.stoppedAt }

// BreakpointCPU is the id of the CPU that most recently hit a breakpoint.
func (m *Machine) BreakpointCPU() int { return m.breakpointCPU }

// --- the loop itself ---

// Start runs the scheduler on its own goroutine, like the teacher's
// core.Start: a done channel for shutdown, a running flag gating whether
// cycles advance, a select between servicing front-end commands and
// ticking hardware.
func (m *Machine) Start() {
	m.wg.Add(1)
	go m.loop()
}

func (m *Machine) Stop() {
	close(m.done)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for machine to stop")
	}
}

func (m *Machine) loop() {
	defer m.wg.Done()
	for {
		if m.state == StateExited {
			return
		}
		if m.state != StateRunning {
			// Parked in console state: block for the next command rather
			// than spin, mirroring the teacher's event.AnyEvent() idle path.
			select {
			case <-m.done:
				return
			case c := <-m.cmd:
				m.exec(c)
			}
			continue
		}
		select {
		case <-m.done:
			return
		case c := <-m.cmd:
			m.exec(c)
		default:
			m.tick()
		}
	}
}

func (m *Machine) exec(c command) {
	switch c.kind {
	case cmdRun:
		for _, cp := range m.CPUs {
			cp.Halted = false
		}
		m.state = StateRunning
		m.stoppedAt = ""
	case cmdStop:
		m.state = StateConsole
		m.stoppedAt = "stop requested"
	case cmdStep:
		for _, cp := range m.CPUs {
			cp.Halted = false
		}
		for i := 0; i < c.count; i++ {
			m.tick()
		}
		if c.reply != nil {
			close(c.reply)
		}
	case cmdSetBreak:
		if c.cpu >= 0 && c.cpu < len(m.CPUs) {
			m.CPUs[c.cpu].Breakpoint = c.addr
			m.CPUs[c.cpu].BreakpointSet = true
		}
	case cmdClearBreak:
		if c.cpu >= 0 && c.cpu < len(m.CPUs) {
			m.CPUs[c.cpu].BreakpointSet = false
		}
	case cmdInterrupt:
		m.RaiseIRQ(c.irqLine)
	case cmdQuit:
		m.state = StateExited
	}
}

// tick advances one simulated cycle: every CPU executes one instruction
// (or waits), then every device ticks, then the cycle counter advances --
// the device.System.Cycles() a device reads from inside its own Tick is
// therefore already this cycle's value, matching SPEC_FULL.md §4's
// "CPU(s) tick, then devices tick" ordering.
func (m *Machine) tick() {
	for _, c := range m.CPUs {
		if c.Halted {
			continue
		}
		if c.Tick() {
			m.breakpointCPU = c.ID
			m.state = StateConsole
			m.stoppedAt = fmt.Sprintf("breakpoint on cpu%d at %#08x", c.ID, c.PC)
		}
	}
	for _, d := range m.devices {
		d.Tick()
	}
	m.cycle++

	if m.fatalCheck != nil {
		if err := m.fatalCheck(); err != nil {
			m.state = StateConsole
			m.stoppedAt = err.Error()
		}
	}

	if m.allHalted() {
		m.state = StateConsole
		m.stoppedAt = "all cpus halted"
	}
}

func (m *Machine) allHalted() bool {
	for _, c := range m.CPUs {
		if !c.Halted {
			return false
		}
	}
	return true
}
