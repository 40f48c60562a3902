/*
 * yams - Run-control shutdown device
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

// Package shutdown lets the guest tell the simulator to stop: writing one
// of two magic values either exits the process or drops back to the
// console, per SPEC_FULL.md §4.5.
package shutdown

import "github.com/yams-go/yams/internal/device"

const PortControl = 0

const (
	MagicExit    uint32 = 0x0BADF00D
	MagicConsole uint32 = 0xDEADC0DE
)

// Action is the effect requested of the run-control layer.
type Action int

const (
	ActionExit Action = iota
	ActionConsole
)

// Shutdown is a write-only command device. notify is called with the
// requested Action; the caller (the scheduler owning run state) decides
// what that means for its run loop.
type Shutdown struct {
	desc   device.Descriptor
	notify func(Action)
}

func New(portBase uint32, notify func(Action)) *Shutdown {
	return &Shutdown{
		notify: notify,
		desc: device.Descriptor{
			TypeCode:   0x0700,
			IRQ:        device.NoIRQ,
			PortBase:   portBase,
			PortLength: 4,
		},
	}
}

func (s *Shutdown) Descriptor() device.Descriptor { return s.desc }

func (s *Shutdown) ReadPort(uint32) (uint32, bool) { return 0, false }

func (s *Shutdown) WritePort(port uint32, value uint32) bool {
	if port-s.desc.PortBase != PortControl {
		return false
	}
	switch value {
	case MagicExit:
		s.notify(ActionExit)
	case MagicConsole:
		s.notify(ActionConsole)
	default:
		return false
	}
	return true
}

func (s *Shutdown) Tick() {}
