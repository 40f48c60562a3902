/*
 * yams - Real-time clock device
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

// Package rtc is a trivial, read-only wall-clock device: one port holding
// the current Unix time in seconds, per SPEC_FULL.md §4.5.
package rtc

import (
	"time"

	"github.com/yams-go/yams/internal/device"
)

const PortSeconds = 0

// RTC reads the host wall clock.
type RTC struct {
	desc device.Descriptor
	now  func() time.Time
}

// New creates an RTC. now defaults to time.Now when nil, overridable for
// deterministic tests.
func New(portBase uint32, now func() time.Time) *RTC {
	if now == nil {
		now = time.Now
	}
	return &RTC{
		now: now,
		desc: device.Descriptor{
			TypeCode:   0x0400,
			IRQ:        device.NoIRQ,
			PortBase:   portBase,
			PortLength: 4,
		},
	}
}

func (r *RTC) Descriptor() device.Descriptor { return r.desc }

func (r *RTC) ReadPort(port uint32) (uint32, bool) {
	if port-r.desc.PortBase != PortSeconds {
		return 0, false
	}
	return uint32(r.now().Unix()), true
}

func (r *RTC) WritePort(uint32, uint32) bool { return false }

func (r *RTC) Tick() {}
