/*
 * yams - Run-control shutdown device test set.
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

package shutdown

import "testing"

func TestWritingMagicExitNotifiesExit(t *testing.T) {
	var got Action
	var called bool
	s := New(0x1000, func(a Action) { called = true; got = a })
	if ok := s.WritePort(0x1000, MagicExit); !ok {
		t.Fatal("WritePort(MagicExit) = false, want true")
	}
	if !called || got != ActionExit {
		t.Errorf("notify called=%v action=%v, want true/ActionExit", called, got)
	}
}

func TestWritingMagicConsoleNotifiesConsole(t *testing.T) {
	var got Action
	s := New(0x1000, func(a Action) { got = a })
	s.WritePort(0x1000, MagicConsole)
	if got != ActionConsole {
		t.Errorf("action = %v, want ActionConsole", got)
	}
}

func TestWritingOtherValueIsIgnored(t *testing.T) {
	called := false
	s := New(0x1000, func(Action) { called = true })
	if ok := s.WritePort(0x1000, 0x12345678); ok {
		t.Error("WritePort with a non-magic value should return false")
	}
	if called {
		t.Error("notify should not fire for a non-magic value")
	}
}

func TestWritingWrongPortIsIgnored(t *testing.T) {
	called := false
	s := New(0x1000, func(Action) { called = true })
	if ok := s.WritePort(0x1004, MagicExit); ok {
		t.Error("WritePort to a different port should return false")
	}
	if called {
		t.Error("notify should not fire for the wrong port")
	}
}

func TestReadPortAlwaysReportsUnimplemented(t *testing.T) {
	s := New(0x1000, func(Action) {})
	if _, ok := s.ReadPort(0x1000); ok {
		t.Error("ReadPort should always report ok=false, shutdown is write-only")
	}
}

func TestDescriptorFields(t *testing.T) {
	s := New(0x2000, func(Action) {})
	d := s.Descriptor()
	if d.TypeCode != 0x0700 || d.PortBase != 0x2000 || d.PortLength != 4 {
		t.Errorf("Descriptor() = %+v, want TypeCode=0x700 PortBase=0x2000 PortLength=4", d)
	}
}
