/*
 * yams - Log debug data to a file test set.
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

package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Init/Close share one process-wide logFile global, so every test here
// is careful to Close before returning regardless of outcome.

func TestInitRejectsASecondOpenFile(t *testing.T) {
	dir := t.TempDir()
	if err := Init(filepath.Join(dir, "first.log")); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	if err := Init(filepath.Join(dir, "second.log")); err == nil {
		t.Error("a second Init while one file is open should fail")
	}
}

func TestCloseWithoutInitIsNoop(t *testing.T) {
	if err := Close(); err != nil {
		t.Errorf("Close with nothing open = %v, want nil", err)
	}
}

func TestDebugfGatedByMaskAndLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Debugf("bus", 0x1, 0x2, "suppressed %d", 1) // mask&level == 0, should not write
	Debugf("bus", 0x1, 0x1, "allowed %d", 2)
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "suppressed") {
		t.Errorf("trace file should not contain the gated-out line: %q", got)
	}
	if !strings.Contains(got, "bus: allowed 2") {
		t.Errorf("trace file = %q, want it to contain %q", got, "bus: allowed 2")
	}
}

func TestDebugCPUfTagsWithCPUID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	DebugCPUf(3, 0x1, 0x1, "fetch %#x", 0x1000)
	Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "cpu3: fetch 0x1000") {
		t.Errorf("trace file = %q, want a cpu3-tagged line", data)
	}
}

func TestDebugDevicefTagsWithPortBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	DebugDevicef(0x7000, 0x1, 0x1, "read %#x", 4)
	Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "dev@0x7000: read 0x4") {
		t.Errorf("trace file = %q, want a dev@0x7000-tagged line", data)
	}
}

func TestDebugfWithoutAnOpenFileIsNoop(t *testing.T) {
	Debugf("bus", 0x1, 0x1, "should go nowhere")
}
