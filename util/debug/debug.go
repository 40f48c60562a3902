/*
 * yams - Log debug data to a file
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

// Package debug writes masked trace lines to a single optional debug
// file, the way the teacher's util/debug does for channel/device
// traffic -- reworked here for yams's CPU/device model, where traffic
// is tagged by CPU id or by a device's port-space tag rather than by
// an S/370 channel/device number. Init is called directly by the
// [Simulator] "debugfile" option instead of the teacher's
// config.RegisterFile self-registration, since opening the file is a
// side effect the config loader should sequence rather than own.
package debug

import (
	"fmt"
	"os"
)

var logFile *os.File

// Init opens fileName as the debug trace destination. Only one debug
// file may be open at a time; Close releases it.
func Init(fileName string) error {
	if logFile != nil {
		return fmt.Errorf("debug: already logging to %s", logFile.Name())
	}
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("debug: unable to create %s: %w", fileName, err)
	}
	logFile = file
	return nil
}

func Close() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Debugf writes a generic trace line tagged with module, gated by
// mask&level.
func Debugf(module string, mask int, level int, format string, a ...interface{}) {
	if logFile == nil || (mask&level) == 0 {
		return
	}
	fmt.Fprintf(logFile, module+": "+format+"\n", a...)
}

// DebugCPUf writes a trace line tagged with the originating CPU id,
// gated by mask&level, for tracing per-core instruction flow.
func DebugCPUf(cpuID int, mask int, level int, format string, a ...interface{}) {
	if logFile == nil || (mask&level) == 0 {
		return
	}
	fmt.Fprintf(logFile, "cpu%d: "+format+"\n", append([]interface{}{cpuID}, a...)...)
}

// DebugDevicef writes a trace line tagged with a device's port-space
// base address, gated by mask&level, for tracing port reads and writes.
func DebugDevicef(portBase uint32, mask int, level int, format string, a ...interface{}) {
	if logFile == nil || (mask&level) == 0 {
		return
	}
	fmt.Fprintf(logFile, "dev@%#x: "+format+"\n", append([]interface{}{portBase}, a...)...)
}
