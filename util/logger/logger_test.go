/*
 * yams - Wrapper for slog test set.
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

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// Every case below logs at slog.LevelDebug with debug=false, so
// Handle's r.Level > slog.LevelDebug branch never fires and the test
// doesn't depend on capturing the process's real os.Stderr.

func newRecord(msg string, attrs ...slog.Attr) slog.Record {
	r := slog.NewRecord(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), slog.LevelDebug, msg, 0)
	r.AddAttrs(attrs...)
	return r
}

func TestHandleWritesFormattedLineToOut(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)

	if err := h.Handle(context.Background(), newRecord("booting")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "2026/01/02 03:04:05") {
		t.Errorf("output = %q, want a formatted timestamp", got)
	}
	if !strings.Contains(got, "DEBUG:") || !strings.Contains(got, "booting") {
		t.Errorf("output = %q, want level and message", got)
	}
}

func TestHandleAppendsAttrValues(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)

	rec := newRecord("attached", slog.String("device", "tty0"), slog.Int("irq", 3))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "tty0") || !strings.Contains(got, "3") {
		t.Errorf("output = %q, want both attr values present", got)
	}
}

func TestWithAttrsPreservesMutexAndUnderlyingHandler(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "bus")}).(*LogHandler)
	if h2.mu != h.mu {
		t.Error("WithAttrs should share the parent's mutex, not allocate a new one")
	}
	if h2.out != nil {
		t.Error("WithAttrs should not carry over out (matches slog.Handler composition, not a direct writer)")
	}
}

func TestWithGroupPreservesMutex(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)

	h2 := h.WithGroup("bus").(*LogHandler)
	if h2.mu != h.mu {
		t.Error("WithGroup should share the parent's mutex")
	}
}

func TestEnabledDelegatesToUnderlyingHandler(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, &debug)

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(Debug) should be false when the handler is configured at Warn")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("Enabled(Error) should be true when the handler is configured at Warn")
	}
}

func TestSetDebugTogglesStderrMirroring(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)
	if h.debug {
		t.Fatal("setup: debug should start false")
	}
	on := true
	h.SetDebug(&on)
	if !h.debug {
		t.Error("SetDebug(true) should flip the debug flag")
	}
}
