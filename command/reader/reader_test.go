/*
 * yams - Console reader test set.
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

package reader

import (
	"strings"
	"testing"

	"github.com/yams-go/yams/command/parser"
	"github.com/yams-go/yams/internal/bits"
	"github.com/yams-go/yams/internal/machine"
	"github.com/yams-go/yams/internal/memory"
)

func newTestTarget(t *testing.T) *parser.Target {
	t.Helper()
	mem := memory.New(4, bits.Big)
	m := machine.New(1, mem, bits.Big)
	return &parser.Target{Machine: m}
}

func TestRunBatchExecutesEachLine(t *testing.T) {
	tgt := newTestTarget(t)
	script := "memwrite 100 deadbeef\nmemread 100\n"
	if err := RunBatch(strings.NewReader(script), tgt); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
}

func TestRunBatchSkipsBlankAndCommentLines(t *testing.T) {
	tgt := newTestTarget(t)
	script := "\n# a comment\n   \nmemwrite 100 1\n"
	if err := RunBatch(strings.NewReader(script), tgt); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
}

func TestRunBatchStopsOnQuit(t *testing.T) {
	tgt := newTestTarget(t)
	script := "quit\nmemwrite 100 1\n"
	if err := RunBatch(strings.NewReader(script), tgt); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if state, _ := tgt.Machine.State(); state != machine.StateExited {
		t.Fatalf("state = %v, want StateExited", state)
	}
}

func TestRunBatchContinuesAfterCommandError(t *testing.T) {
	tgt := newTestTarget(t)
	script := "bogus\nmemwrite 100 1\n"
	if err := RunBatch(strings.NewReader(script), tgt); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if _, err := parser.Process("memread 100", tgt); err != nil {
		t.Fatalf("memread after batch: %v", err)
	}
}

func TestCompleteCmdPrefixMatch(t *testing.T) {
	got := completeCmd("reg")
	want := map[string]bool{"regdump": true, "regwrite": true}
	if len(got) != len(want) {
		t.Fatalf("completeCmd(%q) = %v, want keys of %v", "reg", got, want)
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected completion %q", name)
		}
	}
}

func TestCompleteCmdNoSecondWord(t *testing.T) {
	if got := completeCmd("memwrite 100"); got != nil {
		t.Errorf("completeCmd with args = %v, want nil", got)
	}
}
