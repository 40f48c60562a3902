/*
 * yams - Console reader.
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

// Package reader drives command/parser from a terminal or a script file.
// ConsoleReader is the teacher's liner-based interactive loop, generalized
// to the new one-letter command set; RunScript and RunBatch cover the
// non-interactive cases -s/--script and piped stdin need, which the
// teacher's console never had to (it always ran attached to a terminal).
package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/yams-go/yams/command/parser"
	"github.com/yams-go/yams/internal/machine"
)

// ConsoleReader runs the interactive front panel: history, line editing
// and tab completion over the one-letter command set, exactly the shape
// of the teacher's ConsoleReader.
func ConsoleReader(tgt *parser.Target) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		return completeCmd(partial)
	})

	for {
		input, err := line.Prompt("yams> ")
		if err == nil {
			line.AppendHistory(input)
			runLine(input, tgt)
			if state, _ := tgt.Machine.State(); state == machine.StateExited {
				return
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		slog.Error("console: error reading line", "error", err)
		return
	}
}

// RunScript executes each line of path in order, stopping early if a
// command quits the machine or returns an error.
func RunScript(path string, tgt *parser.Target) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}
	defer f.Close()
	return RunBatch(f, tgt)
}

// RunBatch reads commands one per line from r, the same loop a redirected
// stdin or a -s script file drives, without any terminal line-editing.
func RunBatch(r io.Reader, tgt *parser.Target) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" || strings.HasPrefix(input, "#") {
			continue
		}
		runLine(input, tgt)
		if state, _ := tgt.Machine.State(); state == machine.StateExited {
			return nil
		}
	}
	return scanner.Err()
}

func runLine(input string, tgt *parser.Target) {
	reply, err := parser.Process(input, tgt)
	if err != nil {
		fmt.Println("Error: " + err.Error())
		return
	}
	if reply != "" {
		fmt.Print(reply)
		if !strings.HasSuffix(reply, "\n") {
			fmt.Println()
		}
	}
}

// completeCmd offers the full command names (not the one-letter aliases)
// that start with the line's first (and only, for now) word.
func completeCmd(partial string) []string {
	fields := strings.Fields(partial)
	if len(fields) > 1 || (len(fields) == 1 && strings.HasSuffix(partial, " ")) {
		return nil
	}
	prefix := ""
	if len(fields) == 1 {
		prefix = fields[0]
	}
	var out []string
	for _, name := range parser.CommandNames() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// IsInteractive reports whether fd looks like a terminal, used by
// cmd/yams to decide whether a TTY with no configured socket reads single
// keystrokes or plain stdin.
func IsInteractive(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
