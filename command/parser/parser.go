/*
 * yams - Console command parser.
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

// Package parser implements the front panel command language: a line of
// text in, a reply string and a possible error out. The cursor idiom
// (skipSpace/isEOL/getNext/getPeek/parseQuoteString) is taken from the
// teacher's command/parser/parser.go; the command table itself is the
// one-letter-alias set a hardware console uses rather than the teacher's
// min-match attach/detach/set vocabulary, since there is no device list
// to attach tapes to here.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/yams-go/yams/internal/cpu"
	"github.com/yams-go/yams/internal/machine"
	"github.com/yams-go/yams/util/hex"
)

// cmdLine is a cursor over one line of console input.
type cmdLine struct {
	line string
	pos  int
}

func (l *cmdLine) skipSpace() {
	for l.pos < len(l.line) && unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
}

func (l *cmdLine) isEOL() bool {
	if l.pos >= len(l.line) {
		return true
	}
	return l.line[l.pos] == '#'
}

func (l *cmdLine) getNext() byte {
	l.pos++
	if l.isEOL() {
		return 0
	}
	return l.line[l.pos]
}

func (l *cmdLine) getPeek() byte {
	if l.pos+1 >= len(l.line) {
		return 0
	}
	return l.line[l.pos+1]
}

// parseQuoteString reads a bare or "quoted" token, same rules as the
// teacher's version: "" inside quotes is a literal quote.
func (l *cmdLine) parseQuoteString() (string, bool) {
	inQuote := false
	value := ""

	if l.getPeek() == '"' {
		inQuote = true
		_ = l.getNext()
	}

	for {
		by := l.getNext()
		if by == '"' && inQuote {
			by = l.getNext()
			if by != '"' {
				return value, true
			}
		}

		space := unicode.IsSpace(rune(by))
		if !inQuote && (space || by == 0) {
			return value, true
		}

		value += string(by)
		if l.isEOL() {
			return value, !inQuote
		}
	}
}

// getWord returns the next space-delimited token, lower-cased.
func (l *cmdLine) getWord() string {
	l.skipSpace()
	if l.isEOL() {
		return ""
	}
	start := l.pos
	for !l.isEOL() && !unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

// rest returns everything left on the line, with leading space trimmed.
func (l *cmdLine) rest() string {
	l.skipSpace()
	if l.isEOL() {
		return ""
	}
	return l.line[l.pos:]
}

// Target bundles the live objects console commands act on. Boot and
// RunScript are optional hooks supplied by cmd/yams, since loading an
// image or a script file is outside what machine.Machine itself knows
// how to do.
type Target struct {
	Machine   *machine.Machine
	Boot      func(path string) error
	RunScript func(path string) error
}

type cmd struct {
	name    string
	alias   string
	process func(*Target, *cmdLine) (string, error)
}

// The help entry's process is filled in by init: cmdHelp reads cmdList, so
// naming it here would make an initialization cycle.
var cmdList = []cmd{
	{name: "help", alias: "h"},
	{name: "start", alias: "s", process: cmdStart},
	{name: "step", alias: "t", process: cmdStep},
	{name: "break", alias: "b", process: cmdBreak},
	{name: "unbreak", alias: "u", process: cmdUnbreak},
	{name: "quit", alias: "q", process: cmdQuit},
	{name: "regdump", alias: "r", process: cmdRegdump},
	{name: "tlbdump", alias: "l", process: cmdTLBdump},
	{name: "regwrite", alias: "w", process: cmdRegwrite},
	{name: "memwrite", alias: "m", process: cmdMemwrite},
	{name: "memread", alias: "e", process: cmdMemread},
	{name: "dump", alias: "d", process: cmdDump},
	{name: "poke", alias: "p", process: cmdPoke},
	{name: "interrupt", alias: "i", process: cmdInterrupt},
	{name: "boot", alias: "o", process: cmdBoot},
	{name: "source", alias: "c", process: cmdSource},
}

func init() { cmdList[0].process = cmdHelp }

// CommandNames returns every full command name, for shell completion.
func CommandNames() []string {
	names := make([]string, len(cmdList))
	for i, c := range cmdList {
		names[i] = c.name
	}
	return names
}

func lookup(word string) *cmd {
	for i := range cmdList {
		if cmdList[i].name == word || cmdList[i].alias == word {
			return &cmdList[i]
		}
	}
	return nil
}

// Process runs one line of console input against tgt and returns the
// reply text to print, or an error for an unrecognized or malformed
// command. An empty line is not an error; it returns an empty reply.
func Process(line string, tgt *Target) (string, error) {
	l := &cmdLine{line: line}
	word := l.getWord()
	if word == "" {
		return "", nil
	}
	c := lookup(word)
	if c == nil {
		return "", fmt.Errorf("unrecognized command: %s", word)
	}
	return c.process(tgt, l)
}

func cmdHelp(_ *Target, _ *cmdLine) (string, error) {
	var b strings.Builder
	b.WriteString("commands:\n")
	for _, c := range cmdList {
		fmt.Fprintf(&b, "  %-10s %s\n", c.name, c.alias)
	}
	return b.String(), nil
}

func cmdStart(tgt *Target, _ *cmdLine) (string, error) {
	tgt.Machine.Run()
	return "running", nil
}

func cmdStep(tgt *Target, l *cmdLine) (string, error) {
	n := 1
	if w := l.getWord(); w != "" {
		v, err := strconv.Atoi(w)
		if err != nil {
			return "", fmt.Errorf("step: bad count %q: %w", w, err)
		}
		n = v
	}
	tgt.Machine.Step(n)
	return fmt.Sprintf("stepped %d", n), nil
}

// cpuReg splits a "cpu:addr" argument into its CPU index and the
// remaining token, or assumes CPU 0 if there is no colon. break and
// regwrite take their argument in this form.
func cpuReg(tok string) (cpuID int, rest string, err error) {
	if idx := strings.IndexByte(tok, ':'); idx >= 0 {
		n, perr := strconv.Atoi(tok[:idx])
		if perr != nil {
			return 0, "", fmt.Errorf("bad cpu number %q: %w", tok[:idx], perr)
		}
		return n, tok[idx+1:], nil
	}
	return 0, tok, nil
}

func parseHex32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func cmdBreak(tgt *Target, l *cmdLine) (string, error) {
	tok := l.getWord()
	if tok == "" {
		return "", errors.New("break: requires an address")
	}
	cpuID, rest, err := cpuReg(tok)
	if err != nil {
		return "", err
	}
	addr, err := parseHex32(rest)
	if err != nil {
		return "", fmt.Errorf("break: bad address %q: %w", rest, err)
	}
	if cpuID < 0 || cpuID >= len(tgt.Machine.CPUs) {
		return "", fmt.Errorf("break: no such cpu %d", cpuID)
	}
	tgt.Machine.SetBreakpoint(cpuID, addr)
	return fmt.Sprintf("breakpoint set at cpu%d:%08x", cpuID, addr), nil
}

func cmdUnbreak(tgt *Target, l *cmdLine) (string, error) {
	cpuID := 0
	if w := l.getWord(); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return "", fmt.Errorf("unbreak: bad cpu %q: %w", w, err)
		}
		cpuID = n
	}
	if cpuID < 0 || cpuID >= len(tgt.Machine.CPUs) {
		return "", fmt.Errorf("unbreak: no such cpu %d", cpuID)
	}
	tgt.Machine.ClearBreakpoint(cpuID)
	return fmt.Sprintf("breakpoint cleared on cpu%d", cpuID), nil
}

func cmdQuit(tgt *Target, _ *cmdLine) (string, error) {
	tgt.Machine.Quit()
	return "goodbye", nil
}

func cmdRegdump(tgt *Target, l *cmdLine) (string, error) {
	cpuID := 0
	if w := l.getWord(); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return "", fmt.Errorf("regdump: bad cpu %q: %w", w, err)
		}
		cpuID = n
	}
	if cpuID < 0 || cpuID >= len(tgt.Machine.CPUs) {
		return "", fmt.Errorf("regdump: no such cpu %d", cpuID)
	}
	c := tgt.Machine.CPUs[cpuID]
	var b strings.Builder
	b.WriteString(c.Dump())
	fmt.Fprintf(&b, "status=%08x cause=%08x epc=%08x badvaddr=%08x\n",
		c.CP0.Status(), c.CP0.Cause(), c.CP0.EPC(), c.CP0.BadVAddr())
	return b.String(), nil
}

func cmdTLBdump(tgt *Target, l *cmdLine) (string, error) {
	cpuID := 0
	if w := l.getWord(); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return "", fmt.Errorf("tlbdump: bad cpu %q: %w", w, err)
		}
		cpuID = n
	}
	if cpuID < 0 || cpuID >= len(tgt.Machine.CPUs) {
		return "", fmt.Errorf("tlbdump: no such cpu %d", cpuID)
	}
	c0 := tgt.Machine.CPUs[cpuID].CP0
	var b strings.Builder
	for i := 0; i < 16; i++ {
		e := c0.ReadTLB(i)
		fmt.Fprintf(&b, "%2d: vpn2=%08x asid=%02x g=%v even{pfn=%08x c=%d d=%v v=%v} odd{pfn=%08x c=%d d=%v v=%v}\n",
			i, e.VPN2, e.ASID, e.G,
			e.Even.PFN, e.Even.C, e.Even.D, e.Even.V,
			e.Odd.PFN, e.Odd.C, e.Odd.D, e.Odd.V)
	}
	return b.String(), nil
}

func cmdRegwrite(tgt *Target, l *cmdLine) (string, error) {
	tok := l.getWord()
	if tok == "" {
		return "", errors.New("regwrite: requires cpu:reg")
	}
	cpuID, regStr, err := cpuReg(tok)
	if err != nil {
		return "", err
	}
	if cpuID < 0 || cpuID >= len(tgt.Machine.CPUs) {
		return "", fmt.Errorf("regwrite: no such cpu %d", cpuID)
	}
	regNum, err := strconv.Atoi(regStr)
	if err != nil || regNum < 0 || regNum > 31 {
		return "", fmt.Errorf("regwrite: bad register %q", regStr)
	}
	valStr := l.getWord()
	val, err := parseHex32(valStr)
	if err != nil {
		return "", fmt.Errorf("regwrite: bad value %q: %w", valStr, err)
	}
	tgt.Machine.CPUs[cpuID].SetReg(uint32(regNum), val)
	return fmt.Sprintf("cpu%d:r%d = %08x", cpuID, regNum, val), nil
}

func cmdMemread(tgt *Target, l *cmdLine) (string, error) {
	addrTok := l.getWord()
	addr, err := parseHex32(addrTok)
	if err != nil {
		return "", fmt.Errorf("memread: bad address %q: %w", addrTok, err)
	}
	n := 1
	if w := l.getWord(); w != "" {
		v, err := strconv.Atoi(w)
		if err != nil {
			return "", fmt.Errorf("memread: bad count %q: %w", w, err)
		}
		n = v
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		v, ok := tgt.Machine.Bus.ReadDirect(addr+uint32(i*4), 4)
		if !ok {
			return "", fmt.Errorf("memread: %08x out of range", addr+uint32(i*4))
		}
		fmt.Fprintf(&b, "%08x: %08x\n", addr+uint32(i*4), v)
	}
	return b.String(), nil
}

func cmdMemwrite(tgt *Target, l *cmdLine) (string, error) {
	addrTok := l.getWord()
	addr, err := parseHex32(addrTok)
	if err != nil {
		return "", fmt.Errorf("memwrite: bad address %q: %w", addrTok, err)
	}
	valTok := l.getWord()
	val, err := parseHex32(valTok)
	if err != nil {
		return "", fmt.Errorf("memwrite: bad value %q: %w", valTok, err)
	}
	if !tgt.Machine.Bus.WriteDirect(addr, 4, val) {
		return "", fmt.Errorf("memwrite: %08x out of range", addr)
	}
	return fmt.Sprintf("%08x <- %08x", addr, val), nil
}

// cmdDump disassembles count instructions starting at either a bare
// address or a cpu:reg pair giving the address, per the original
// console's overloaded address argument.
func cmdDump(tgt *Target, l *cmdLine) (string, error) {
	tok := l.getWord()
	if tok == "" {
		return "", errors.New("dump: requires an address")
	}
	addr, err := resolveAddr(tgt, tok)
	if err != nil {
		return "", err
	}
	n := 1
	if w := l.getWord(); w != "" {
		v, err := strconv.Atoi(w)
		if err != nil {
			return "", fmt.Errorf("dump: bad count %q: %w", w, err)
		}
		n = v
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		pc := addr + uint32(i*4)
		word, ok := tgt.Machine.Bus.ReadDirect(pc, 4)
		if !ok {
			return "", fmt.Errorf("dump: %08x out of range", pc)
		}
		fmt.Fprintf(&b, "%08x: ", pc)
		hex.FormatWord(&b, []uint32{word})
		fmt.Fprintf(&b, " %s\n", cpu.Disassemble(pc, word))
	}
	return b.String(), nil
}

// cmdPoke sets a single word of memory, addressed like dump: a bare hex
// address or a cpu:reg pair naming the register that holds it.
func cmdPoke(tgt *Target, l *cmdLine) (string, error) {
	tok := l.getWord()
	if tok == "" {
		return "", errors.New("poke: requires an address")
	}
	addr, err := resolveAddr(tgt, tok)
	if err != nil {
		return "", err
	}
	valTok := l.getWord()
	val, err := parseHex32(valTok)
	if err != nil {
		return "", fmt.Errorf("poke: bad value %q: %w", valTok, err)
	}
	if !tgt.Machine.Bus.WriteDirect(addr, 4, val) {
		return "", fmt.Errorf("poke: %08x out of range", addr)
	}
	return fmt.Sprintf("%08x <- %08x", addr, val), nil
}

// resolveAddr accepts either a bare hex address or a cpu:reg pair whose
// register holds the address.
func resolveAddr(tgt *Target, tok string) (uint32, error) {
	if idx := strings.IndexByte(tok, ':'); idx >= 0 {
		cpuID, err := strconv.Atoi(tok[:idx])
		if err != nil {
			return 0, fmt.Errorf("bad cpu number %q: %w", tok[:idx], err)
		}
		if cpuID < 0 || cpuID >= len(tgt.Machine.CPUs) {
			return 0, fmt.Errorf("no such cpu %d", cpuID)
		}
		regNum, err := strconv.Atoi(tok[idx+1:])
		if err != nil || regNum < 0 || regNum > 31 {
			return 0, fmt.Errorf("bad register %q", tok[idx+1:])
		}
		return tgt.Machine.CPUs[cpuID].Reg(uint32(regNum)), nil
	}
	return parseHex32(tok)
}

func cmdInterrupt(tgt *Target, l *cmdLine) (string, error) {
	w := l.getWord()
	line, err := strconv.Atoi(w)
	if err != nil || line < 0 || line > 5 {
		return "", fmt.Errorf("interrupt: bad irq line %q", w)
	}
	tgt.Machine.Interrupt(line)
	return fmt.Sprintf("irq %d raised", line), nil
}

func cmdBoot(tgt *Target, l *cmdLine) (string, error) {
	path, ok := l.parseQuoteString()
	if !ok || path == "" {
		return "", errors.New("boot: requires a file name")
	}
	if tgt.Boot == nil {
		return "", errors.New("boot: not supported by this console")
	}
	if err := tgt.Boot(path); err != nil {
		return "", fmt.Errorf("boot: %w", err)
	}
	return fmt.Sprintf("loaded %s", path), nil
}

func cmdSource(tgt *Target, l *cmdLine) (string, error) {
	path, ok := l.parseQuoteString()
	if !ok || path == "" {
		return "", errors.New("source: requires a file name")
	}
	if tgt.RunScript == nil {
		return "", errors.New("source: not supported by this console")
	}
	if err := tgt.RunScript(path); err != nil {
		return "", fmt.Errorf("source: %w", err)
	}
	return fmt.Sprintf("ran %s", path), nil
}
