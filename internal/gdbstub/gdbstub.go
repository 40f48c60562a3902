/*
 * yams - GDB remote serial protocol stub
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

// Package gdbstub speaks the GDB remote serial protocol over a single TCP
// connection ($packet#checksum framing, g/G/m/M/c/s/Z/z/? commands), the
// accept-loop shape generalized from the teacher's telnet/listener.go
// (net.Listener, a shutdown channel, a WaitGroup covering the accept and
// per-connection goroutines) per SPEC_FULL.md §11.
package gdbstub

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yams-go/yams/internal/machine"
)

// Target is what the stub needs from the running machine; machine.Machine
// satisfies this directly.
type Target interface {
	Run()
	StopRun()
	Step(n int)
	SetBreakpoint(cpu int, addr uint32)
	ClearBreakpoint(cpu int)
	State() (machine.RunState, string)
}

// Server accepts one GDB client connection at a time on port, the way the
// teacher's telnet server accepts console clients.
type Server struct {
	target   Target
	cpus     []*cpuAccess
	order    binary.ByteOrder
	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// cpuAccess is the narrow slice of a cpu.CPU the stub touches, kept small
// and structural so this package doesn't import internal/cpu.
type cpuAccess struct {
	ID      int
	Regs    func() [32]uint32
	SetReg  func(n uint32, v uint32)
	PC      func() uint32
	SetPC   func(v uint32)
	ReadMem func(addr uint32, width int) (uint32, bool)
	WriteMem func(addr uint32, width int, v uint32) bool
}

// CPUAccess is the exported constructor shape cmd/yams builds from its
// live cpu.CPU/bus.Bus values, keeping gdbstub decoupled from their
// concrete types.
type CPUAccess = cpuAccess

func NewCPUAccess(id int, regs func() [32]uint32, setReg func(uint32, uint32), pc func() uint32, setPC func(uint32),
	readMem func(uint32, int) (uint32, bool), writeMem func(uint32, int, uint32) bool) *CPUAccess {
	return &cpuAccess{ID: id, Regs: regs, SetReg: setReg, PC: pc, SetPC: setPC, ReadMem: readMem, WriteMem: writeMem}
}

// New builds a stub for the given machine and its per-CPU accessors.
// bigEndian selects the guest byte order GDB's register/memory payloads
// are encoded in.
func New(target Target, cpus []*CPUAccess, bigEndian bool) *Server {
	order := binary.ByteOrder(binary.LittleEndian)
	if bigEndian {
		order = binary.BigEndian
	}
	return &Server{target: target, cpus: cpus, order: order, shutdown: make(chan struct{})}
}

// Start listens on port (e.g. "1234") and serves one client at a time.
func (s *Server) Start(port string) error {
	l, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("gdbstub: listen: %w", err)
	}
	s.listener = l
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) Stop() {
	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("gdbstub: timed out waiting for connections to finish")
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return
				default:
					continue
				}
			}
			sess := &session{srv: s, conn: conn, r: bufio.NewReader(conn)}
			go sess.serve()
		}
	}
}

// session handles one connected GDB client end to end.
type session struct {
	srv  *Server
	conn net.Conn
	r    *bufio.Reader
}

func (sess *session) serve() {
	defer sess.conn.Close()
	for {
		pkt, err := sess.readPacket()
		if err != nil {
			return
		}
		sess.ack()
		reply := sess.dispatch(pkt)
		if err := sess.writePacket(reply); err != nil {
			return
		}
	}
}

func (sess *session) ack() { _, _ = sess.conn.Write([]byte{'+'}) }

// readPacket reads one "$...#cc" frame, discarding anything before '$'
// (GDB sometimes sends a bare ack/nak first).
func (sess *session) readPacket() (string, error) {
	for {
		b, err := sess.r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '$' {
			break
		}
		if b == 3 { // Ctrl-C: treat as an async stop request
			return "\x03", nil
		}
	}
	var sb strings.Builder
	for {
		b, err := sess.r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '#' {
			break
		}
		if b == '}' { // escape byte: next byte is XORed with 0x20
			nb, err := sess.r.ReadByte()
			if err != nil {
				return "", err
			}
			sb.WriteByte(nb ^ 0x20)
			continue
		}
		sb.WriteByte(b)
	}
	// Consume the two checksum hex digits; we don't reject on mismatch.
	if _, err := sess.r.ReadByte(); err != nil {
		return "", err
	}
	if _, err := sess.r.ReadByte(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (sess *session) writePacket(payload string) error {
	sum := checksum(payload)
	_, err := fmt.Fprintf(sess.conn, "$%s#%02x", payload, sum)
	return err
}

func checksum(s string) byte {
	var sum byte
	for i := 0; i < len(s); i++ {
		sum += s[i]
	}
	return sum
}

// dispatch decodes one GDB command and returns its reply payload
// (unframed, without the leading '$' or trailing checksum).
func (sess *session) dispatch(pkt string) string {
	if pkt == "\x03" {
		sess.srv.target.StopRun()
		return "S05"
	}
	if pkt == "" {
		return ""
	}
	switch pkt[0] {
	case '?':
		return "S05"
	case 'g':
		return sess.readAllRegs()
	case 'G':
		sess.writeAllRegs(pkt[1:])
		return "OK"
	case 'm':
		return sess.readMem(pkt[1:])
	case 'M':
		return sess.writeMem(pkt[1:])
	case 'c':
		sess.srv.target.Run()
		return "S05"
	case 's':
		sess.srv.target.Step(1)
		return "S05"
	case 'Z':
		return sess.setBreakpoint(pkt[1:])
	case 'z':
		return sess.clearBreakpoint(pkt[1:])
	default:
		return "" // unsupported: empty reply per the protocol's convention
	}
}

// cpu0 is the only core GDB's register/memory commands address; multi-core
// debugging would need the 'H'/vCont thread-selection extensions, which
// spec.md's console already covers through its own per-CPU commands.
func (sess *session) cpu0() *cpuAccess {
	if len(sess.srv.cpus) == 0 {
		return nil
	}
	return sess.srv.cpus[0]
}

// readAllRegs encodes the 32 GPRs followed by sr/lo/hi/bad/cause/pc, the
// conventional MIPS gdbserver register layout, each as 8 little/big-endian
// hex digits per sess.srv.order. sr/lo/hi/bad/cause are sent as zero.
func (sess *session) readAllRegs() string {
	c := sess.cpu0()
	if c == nil {
		return "E01"
	}
	regs := c.Regs()
	var sb strings.Builder
	for _, v := range regs {
		sb.WriteString(encodeWord(sess.srv.order, v))
	}
	for i := 0; i < 5; i++ {
		sb.WriteString(encodeWord(sess.srv.order, 0))
	}
	sb.WriteString(encodeWord(sess.srv.order, c.PC()))
	return sb.String()
}

func (sess *session) writeAllRegs(hex string) {
	c := sess.cpu0()
	if c == nil {
		return
	}
	for i := uint32(0); i < 32 && len(hex) >= 8; i++ {
		c.SetReg(i, decodeWord(sess.srv.order, hex[:8]))
		hex = hex[8:]
	}
}

func encodeWord(order binary.ByteOrder, v uint32) string {
	var b [4]byte
	order.PutUint32(b[:], v)
	return fmt.Sprintf("%02x%02x%02x%02x", b[0], b[1], b[2], b[3])
}

func decodeWord(order binary.ByteOrder, hex string) uint32 {
	var b [4]byte
	for i := 0; i < 4; i++ {
		n, _ := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		b[i] = byte(n)
	}
	return order.Uint32(b[:])
}

// readMem handles "addr,length", reading length bytes one at a time
// through the cpuAccess ReadMem hook; cmd/yams backs that hook with
// Bus.ReadDirect, so addresses are physical and are not translated.
func (sess *session) readMem(args string) string {
	c := sess.cpu0()
	if c == nil {
		return "E01"
	}
	addr, length, ok := parseAddrLen(args)
	if !ok {
		return "E01"
	}
	var sb strings.Builder
	for i := uint32(0); i < length; i++ {
		v, ok := c.ReadMem(addr+i, 1)
		if !ok {
			return "E02"
		}
		sb.WriteString(fmt.Sprintf("%02x", byte(v)))
	}
	return sb.String()
}

// writeMem handles "addr,length:data".
func (sess *session) writeMem(args string) string {
	c := sess.cpu0()
	if c == nil {
		return "E01"
	}
	head, data, found := strings.Cut(args, ":")
	if !found {
		return "E01"
	}
	addr, length, ok := parseAddrLen(head)
	if !ok {
		return "E01"
	}
	for i := uint32(0); i < length && len(data) >= 2; i++ {
		n, err := strconv.ParseUint(data[:2], 16, 8)
		if err != nil {
			return "E01"
		}
		data = data[2:]
		if !c.WriteMem(addr+i, 1, uint32(n)) {
			return "E02"
		}
	}
	return "OK"
}

func parseAddrLen(s string) (addr uint32, length uint32, ok bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.ParseUint(parts[0], 16, 32)
	l, err2 := strconv.ParseUint(parts[1], 16, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(a), uint32(l), true
}

// setBreakpoint/clearBreakpoint handle "type,addr,kind"; only software
// breakpoints (type 0/1) are meaningful here, since the simulator has no
// real hardware watchpoint mechanism to back type 2-4 with.
func (sess *session) setBreakpoint(args string) string {
	addr, ok := breakpointAddr(args)
	if !ok {
		return "E01"
	}
	sess.srv.target.SetBreakpoint(0, addr)
	return "OK"
}

func (sess *session) clearBreakpoint(args string) string {
	_, ok := breakpointAddr(args)
	if !ok {
		return "E01"
	}
	sess.srv.target.ClearBreakpoint(0)
	return "OK"
}

func breakpointAddr(args string) (uint32, bool) {
	parts := strings.SplitN(args, ",", 3)
	if len(parts) < 2 {
		return 0, false
	}
	a, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(a), true
}
