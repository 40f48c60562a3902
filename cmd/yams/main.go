/*
 * yams - Main process.
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

// cmd/yams is the simulator's entry point: parse flags, load the config
// file, build the machine and its devices, load the boot image, then hand
// control to the console (or a GDB stub, or a batch script), mirroring
// the teacher's main.go shape with MIPS-specific wiring in place of the
// S/370 channel subsystem.
package main

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/eiannone/keyboard"
	getopt "github.com/pborman/getopt/v2"

	"github.com/yams-go/yams/command/parser"
	"github.com/yams-go/yams/command/reader"
	"github.com/yams-go/yams/config/bootconfig"
	config "github.com/yams-go/yams/config/configparser"
	"github.com/yams-go/yams/internal/asyncio"
	"github.com/yams-go/yams/internal/bits"
	"github.com/yams-go/yams/internal/bus"
	"github.com/yams-go/yams/internal/cpu"
	"github.com/yams-go/yams/internal/device/cpuinfo"
	"github.com/yams-go/yams/internal/device/disk"
	"github.com/yams-go/yams/internal/device/meminfo"
	"github.com/yams-go/yams/internal/device/nic"
	"github.com/yams-go/yams/internal/device/plugin"
	"github.com/yams-go/yams/internal/device/rtc"
	"github.com/yams-go/yams/internal/device/shutdown"
	"github.com/yams-go/yams/internal/device/tty"
	"github.com/yams-go/yams/internal/gdbstub"
	"github.com/yams-go/yams/internal/loader"
	"github.com/yams-go/yams/internal/machine"
	"github.com/yams-go/yams/internal/memory"
	"github.com/yams-go/yams/util/debug"
	"github.com/yams-go/yams/util/logger"
)

// stringList accumulates a repeatable getopt flag such as -s/--script.
type stringList struct{ values []string }

func (s *stringList) String() string { return strings.Join(s.values, ",") }

func (s *stringList) Set(value string, _ getopt.Option) error {
	s.values = append(s.values, value)
	return nil
}

var log *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "yams.cfg", "Configuration file")
	optGDB := getopt.StringLong("gdb", 'g', "", "Listen for a GDB remote connection on this port")
	optLog := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	optVersion := getopt.BoolLong("version", 'v', "Print version and exit")
	var scripts stringList
	getopt.FlagLong(&scripts, "script", 's', "Console script to run before the interactive console (repeatable)")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}
	if *optVersion {
		fmt.Println("yams (MIPS32 R2 simulator)")
		os.Exit(0)
	}

	var logFile *os.File
	if *optLog != "" {
		var err error
		logFile, err = os.Create(*optLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "yams: %v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()
	}
	debugFlag := false
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	log = slog.New(logger.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel}, &debugFlag))
	slog.SetDefault(log)

	log.Info("yams started")

	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		log.Error("configuration file not found", "path", *optConfig)
		os.Exit(1)
	}

	bootconfig.Reset()
	if err := config.LoadConfigFile(*optConfig); err != nil {
		log.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	sim := bootconfig.Sim
	if sim.CPUs <= 0 {
		sim.CPUs = 1
	}
	if sim.MemoryPages <= 0 {
		sim.MemoryPages = 16 // 64 KiB at the 4 KiB page size memory.New uses
	}
	if sim.DebugFile != "" {
		if err := debug.Init(sim.DebugFile); err != nil {
			log.Error("opening debug file", "error", err)
			os.Exit(1)
		}
		defer debug.Close()
	}

	order := bits.Little
	if sim.BigEndian {
		order = bits.Big
	}

	mem := memory.New(sim.MemoryPages, order)
	m := machine.New(sim.CPUs, mem, order)

	if err := attachDevices(m, sim); err != nil {
		log.Error("attaching devices", "error", err)
		os.Exit(1)
	}

	args := getopt.Args()
	if len(args) > 0 {
		if err := bootImage(m, args[0]); err != nil {
			log.Error("loading boot image", "error", err)
			os.Exit(1)
		}
	}

	m.Start()
	defer m.Stop()

	tgt := &parser.Target{
		Machine: m,
		Boot: func(path string) error {
			return bootImage(m, path)
		},
		RunScript: func(path string) error {
			return reader.RunScript(path, &parser.Target{Machine: m})
		},
	}

	var gdbSrv *gdbstub.Server
	if *optGDB != "" {
		gdbSrv = startGDBStub(m, order == bits.Big, *optGDB)
		if gdbSrv != nil {
			defer gdbSrv.Stop()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		m.Quit()
	}()

	for _, path := range scripts.values {
		if err := reader.RunScript(path, tgt); err != nil {
			log.Error("running script", "path", path, "error", err)
			os.Exit(1)
		}
	}

	reader.ConsoleReader(tgt)
	log.Info("yams exiting")
}

func bootImage(m *machine.Machine, path string) error {
	res, err := loader.LoadFile(path, m.Memory(), cpu.StartPC)
	if err != nil {
		return err
	}
	for _, cp := range m.CPUs {
		cp.PC = res.EntryPoint
		cp.Next = res.EntryPoint + 4
	}
	return nil
}

func startGDBStub(m *machine.Machine, bigEndian bool, port string) *gdbstub.Server {
	accesses := make([]*gdbstub.CPUAccess, len(m.CPUs))
	for i, cp := range m.CPUs {
		cp := cp
		accesses[i] = gdbstub.NewCPUAccess(
			cp.ID,
			func() [32]uint32 { return cp.Regs },
			func(n, v uint32) { cp.SetReg(n, v) },
			func() uint32 { return cp.PC },
			func(v uint32) { cp.PC = v; cp.Next = v + 4 },
			func(addr uint32, width int) (uint32, bool) { return m.Bus.ReadDirect(addr, width) },
			func(addr uint32, width int, v uint32) bool { return m.Bus.WriteDirect(addr, width, v) },
		)
	}
	srv := gdbstub.New(m, accesses, bigEndian)
	if err := srv.Start(port); err != nil {
		log.Error("starting gdb stub", "error", err)
		return nil
	}
	log.Info("gdb stub listening", "port", port)
	return srv
}

// portAllocator mirrors bus.Bus's own port-window and plugin-MMAP
// bookkeeping (DefaultPortBase, then each device's length rounded up to 4
// bytes; the MMAP region starting page-aligned just past the last port)
// so a device constructor can be handed the exact address the bus will
// place it at, provided alloc/allocMMAP are called in the same order as
// the matching AddDevice/AddMMAP calls.
type portAllocator struct {
	next     uint32
	mmapNext uint32
}

const pageSize = 4096

func newPortAllocator() *portAllocator { return &portAllocator{next: bus.DefaultPortBase} }

func (p *portAllocator) alloc(length uint32) uint32 {
	base := p.next
	p.next += length
	if p.next%4 != 0 {
		p.next += 4 - p.next%4
	}
	return base
}

func (p *portAllocator) allocMMAP(length uint32) uint32 {
	if p.mmapNext == 0 {
		p.mmapNext = alignPage(p.next)
	}
	base := p.mmapNext
	pages := (length + pageSize - 1) / pageSize
	p.mmapNext += pages * pageSize
	return base
}

func attachDevices(m *machine.Machine, sim bootconfig.Simulator) error {
	alloc := newPortAllocator()

	for _, d := range bootconfig.Disks {
		if err := attachDisk(m, alloc, sim, d); err != nil {
			return fmt.Errorf("disk %q: %w", d.Vendor, err)
		}
	}
	for _, t := range bootconfig.TTYs {
		if err := attachTTY(m, alloc, sim, t); err != nil {
			return fmt.Errorf("tty %q: %w", t.Vendor, err)
		}
	}
	for _, n := range bootconfig.NICs {
		if err := attachNIC(m, alloc, n); err != nil {
			return fmt.Errorf("nic %q: %w", n.Vendor, err)
		}
	}
	for _, p := range bootconfig.Plugins {
		if err := attachPlugin(m, alloc, sim, p); err != nil {
			return fmt.Errorf("plugin %q: %w", p.Vendor, err)
		}
	}

	cpuIRQ := sim.CPUIRQ
	if err := m.AddDevice(cpuinfo.New(m, len(m.CPUs), cpuIRQ, alloc.alloc(12), cpuIRQ)); err != nil {
		return err
	}
	if err := m.AddDevice(meminfo.New(alloc.alloc(4), m.Memory().Size())); err != nil {
		return err
	}
	if err := m.AddDevice(rtc.New(alloc.alloc(4), nil)); err != nil {
		return err
	}
	if err := m.AddDevice(shutdown.New(alloc.alloc(4), m.ShutdownHandler())); err != nil {
		return err
	}
	return nil
}

func attachDisk(m *machine.Machine, alloc *portAllocator, sim bootconfig.Simulator, d bootconfig.DiskSpec) error {
	f, err := os.OpenFile(d.Filename, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	cyclesPerMS := sim.ClockHz / 1000
	geo := disk.Geometry{
		Cylinders:      d.NumCylinders,
		SectorsPerCyl:  d.NumSectors,
		SectorSize:     d.SectorSize,
		FullSeekCycles: uint64(d.SeekTimeMS) * cyclesPerMS,
		RotationCycles: uint64(d.RotTimeMS) * cyclesPerMS,
	}
	portBase := alloc.alloc(20)
	return m.AddDevice(disk.New(m, f, f, geo, portBase, d.IRQ))
}

func attachTTY(m *machine.Machine, alloc *portAllocator, sim bootconfig.Simulator, t bootconfig.TTYSpec) error {
	var conn io.ReadWriter
	var err error
	if t.HasSocket {
		conn, err = dialStream(t.Socket)
		if err != nil {
			return err
		}
	} else if reader.IsInteractive(os.Stdin.Fd()) {
		conn = &keyboardConn{}
	} else {
		conn = stdioConn{}
	}
	async := asyncio.New(asyncio.BackendPoll, 1000)
	portBase := alloc.alloc(12)
	return m.AddDevice(tty.New(m, async, conn, -1, portBase, t.IRQ, t.SendDelay, int(sim.ClockHz)))
}

// stdioConn adapts the process's own stdin/stdout to io.ReadWriter for a
// TTY device with no configured socket and no usable terminal, the
// redirected-stdin batch case.
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// keyboardConn backs an interactive local console with raw single-key
// reads instead of line-buffered stdin, so the simulated TTY sees each
// keystroke as it is typed rather than after an Enter.
type keyboardConn struct{}

func (k *keyboardConn) Read(p []byte) (int, error) {
	ch, key, err := keyboard.GetSingleKey()
	if err != nil {
		return 0, err
	}
	if key == keyboard.KeyCtrlC {
		return 0, io.EOF
	}
	if ch == 0 {
		return 0, nil
	}
	n := utf8.EncodeRune(p, ch)
	return n, nil
}

func (k *keyboardConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func dialStream(spec config.SocketSpec) (net.Conn, error) {
	switch spec.Kind {
	case "unix":
		if spec.Listen {
			ln, err := net.Listen("unix", spec.Path)
			if err != nil {
				return nil, err
			}
			defer ln.Close()
			return ln.Accept()
		}
		return net.Dial("unix", spec.Path)
	case "tcp":
		addr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))
		if spec.Listen {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return nil, err
			}
			defer ln.Close()
			return ln.Accept()
		}
		return net.Dial("tcp", addr)
	default:
		return nil, fmt.Errorf("a stream socket must be unixsocket or tcphost, got %q", spec.Kind)
	}
}

func attachNIC(m *machine.Machine, alloc *portAllocator, n bootconfig.NICSpec) error {
	var pc net.PacketConn
	var peers []net.Addr
	var lister nic.PeerLister

	switch n.Socket.Kind {
	case "udp":
		addr := net.JoinHostPort(n.Socket.Host, strconv.Itoa(n.Socket.Port))
		if n.Socket.Listen {
			conn, err := net.ListenPacket("udp", addr)
			if err != nil {
				return err
			}
			pc = conn
		} else {
			conn, err := net.ListenPacket("udp", ":0")
			if err != nil {
				return err
			}
			raddr, err := net.ResolveUDPAddr("udp", addr)
			if err != nil {
				conn.Close()
				return err
			}
			pc = conn
			peers = []net.Addr{raddr}
		}
	case "unix":
		_ = os.Remove(n.Socket.Path) // a stale socket file from a prior run blocks bind
		conn, err := net.ListenPacket("unixgram", n.Socket.Path)
		if err != nil {
			return err
		}
		pc = conn
		dir := filepath.Dir(n.Socket.Path)
		lister = func() []net.Addr { return siblingSockets(dir) }
	default:
		return fmt.Errorf("a NIC socket must be udphost or unixsocket, got %q", n.Socket.Kind)
	}

	portBase := alloc.alloc(20)
	return m.AddDevice(nic.New(m, pc, peers, lister, n.MAC, n.MTU, n.Reliability, n.DMADelay, n.SendDelay, portBase, n.IRQ))
}

// siblingSockets lists every Unix-domain socket file in dir, the
// broadcast set for a PF_UNIX NIC's send: every other simulator instance
// bound to a socket in the same directory. Rescanned on each send rather
// than cached once, since peers can come and go between transmissions.
func siblingSockets(dir string) []net.Addr {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var peers []net.Addr
	for _, e := range entries {
		if e.Type()&fs.ModeSocket == 0 {
			continue
		}
		peers = append(peers, &net.UnixAddr{Net: "unixgram", Name: filepath.Join(dir, e.Name())})
	}
	return peers
}

func dialPluginSocket(spec config.SocketSpec) (net.Conn, error) {
	switch spec.Kind {
	case "unix":
		return net.Dial("unix", spec.Path)
	case "tcp":
		return net.Dial("tcp", net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port)))
	default:
		return nil, fmt.Errorf("a plugin socket must be unixsocket or tcphost, got %q", spec.Kind)
	}
}

// attachPlugin connects to one bridge socket and wires every tagged
// device it enumerates. MMAP bases are computed with the same
// lazily-initialized alignment rule bus.AddMMAP uses, mirrored here
// because New needs a plugin's mmap base before the bus has a chance to
// hand one back.
func attachPlugin(m *machine.Machine, alloc *portAllocator, sim bootconfig.Simulator, p bootconfig.PluginSpec) error {
	nc, err := dialPluginSocket(p.Socket)
	if err != nil {
		return err
	}
	c, infos, err := plugin.Connect(nc, len(m.CPUs), m.Memory().Size(), sim.CPUIRQ, p.Async, p.Options)
	if err != nil {
		nc.Close()
		return err
	}

	for _, info := range infos {
		portLength := uint32(info.NPorts) * 4
		portBase := alloc.alloc(portLength)
		var devMMAPBase uint32
		if info.MMAPSize > 0 {
			devMMAPBase = alloc.allocMMAP(info.MMAPSize)
		}
		dev := plugin.New(m, c, info, portBase, portLength, devMMAPBase, sim.ClockHz)
		if err := m.AddDevice(dev); err != nil {
			return err
		}
		if info.MMAPSize > 0 {
			m.Bus.AddMMAP(info.MMAPSize, dev)
		}
	}
	return nil
}

func alignPage(v uint32) uint32 {
	if v%pageSize != 0 {
		v += pageSize - v%pageSize
	}
	return v
}
