/*
 * yams - Staged configuration for the simulator and its devices
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

// Package bootconfig registers the [Simulator]/[Disk]/[TTY]/[NIC]/[Plugin]
// sections with config/configparser the way the teacher's device packages
// register a model from their own init() -- collected here instead of in
// each device package, since building a Disk or a TTY needs a live
// machine.Machine (for device.System) that does not exist until the whole
// file, including [Simulator]'s cpu count and memory size, has been read.
// cmd/yams reads the staged values back after LoadConfigFile returns and
// only then constructs the machine and its devices.
package bootconfig

import (
	"fmt"
	"strconv"
	"strings"

	config "github.com/yams-go/yams/config/configparser"
)

// Simulator holds the [Simulator] section, or the zero value's defaults
// if the file carried none.
type Simulator struct {
	ClockHz    uint64
	MemoryPages int
	CPUs       int
	CPUIRQ     int
	BigEndian  bool
	DebugFile  string
	Seen       bool
}

// DiskSpec is one [Disk] section.
type DiskSpec struct {
	Vendor        string
	IRQ           int
	Filename      string
	SectorSize    int
	NumSectors    int
	NumCylinders  int
	RotTimeMS     int
	SeekTimeMS    int
	PortBase      uint32
}

// TTYSpec is one [TTY] section.
type TTYSpec struct {
	Vendor    string
	IRQ       int
	Socket    config.SocketSpec
	HasSocket bool
	SendDelay int
	PortBase  uint32
}

// NICSpec is one [NIC] section.
type NICSpec struct {
	Vendor      string
	IRQ         int
	MTU         uint32
	MAC         uint32
	Reliability int
	DMADelay    uint64
	SendDelay   uint64
	Socket      config.SocketSpec
	PortBase    uint32
}

// PluginSpec is one [Plugin] section.
type PluginSpec struct {
	Vendor   string
	Socket   config.SocketSpec
	Async    bool
	Options  string
	PortBase uint32
	MMAPBase uint32
}

var (
	Sim     Simulator
	Disks   []DiskSpec
	TTYs    []TTYSpec
	NICs    []NICSpec
	Plugins []PluginSpec
)

// Reset clears all staged configuration, for tests and for reloading a
// second config file in the same process.
func Reset() {
	Sim = Simulator{}
	Disks = nil
	TTYs = nil
	NICs = nil
	Plugins = nil
}

func init() {
	config.RegisterSection("Simulator", parseSimulator)
	config.RegisterSection("Disk", parseDisk)
	config.RegisterSection("TTY", parseTTY)
	config.RegisterSection("NIC", parseNIC)
	config.RegisterSection("Plugin", parsePlugin)
}

func parseSimulator(s config.Section) error {
	Sim.Seen = true
	if v, ok := s.Get("clockspeed"); ok {
		hz, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("[Simulator] clockspeed: %w", err)
		}
		Sim.ClockHz = hz * 1000 // config is in kHz
	}
	if v, ok := s.Get("memory"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("[Simulator] memory: %w", err)
		}
		Sim.MemoryPages = n
	}
	if v, ok := s.Get("cpus"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("[Simulator] cpus: %w", err)
		}
		Sim.CPUs = n
	}
	if v, ok := s.Get("cpuirq"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 5 {
			return fmt.Errorf("[Simulator] cpuirq must be 0..5, got %q", v)
		}
		Sim.CPUIRQ = n
	}
	if v, ok := s.Get("endianness"); ok {
		switch strings.ToLower(v) {
		case "big":
			Sim.BigEndian = true
		case "little":
			Sim.BigEndian = false
		default:
			return fmt.Errorf("[Simulator] endianness must be big or little, got %q", v)
		}
	}
	if v, ok := s.Get("debugfile"); ok {
		Sim.DebugFile = v
	}
	return nil
}

func vendorOf(s config.Section) (string, error) {
	v, ok := s.Get("vendor")
	if !ok {
		return "", fmt.Errorf("[%s] requires a vendor string, line %d", s.Name, s.Line)
	}
	return v, nil
}

func irqOf(s config.Section) (int, error) {
	v, ok := s.Get("irq")
	if !ok {
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 5 {
		return 0, fmt.Errorf("[%s] irq must be 0..5, line %d", s.Name, s.Line)
	}
	return n, nil
}

func intOpt(s config.Section, key string, def int) (int, error) {
	v, ok := s.Get(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("[%s] %s: %w", s.Name, key, err)
	}
	return n, nil
}

func parseDisk(s config.Section) error {
	vendor, err := vendorOf(s)
	if err != nil {
		return err
	}
	irq, err := irqOf(s)
	if err != nil {
		return err
	}
	filename, ok := s.Get("filename")
	if !ok {
		return fmt.Errorf("[Disk] requires filename, line %d", s.Line)
	}
	spec := DiskSpec{Vendor: vendor, IRQ: irq, Filename: filename}
	if spec.SectorSize, err = intOpt(s, "sectorsize", 512); err != nil {
		return err
	}
	if spec.NumSectors, err = intOpt(s, "numsectors", 63); err != nil {
		return err
	}
	if spec.NumCylinders, err = intOpt(s, "numcylinders", 1024); err != nil {
		return err
	}
	if spec.RotTimeMS, err = intOpt(s, "rottime", 0); err != nil {
		return err
	}
	if spec.SeekTimeMS, err = intOpt(s, "seektime", 0); err != nil {
		return err
	}
	Disks = append(Disks, spec)
	return nil
}

func parseTTY(s config.Section) error {
	vendor, err := vendorOf(s)
	if err != nil {
		return err
	}
	irq, err := irqOf(s)
	if err != nil {
		return err
	}
	spec := TTYSpec{Vendor: vendor, IRQ: irq}
	if spec.SendDelay, err = intOpt(s, "senddelay", 100); err != nil {
		return err
	}
	if words, ok := s.Words("socket"); ok {
		sock, err := config.ParseSocketSpec(words)
		if err != nil {
			return fmt.Errorf("[TTY] socket: %w", err)
		}
		spec.Socket = sock
		spec.HasSocket = true
	}
	TTYs = append(TTYs, spec)
	return nil
}

func parseNIC(s config.Section) error {
	vendor, err := vendorOf(s)
	if err != nil {
		return err
	}
	irq, err := irqOf(s)
	if err != nil {
		return err
	}
	spec := NICSpec{Vendor: vendor, IRQ: irq, Reliability: 100}
	mtu, err := intOpt(s, "mtu", 1500)
	if err != nil {
		return err
	}
	spec.MTU = uint32(mtu)
	if v, ok := s.Get("mac"); ok {
		mac, err := strconv.ParseUint(v, 16, 32)
		if err != nil {
			return fmt.Errorf("[NIC] mac: %w", err)
		}
		spec.MAC = uint32(mac)
	}
	if spec.Reliability, err = intOpt(s, "reliability", 100); err != nil {
		return err
	}
	dmaDelay, err := intOpt(s, "dmadelay", 0)
	if err != nil {
		return err
	}
	spec.DMADelay = uint64(dmaDelay)
	sendDelay, err := intOpt(s, "senddelay", 0)
	if err != nil {
		return err
	}
	spec.SendDelay = uint64(sendDelay)
	words, ok := s.Words("socket")
	if !ok {
		return fmt.Errorf("[NIC] requires a socket specification, line %d", s.Line)
	}
	sock, err := config.ParseSocketSpec(words)
	if err != nil {
		return fmt.Errorf("[NIC] socket: %w", err)
	}
	spec.Socket = sock
	NICs = append(NICs, spec)
	return nil
}

func parsePlugin(s config.Section) error {
	vendor, err := vendorOf(s)
	if err != nil {
		return err
	}
	spec := PluginSpec{Vendor: vendor}
	words, ok := s.Words("socket")
	if !ok {
		return fmt.Errorf("[Plugin] requires a socket specification, line %d", s.Line)
	}
	sock, err := config.ParseSocketSpec(words)
	if err != nil {
		return fmt.Errorf("[Plugin] socket: %w", err)
	}
	spec.Socket = sock
	if v, ok := s.Get("async"); ok {
		spec.Async = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := s.Get("options"); ok {
		spec.Options = v
	}
	Plugins = append(Plugins, spec)
	return nil
}
