/*
 * yams - Virtual network interface
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

// Package nic is the virtual network interface: DMA-driven send/receive
// over either UDP multicast or a directory of Unix-domain sockets, per
// SPEC_FULL.md §4.5.
package nic

import (
	"math/rand"
	"net"
	"time"

	"github.com/yams-go/yams/internal/device"
)

// Port offsets inside the device's window.
const (
	PortStatus  = 0
	PortCommand = 4
	PortHWAddr  = 8
	PortMTU     = 12
	PortDMAAddr = 16
)

// Commands written to PortCommand.
const (
	CmdReceive = iota + 1
	CmdSend
	CmdClearRXIRQ
	CmdClearSIRQ
	CmdClearRXBusy
	CmdEnterPromisc
	CmdExitPromisc
)

// STATUS bits.
const (
	statusRXBusy uint32 = 1 << 0
	statusSBusy  uint32 = 1 << 1
	statusRXIRQ  uint32 = 1 << 2
	statusSIRQ   uint32 = 1 << 3
	statusPromisc uint32 = 1 << 4
)

const broadcastAddr uint32 = 0xFFFF_FFFF

// Peer is one destination address a frame is sent to with
// net.PacketConn.WriteTo: a UDP multicast group or one Unix-domain socket
// out of the sibling directory.
type Peer interface {
	net.Addr
}

// PeerLister resolves the current broadcast targets at send time. The
// PF_UNIX sibling-directory mode uses this instead of a fixed peer list,
// since sockets can appear and disappear between transmissions.
type PeerLister func() []net.Addr

// NIC is one virtual network card.
type NIC struct {
	sys  device.System
	desc device.Descriptor

	conn   net.PacketConn
	peers  []net.Addr
	lister PeerLister

	hwAddr      uint32
	mtu         uint32
	dmaAddr     uint32
	reliability int // 0..100, percent chance a send actually goes out

	dmaDelayCycles  uint64
	sendDelayCycles uint64

	promiscuous bool

	rxBusy, sBusy   bool
	rxEvent, sEvent uint64
	sArmed          bool
	errBits         uint32

	recvBuffer []byte
	sendBuffer []byte
}

// New creates a NIC. conn is the PF_INET multicast socket or PF_UNIX
// datagram socket already bound by the caller; peers is who Send
// broadcasts to for a fixed-peer transport (UDP multicast). lister, if
// non-nil, overrides peers and is consulted fresh on every send, the
// PF_UNIX sibling-directory broadcast mode.
func New(sys device.System, conn net.PacketConn, peers []net.Addr, lister PeerLister, hwAddr, mtu uint32, reliability int, dmaDelay, sendDelay uint64, portBase uint32, irq int) *NIC {
	return &NIC{
		sys:             sys,
		conn:            conn,
		peers:           peers,
		lister:          lister,
		hwAddr:          hwAddr,
		mtu:             mtu,
		reliability:     reliability,
		dmaDelayCycles:  dmaDelay,
		sendDelayCycles: sendDelay,
		recvBuffer:      make([]byte, mtu),
		sendBuffer:      make([]byte, mtu),
		desc: device.Descriptor{
			TypeCode:   0x0300,
			IRQ:        irq,
			PortBase:   portBase,
			PortLength: 20,
		},
	}
}

func (n *NIC) Descriptor() device.Descriptor { return n.desc }

func (n *NIC) ReadPort(port uint32) (uint32, bool) {
	switch port - n.desc.PortBase {
	case PortStatus:
		v := n.errBits
		if n.rxBusy {
			v |= statusRXBusy
		}
		if n.sBusy {
			v |= statusSBusy
		}
		if n.promiscuous {
			v |= statusPromisc
		}
		return v, true
	case PortHWAddr:
		return n.hwAddr, true
	case PortMTU:
		return n.mtu, true
	case PortDMAAddr:
		return n.dmaAddr, true
	default:
		return 0, false
	}
}

func (n *NIC) WritePort(port uint32, value uint32) bool {
	switch port - n.desc.PortBase {
	case PortCommand:
		n.execCommand(value)
		return true
	case PortDMAAddr:
		n.dmaAddr = value
		return true
	default:
		return false
	}
}

func (n *NIC) execCommand(cmd uint32) {
	switch cmd {
	case CmdReceive:
		if !n.rxBusy {
			n.rxBusy = true
			n.rxEvent = n.sys.Cycles() + n.dmaDelayCycles
			copy(n.sys.Memory().Slice(n.dmaAddr, len(n.recvBuffer)), n.recvBuffer)
		}
	case CmdSend:
		if !n.sBusy {
			n.sBusy = true
			n.sArmed = false
			copy(n.sendBuffer, n.sys.Memory().Slice(n.dmaAddr, len(n.sendBuffer)))
			n.sEvent = n.sys.Cycles() + n.sendDelayCycles
		}
	case CmdClearRXIRQ:
		n.errBits &^= statusRXIRQ
	case CmdClearSIRQ:
		n.errBits &^= statusSIRQ
	case CmdClearRXBusy:
		n.rxBusy = false
	case CmdEnterPromisc:
		n.promiscuous = true
	case CmdExitPromisc:
		n.promiscuous = false
	}
}

func (n *NIC) Tick() {
	cycle := n.sys.Cycles()

	if n.rxBusy && cycle >= n.rxEvent {
		n.rxBusy = false
		n.errBits |= statusRXIRQ
		n.sys.RaiseIRQ(n.desc.IRQ)
	}

	if n.sBusy && cycle >= n.sEvent {
		if !n.sArmed {
			n.sArmed = true
			n.doSend()
			n.sEvent = cycle + n.sendDelayCycles
		} else {
			n.sBusy = false
			n.errBits |= statusSIRQ
			n.sys.RaiseIRQ(n.desc.IRQ)
		}
	}

	if cycle&0xFFF == 0 {
		n.pollRecv()
	}
}

func (n *NIC) doSend() {
	if n.conn == nil {
		return
	}
	if rand.Intn(100) >= n.reliability {
		return // dropped
	}
	peers := n.peers
	if n.lister != nil {
		peers = n.lister()
	}
	for _, peer := range peers {
		_, _ = n.conn.WriteTo(n.sendBuffer, peer)
	}
}

func (n *NIC) pollRecv() {
	if n.conn == nil {
		return
	}
	_ = n.conn.SetReadDeadline(time.Now())
	buf := make([]byte, len(n.recvBuffer))
	nRead, _, err := n.conn.ReadFrom(buf)
	if err != nil || nRead == 0 {
		return
	}
	dest := uint32(0)
	if nRead >= 4 {
		dest = uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	}
	if !n.promiscuous && dest != n.hwAddr && dest != broadcastAddr {
		return
	}
	copy(n.recvBuffer, buf)
}
