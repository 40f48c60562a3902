/*
 * yams - Main process test set.
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

package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/yams-go/yams/config/bootconfig"
	"github.com/yams-go/yams/internal/bus"
	config "github.com/yams-go/yams/config/configparser"
)

func TestPortAllocatorStartsAtBusDefaultBase(t *testing.T) {
	a := newPortAllocator()
	if got := a.alloc(0); got != bus.DefaultPortBase {
		t.Errorf("first alloc = %#x, want %#x", got, bus.DefaultPortBase)
	}
}

func TestPortAllocatorRoundsUpToFourBytes(t *testing.T) {
	a := newPortAllocator()
	first := a.alloc(6) // leaves next misaligned by 2
	second := a.alloc(4)
	if second != first+8 {
		t.Errorf("second alloc = %#x, want %#x (first + 6 rounded up to 8)", second, first+8)
	}
}

func TestPortAllocatorConsecutiveAllocsDoNotOverlap(t *testing.T) {
	a := newPortAllocator()
	first := a.alloc(12)
	second := a.alloc(20)
	if second < first+12 {
		t.Errorf("second alloc %#x overlaps first window [%#x,%#x)", second, first, first+12)
	}
}

func TestPortAllocatorMMAPStartsPageAlignedPastPorts(t *testing.T) {
	a := newPortAllocator()
	a.alloc(12)
	mmapBase := a.allocMMAP(100)
	if mmapBase%pageSize != 0 {
		t.Errorf("mmapBase = %#x, want page-aligned", mmapBase)
	}
	if mmapBase < a.next {
		t.Errorf("mmapBase %#x should land at or past the port allocator's cursor %#x", mmapBase, a.next)
	}
}

func TestPortAllocatorMMAPGrowsByWholePages(t *testing.T) {
	a := newPortAllocator()
	first := a.allocMMAP(1) // rounds up to one page
	second := a.allocMMAP(pageSize + 1) // rounds up to two pages
	if second != first+pageSize {
		t.Errorf("second mmap alloc = %#x, want %#x", second, first+pageSize)
	}
	if a.mmapNext != second+2*pageSize {
		t.Errorf("mmapNext = %#x, want %#x", a.mmapNext, second+2*pageSize)
	}
}

func TestAlignPageRoundsUpUnlessAlreadyAligned(t *testing.T) {
	cases := []struct {
		in, want uint32
	}{
		{0, 0},
		{1, pageSize},
		{pageSize, pageSize},
		{pageSize + 1, 2 * pageSize},
	}
	for _, c := range cases {
		if got := alignPage(c.in); got != c.want {
			t.Errorf("alignPage(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestStringListAccumulatesAndJoins(t *testing.T) {
	var sl stringList
	if err := sl.Set("one", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := sl.Set("two", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, want := sl.String(), "one,two"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if len(sl.values) != 2 {
		t.Errorf("len(values) = %d, want 2", len(sl.values))
	}
}

func TestDialStreamRejectsUnsupportedKind(t *testing.T) {
	if _, err := dialStream(config.SocketSpec{Kind: "udp"}); err == nil {
		t.Error("dialStream should reject a udp socket spec")
	}
}

func TestDialPluginSocketRejectsUnsupportedKind(t *testing.T) {
	if _, err := dialPluginSocket(config.SocketSpec{Kind: "udp"}); err == nil {
		t.Error("dialPluginSocket should reject a udp socket spec")
	}
}

func TestSiblingSocketsFindsOnlySocketFiles(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "a.sock")
	conn, err := net.ListenPacket("unixgram", sockPath)
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer conn.Close()

	if err := os.WriteFile(filepath.Join(dir, "not-a-socket.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	peers := siblingSockets(dir)
	if len(peers) != 1 {
		t.Fatalf("siblingSockets found %d peers, want 1: %v", len(peers), peers)
	}
	if peers[0].String() != sockPath {
		t.Errorf("peer = %q, want %q", peers[0].String(), sockPath)
	}
}

func TestSiblingSocketsMissingDirReturnsNil(t *testing.T) {
	if got := siblingSockets(filepath.Join(t.TempDir(), "nope")); got != nil {
		t.Errorf("siblingSockets(missing dir) = %v, want nil", got)
	}
}

func TestAttachNICRejectsUnsupportedSocketKind(t *testing.T) {
	alloc := newPortAllocator()
	spec := bootconfig.NICSpec{Socket: config.SocketSpec{Kind: "tcp"}}
	if err := attachNIC(nil, alloc, spec); err == nil {
		t.Error("attachNIC should reject a tcp socket spec")
	}
}

func TestStdioConnWritesToStdout(t *testing.T) {
	var c stdioConn
	// A zero-length write should succeed trivially without touching any
	// real terminal state.
	if _, err := c.Write(nil); err != nil {
		t.Errorf("stdioConn.Write(nil) = %v, want nil", err)
	}
}
