/*
 * yams - Asynchronous input helper
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

// Package asyncio is the small cooperative interface the core uses once a
// tick to discover which registered file descriptors have input waiting,
// without busy-waiting inside the single-threaded main loop. Three
// interchangeable backends exist; the core only ever sees lock/check/
// verify/unlock, per SPEC_FULL.md §9.
package asyncio

import (
	"sync"
	"syscall"
)

// Backend selects how readiness is discovered between ticks.
type Backend int

const (
	// BackendPoll does a zero-timeout select every N ticks, inline on the
	// main goroutine. Simplest, and the default: no extra goroutine, no
	// signal handling, at the cost of checking less often than every tick.
	BackendPoll Backend = iota

	// BackendThread runs a background goroutine that blocks in select and
	// writes readiness into a shared bitmap, consumed at tick boundaries.
	BackendThread

	// BackendSubprocess names the teacher-era fork+SIGUSR1 design, with a
	// goroutine instead of a subprocess (no fork in Go). It runs the same
	// background loop and shared readiness map as BackendThread.
	BackendSubprocess
)

// Helper discovers which of a set of registered fds are readable, once per
// tick, and reports the latched result until Unlock clears it.
type Helper struct {
	mu      sync.Mutex
	backend Backend
	fds     []int
	ready   map[int]bool

	pollEvery int
	pollCount int

	wake chan struct{}
	stop chan struct{}
}

// New creates a Helper using the given backend. pollEvery is only
// meaningful for BackendPoll: how many ticks between polls.
func New(backend Backend, pollEvery int) *Helper {
	if pollEvery <= 0 {
		pollEvery = 1
	}
	h := &Helper{
		backend:   backend,
		ready:     make(map[int]bool),
		pollEvery: pollEvery,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	if backend == BackendThread || backend == BackendSubprocess {
		go h.backgroundLoop()
	}
	return h
}

// Register adds fd to the set of descriptors watched for readability.
func (h *Helper) Register(fd int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.fds {
		if f == fd {
			return
		}
	}
	h.fds = append(h.fds, fd)
	select {
	case h.wake <- struct{}{}: // rouse a background loop idling with no fds
	default:
	}
}

// Unregister removes fd from the watched set.
func (h *Helper) Unregister(fd int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.fds[:0]
	for _, f := range h.fds {
		if f != fd {
			out = append(out, f)
		}
	}
	h.fds = out
	delete(h.ready, fd)
}

// Lock latches which registered fds currently have input available. Called
// once per tick by the device layer before any ReadPort/Tick calls.
func (h *Helper) Lock() {
	switch h.backend {
	case BackendPoll:
		h.pollCount++
		if h.pollCount < h.pollEvery {
			return
		}
		h.pollCount = 0
		h.mu.Lock()
		h.pollOnce()
		h.mu.Unlock()
	default:
		// BackendThread/BackendSubprocess already maintain h.ready
		// continuously; Lock is a no-op synchronization point, matching
		// the teacher's cooperative-lock discipline even though there is
		// no simulator state to protect here.
	}
}

// Check returns the latched readability flag for fd.
func (h *Helper) Check(fd int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready[fd]
}

// Verify re-confirms fd with a zero-timeout select, to disambiguate a
// shared fd (e.g. multiple devices on one multiplexed socket) from a stale
// latch.
func (h *Helper) Verify(fd int) bool {
	var rfds syscall.FdSet
	fdSet(&rfds, fd)
	tv := syscall.Timeval{}
	n, err := syscall.Select(fd+1, &rfds, nil, nil, &tv)
	return err == nil && n > 0
}

// Unlock clears the latched flags; called at the end of the tick's device
// pass.
func (h *Helper) Unlock() {
	if h.backend != BackendPoll {
		return
	}
	h.mu.Lock()
	for k := range h.ready {
		delete(h.ready, k)
	}
	h.mu.Unlock()
}

// Close stops the background goroutine, if any.
func (h *Helper) Close() {
	if h.backend == BackendThread || h.backend == BackendSubprocess {
		close(h.stop)
	}
}

func (h *Helper) pollOnce() {
	for _, fd := range h.fds {
		h.ready[fd] = h.Verify(fd)
	}
}

func (h *Helper) backgroundLoop() {
	for {
		select {
		case <-h.stop:
			return
		default:
		}
		h.mu.Lock()
		fds := append([]int(nil), h.fds...)
		h.mu.Unlock()
		if len(fds) == 0 {
			select {
			case <-h.stop:
				return
			case <-h.wake:
			}
			continue
		}
		var rfds syscall.FdSet
		maxFd := 0
		for _, fd := range fds {
			fdSet(&rfds, fd)
			if fd > maxFd {
				maxFd = fd
			}
		}
		tv := syscall.Timeval{Sec: 0, Usec: 250_000}
		n, err := syscall.Select(maxFd+1, &rfds, nil, nil, &tv)
		if err != nil || n == 0 {
			continue
		}
		h.mu.Lock()
		for _, fd := range fds {
			if fdIsSet(&rfds, fd) {
				h.ready[fd] = true
			}
		}
		h.mu.Unlock()
	}
}

func fdSet(set *syscall.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *syscall.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
