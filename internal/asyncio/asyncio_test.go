/*
 * yams - Asynchronous input helper test set.
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

package asyncio

import "testing"

func TestRegisterDedupsFd(t *testing.T) {
	h := New(BackendPoll, 1)
	h.Register(5)
	h.Register(5)
	if len(h.fds) != 1 {
		t.Errorf("fds after registering the same fd twice = %v, want length 1", h.fds)
	}
}

func TestCheckDefaultsFalseForUnseenFd(t *testing.T) {
	h := New(BackendPoll, 1)
	h.Register(5)
	if h.Check(5) {
		t.Error("Check on a freshly registered fd should default to false")
	}
}

func TestUnregisterRemovesFdAndClearsReady(t *testing.T) {
	h := New(BackendPoll, 1)
	h.Register(5)
	h.ready[5] = true
	h.Unregister(5)
	if len(h.fds) != 0 {
		t.Errorf("fds after Unregister = %v, want empty", h.fds)
	}
	if h.Check(5) {
		t.Error("Check after Unregister should report false")
	}
}

func TestUnlockClearsReadyForPollBackend(t *testing.T) {
	h := New(BackendPoll, 1)
	h.ready[5] = true
	h.Unlock()
	if h.Check(5) {
		t.Error("Unlock should clear the latched readiness for BackendPoll")
	}
}

func TestUnlockIsNoopForThreadBackend(t *testing.T) {
	h := New(BackendThread, 1)
	defer h.Close()
	h.ready[5] = true
	h.Unlock()
	if !h.Check(5) {
		t.Error("Unlock should be a no-op for BackendThread, which maintains readiness continuously")
	}
}

func TestNewClampsNonPositivePollEvery(t *testing.T) {
	h := New(BackendPoll, 0)
	if h.pollEvery != 1 {
		t.Errorf("pollEvery with a non-positive input = %d, want 1", h.pollEvery)
	}
}
