/*
 * riscv-iommu - Queue engines (CQ/FQ/PQ ring state machines).
 *
 * Copyright 2026, The riscv-iommu authors
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

// Package queue implements component B: the uniform ring state
// machine shared by CQ, FQ and PQ. Grounded on the subchannel control
// state machine in the teacher's emu/sys_channel/channel.go (enable/
// disable, busy/status bit handling), generalized from one CCW
// chaining state machine to the spec's three interchangeable rings.
package queue

import (
	"log/slog"
	"sync"

	"github.com/rcornwell/riscv-iommu/iommu/host"
)

// Kind selects ring entry size and which sticky error bits apply.
type Kind int

const (
	CQ Kind = iota
	FQ
	PQ
)

func (k Kind) String() string {
	switch k {
	case CQ:
		return "CQ"
	case FQ:
		return "FQ"
	case PQ:
		return "PQ"
	default:
		return "?"
	}
}

func (k Kind) entrySize() int {
	switch k {
	case CQ:
		return 16
	case FQ:
		return 32
	default: // PQ
		return 16
	}
}

// Sticky error bits, positioned to match their home field in the
// CQCSR/FQCSR/PQCSR registers (spec.md §3) so the core can fold
// ErrorBits() straight into the status register without translating
// between two bit encodings.
const (
	ErrMemFault uint32 = 1 << 8  // CQMF / FQMF / PQMF
	ErrCmdIll   uint32 = 1 << 9  // CQ only
	ErrOverflow uint32 = 1 << 9  // FQOF / PQOF (disjoint from ErrCmdIll: different queue kinds)
	ErrCmdTo    uint32 = 1 << 10 // CQ only
	ErrFenceWIP uint32 = 1 << 11 // CQ only
)

// Engine is one ring's state: base/size, head/tail, enable/on/busy,
// sticky errors and interrupt-enable. It carries its own mutex so
// producer pushes from the translate path (which must never block on
// the core-level command-dispatch mutex, per spec.md §5) can append
// concurrently with a consumer drain elsewhere.
type Engine struct {
	mu sync.Mutex

	kind Kind
	mem  host.Memory

	base uint64 // basePPN << 12
	mask uint32 // size - 1
	head uint32
	tail uint32

	enabled bool
	on      bool
	busy    bool
	ie      bool
	errBits uint32
}

func New(kind Kind, mem host.Memory) *Engine {
	return &Engine{kind: kind, mem: mem}
}

func (e *Engine) Kind() Kind { return e.kind }

// Enable latches base/size from the control register fields, resets
// head and tail, clears sticky errors, and marks the ring ON. Mirrors
// spec.md §4.2's enable transition (EN=1, ON=0).
func (e *Engine) Enable(basePPN uint64, log2sz uint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	size := uint32(1) << (log2sz + 1)
	e.base = basePPN << 12
	e.mask = size - 1
	e.head = 0
	e.tail = 0
	e.errBits = 0
	e.enabled = true
	e.on = true
	e.busy = false
	slog.Debug("queue enabled", "queue", e.kind.String(), "size", size, "base", e.base)
}

// Disable marks the ring OFF. It does not touch the register file, and
// iommu/core's disable path does not change the ro mask of the head or
// tail register either: their writability is the same after a disable
// as before it.
func (e *Engine) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
	e.on = false
	e.busy = false
	slog.Debug("queue disabled", "queue", e.kind.String())
}

func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

func (e *Engine) On() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.on
}

func (e *Engine) SetBusy(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = v
}

func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

func (e *Engine) SetIE(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ie = v
}

func (e *Engine) IE() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ie
}

// ErrorBits returns the sticky error bit union.
func (e *Engine) ErrorBits() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errBits
}

// ActiveError reports whether any sticky error bit is set, the union
// spec.md §4.8 feeds into IPSR recomputation.
func (e *Engine) ActiveError() bool {
	return e.ErrorBits() != 0
}

// ClearErrorBits clears the given sticky bits (applied by the core's
// write-1-to-clear handling on the CSR register).
func (e *Engine) ClearErrorBits(mask uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errBits &^= mask
}

func (e *Engine) setErrorBit(bit uint32) {
	e.errBits |= bit
}

func (e *Engine) Head() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head
}

func (e *Engine) Tail() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tail
}

// SetHead installs a software-supplied consumer index (FQH/PQH for
// FQ/PQ, or the device-internal head mirror for CQ).
func (e *Engine) SetHead(v uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.head = v & e.mask
}

// SetTail installs a software-supplied producer index (CQT).
func (e *Engine) SetTail(v uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tail = v & e.mask
}

// Append is the producer side used by FQ and PQ (spec.md §4.2):
// silently drops if not ON or a sticky error is latched, sets
// Overflow and drops on a full ring, otherwise DMA-writes the entry
// and advances tail. Returns whether the entry was actually stored.
func (e *Engine) Append(entry []byte) (stored bool, err error) {
	e.mu.Lock()
	if !e.on || e.errBits != 0 {
		e.mu.Unlock()
		return false, nil
	}
	tail := e.tail
	next := (tail + 1) & e.mask
	if e.head == next {
		e.setErrorBit(ErrOverflow)
		e.mu.Unlock()
		return false, nil
	}
	base := e.base
	sz := e.kind.entrySize()
	e.mu.Unlock()

	addr := base + uint64(tail)*uint64(sz)
	if werr := e.mem.DMAWrite(addr, entry); werr != nil {
		e.mu.Lock()
		e.setErrorBit(ErrMemFault)
		e.mu.Unlock()
		return false, werr
	}

	e.mu.Lock()
	e.tail = next
	e.mu.Unlock()
	return true, nil
}

// Fetch is the consumer side used by CQ: reads the entry at head
// without advancing it. The caller decides whether to advance (§4.7:
// command failures stop the consumer without advancing head).
func (e *Engine) Fetch() (entry []byte, empty bool, err error) {
	e.mu.Lock()
	head, tail, base := e.head, e.tail, e.base
	sz := e.kind.entrySize()
	e.mu.Unlock()

	if head == tail {
		return nil, true, nil
	}
	buf := make([]byte, sz)
	addr := base + uint64(head)*uint64(sz)
	if rerr := e.mem.DMARead(addr, buf); rerr != nil {
		e.mu.Lock()
		e.setErrorBit(ErrMemFault)
		e.mu.Unlock()
		return nil, false, rerr
	}
	return buf, false, nil
}

// AdvanceHead moves the CQ consumer index forward by one entry.
func (e *Engine) AdvanceHead() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.head = (e.head + 1) & e.mask
	return e.head
}

// Empty reports head == tail.
func (e *Engine) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head == e.tail
}

func (e *Engine) SetErrorBit(bit uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setErrorBit(bit)
}
