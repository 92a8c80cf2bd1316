/*
 * riscv-iommu - Minimal flat host memory/interrupt simulation.
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

// Package hostsim is the minimal host emulation the cmd/iommuctl
// console runs the core against: a flat,
// range-checked byte store and a recording interrupt sink. Adapted
// from emu/memory's flat fixed-size array with range-checked
// GetWord/PutWord, reworked from S370's word-addressed, fixed
// 16M-word space into an arbitrary-size byte store addressed by the
// host.Memory interface's byte-range DMARead/DMAWrite.
package hostsim

import (
	"fmt"
	"sync"

	"github.com/rcornwell/riscv-iommu/iommu/host"
)

// Memory is a flat, range-checked physical address space.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

// NewMemory allocates a zero-filled physical address space of size
// bytes.
func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

func (m *Memory) bounds(addr uint64, n int) error {
	if addr+uint64(n) > uint64(len(m.data)) {
		return fmt.Errorf("hostsim: access [%#x, %#x) beyond memory size %#x", addr, addr+uint64(n), len(m.data))
	}
	return nil
}

// DMARead reads len(buf) bytes starting at addr.
func (m *Memory) DMARead(addr uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(addr, len(buf)); err != nil {
		return err
	}
	copy(buf, m.data[addr:])
	return nil
}

// DMAWrite writes buf starting at addr.
func (m *Memory) DMAWrite(addr uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(addr, len(buf)); err != nil {
		return err
	}
	copy(m.data[addr:], buf)
	return nil
}

// Load copies data into memory starting at addr, for test and console
// fixture setup; panics on an out-of-range load since it only ever
// runs against addresses the caller controls.
func (m *Memory) Load(addr uint64, data []byte) {
	if err := m.DMAWrite(addr, data); err != nil {
		panic(err)
	}
}

// Interrupts records every line raised, for console inspection and
// test assertions.
type Interrupts struct {
	mu    sync.Mutex
	lines []int
}

func (i *Interrupts) RaiseInterrupt(line int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lines = append(i.lines, line)
}

// Drain returns and clears the recorded interrupt lines, in the order
// raised.
func (i *Interrupts) Drain() []int {
	i.mu.Lock()
	defer i.mu.Unlock()
	lines := i.lines
	i.lines = nil
	return lines
}

// Bus is a trivial bus/device-tree stand-in implementing
// host.AddressSpaceHost: it just remembers the last space registered
// per (bus, device, function), enough for the console to exercise
// find_address_space without a real PCI-style device tree.
type Bus struct {
	mu     sync.Mutex
	spaces map[[3]int]host.Translator
}

func NewBus() *Bus {
	return &Bus{spaces: map[[3]int]host.Translator{}}
}

func (b *Bus) RegisterAddressSpace(bus, device, function int, translate host.Translator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spaces[[3]int{bus, device, function}] = translate
}

func (b *Bus) Lookup(bus, device, function int) (host.Translator, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.spaces[[3]int{bus, device, function}]
	return t, ok
}
