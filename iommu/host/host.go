/*
 * riscv-iommu - Host collaborator interfaces.
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

// Package host declares the narrow surface the IOMMU core calls out
// through. The host emulation framework that implements these
// interfaces (bus/device tree, interrupt delivery, memory regions) is
// out of scope for this module; the core only ever sees them as
// interfaces.
package host

// Memory is the DMA surface: physical-address loads and stores the
// core issues while walking directory trees, fetching MSI page table
// entries, and draining or filling queues.
type Memory interface {
	// DMARead reads len(buf) bytes from physical address addr into buf.
	// Returns an error if the access could not be completed.
	DMARead(addr uint64, buf []byte) error
	// DMAWrite writes buf to physical address addr.
	DMAWrite(addr uint64, buf []byte) error
}

// Interrupts lets the core raise one of the wire-signal interrupt
// lines routed to it through IVEC.
type Interrupts interface {
	RaiseInterrupt(line int)
}

// AddressSpaceHost is implemented by the bus/device-tree layer so the
// registry (component F) can register a translation-providing memory
// region for a given bus/device/function without knowing anything
// about the concrete bus model.
type AddressSpaceHost interface {
	// RegisterAddressSpace installs translate as the IOMMU-backed
	// memory region for the given bus, device and function.
	RegisterAddressSpace(bus, device, function int, translate Translator)
}

// Translator performs one device-initiated memory access.
type Translator interface {
	Translate(req *Request) error
}

// Request is a single DMA access presented to the translate callback.
type Request struct {
	IOVA           uint64
	Perm           Perm
	DeviceID       uint32
	ProcessID      uint32
	HasProcessID   bool
	TranslatedAddr uint64
	AddrMask       uint64
	TargetAS       Memory
}

// Perm is the requested/resulting access permission of a translation.
type Perm int

const (
	PermNone Perm = iota
	PermRead
	PermWrite
	PermReadWrite
)

func (p Perm) HasWrite() bool {
	return p == PermWrite || p == PermReadWrite
}

func (p Perm) HasRead() bool {
	return p == PermRead || p == PermReadWrite
}
