/*
 * riscv-iommu - Per-requester-id address-space registry.
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

// Package addrspace implements component F: the per-requester-id
// address-space registry. Grounded on emu/event.EventList's head/tail
// singly-linked list shape and on emu/sys_channel's chanUnit per-unit
// registry (one entry per observed unit address, searched linearly).
package addrspace

import (
	"github.com/rcornwell/riscv-iommu/iommu/host"
)

// Space is the per-device IOMMU memory region described by spec.md
// §4.9: one per observed requester-id, exposing a translate callback
// to the host.
type Space struct {
	next *Space

	Bus      int
	Device   int
	Function int
	DeviceID uint32

	NotifierEnabled bool

	translate host.Translator
}

func (s *Space) matches(bus, device, function int) bool {
	return s.Bus == bus && s.Device == device && s.Function == function
}

// Translate forwards req to the space's translation callback.
func (s *Space) Translate(req *host.Request) error {
	return s.translate.Translate(req)
}

// Registry is one IOMMU instance's address-space list, plus an
// optional link to the next IOMMU instance on the same bus (spec.md
// §4.9: "a bus may host multiple IOMMU instances, linked among
// themselves, tried in insertion order until one returns a space").
// The registry has no lock of its own, and core.Device.Registry hands
// it out without holding the core mutex: Find and FindOrCreate run
// unsynchronized.
type Registry struct {
	head *Space
	tail *Space
	next *Registry

	PasidBits uint
}

func New(pasidBits uint) *Registry {
	return &Registry{PasidBits: pasidBits}
}

// Chain links r's registry search to a second IOMMU instance on the
// same bus, tried after r.
func (r *Registry) Chain(next *Registry) {
	r.next = next
}

// Find searches r's own list, then any chained registries, in
// insertion order, returning the first matching space.
func (r *Registry) Find(bus, device, function int) (*Space, bool) {
	for reg := r; reg != nil; reg = reg.next {
		for s := reg.head; s != nil; s = s.next {
			if s.matches(bus, device, function) {
				return s, true
			}
		}
	}
	return nil, false
}

// FindOrCreate implements spec.md §4.9's "on first find_address_space
// for a non-IOMMU device, allocate a per-device space" behavior. host
// is asked to register the new space's translate callback so DMA
// issued against (bus, device, function) is routed back through
// translate.
func (r *Registry) FindOrCreate(bus, device, function int, deviceID uint32, translate host.Translator, registerWith host.AddressSpaceHost) *Space {
	if s, ok := r.Find(bus, device, function); ok {
		return s
	}
	s := &Space{Bus: bus, Device: device, Function: function, DeviceID: deviceID, translate: translate}
	if r.tail == nil {
		r.head = s
		r.tail = s
	} else {
		r.tail.next = s
		r.tail = s
	}
	if registerWith != nil {
		registerWith.RegisterAddressSpace(bus, device, function, s)
	}
	return s
}

// TotalIndices reports 2^pasid_bits, the region's total context-index
// count (spec.md §4.9).
func (r *Registry) TotalIndices() uint64 {
	return uint64(1) << r.PasidBits
}

// ContextIndex implements spec.md §4.9: the context-index of an access
// equals its process_id (PASID) if the host transaction carries one,
// otherwise 0.
func ContextIndex(hasPASID bool, pasid uint32) uint32 {
	if hasPASID {
		return pasid
	}
	return 0
}
