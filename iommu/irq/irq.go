/*
 * riscv-iommu - Interrupt-pending recomputation and notification.
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

// Package irq implements component H: IPSR recomputation as a pure
// function of queue CSR state, and the notify() wire-interrupt path.
// Grounded on emu/sys_channel's status-bit union used to decide
// IrqPending, generalized from one subchannel's status byte to the
// three-bit CIP/FIP/PIP vocabulary.
package irq

import "github.com/rcornwell/riscv-iommu/iommu/host"

// Vector selects which IPSR bit a queue owns.
type Vector uint

const (
	CQVector Vector = 0
	FQVector Vector = 1
	PQVector Vector = 2
)

// RecomputeBit derives the effective IPSR bit for one queue from its
// IE flag and whether it currently has an active (sticky) error,
// per spec.md §4.8: write-1-to-clear is applied first by the caller,
// then this re-derivation overrides the result.
func RecomputeBit(ipsr uint32, vector Vector, ie, hasActiveError bool) uint32 {
	bit := uint32(1) << uint(vector)
	if ie && hasActiveError {
		return ipsr | bit
	}
	return ipsr &^ bit
}

// Notify implements spec.md §4.8's notify(vector): a no-op under
// FCTL.WSI (wire-signal mode is left to the host); otherwise it sets
// the vector's IPSR bit and, if it was previously clear, raises the
// interrupt line selected by the matching IVEC nibble. The caller must
// hold the core mutex, which already serializes all queue-processing
// paths that can reach here.
func Notify(ipsr *uint32, wsi bool, vector Vector, ivec uint64, interrupts host.Interrupts) {
	if wsi {
		return
	}
	bit := uint32(1) << uint(vector)
	wasClear := *ipsr&bit == 0
	*ipsr |= bit
	if wasClear && interrupts != nil {
		line := int((ivec >> (uint(vector) * 4)) & 0xF)
		interrupts.RaiseInterrupt(line)
	}
}
