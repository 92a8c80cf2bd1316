/*
 * riscv-iommu - MSI/MRIF redirector.
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

// Package msi implements component D: MSI pattern matching and the
// BASIC/MRIF write paths. Bit masks are named constants, in the style
// of the teacher's emu/sys_channel/chandefs.go status-bit table,
// rather than inline magic numbers.
package msi

import (
	"encoding/binary"

	"github.com/rcornwell/riscv-iommu/iommu/directory"
	"github.com/rcornwell/riscv-iommu/iommu/fault"
	"github.com/rcornwell/riscv-iommu/iommu/host"
)

// MSI PTE bits (spec.md §3).
const (
	pteV uint64 = 1 << 0
	pteC uint64 = 1 << 1
	// Bits [3:2] select M.
)

const (
	modeBasic uint64 = 0
	modeMRIF  uint64 = 1
)

const pteCustom = 0xF // any M value other than BASIC/MRIF.

const pageOffsetMask uint64 = 0xFFF

// Matches reports whether gpa matches the context's MSI pattern
// (spec.md §4.6): ctx.msiptp.MODE == FLAT and the masked XOR of the
// GPA's page number against the pattern is zero.
func Matches(ctx *directory.Context, gpa uint64) bool {
	if ctx.MSIPTP&0xF != directory.MSIPTPFlat {
		return false
	}
	page := gpa >> 12
	return (page^ctx.MSIAddrPattern)&^ctx.MSIAddrMask == 0
}

// Pext extracts the bits of value selected by mask and packs them low,
// the portable bit-extract spec.md §9 calls for (never relies on a
// hardware pext instruction).
func Pext(value, mask uint64) uint64 {
	var result uint64
	var outBit uint
	for bit := uint(0); bit < 64; bit++ {
		if mask&(1<<bit) != 0 {
			if value&(1<<bit) != 0 {
				result |= 1 << outBit
			}
			outBit++
		}
	}
	return result
}

// Write performs the MSI write path (spec.md §4.6). data holds the
// size-byte little-endian payload the device attempted to write to
// gpa.
func Write(mem host.Memory, ctx *directory.Context, gpa uint64, data []byte) fault.Cause {
	if !Matches(ctx, gpa) {
		return fault.MSILoadFault
	}

	intn := Pext(gpa>>12, ctx.MSIAddrMask)
	if intn >= 256 {
		return fault.MSILoadFault
	}

	pteAddr := (ctx.MSIPTP >> 10 << 12) + intn*16
	raw := make([]byte, 16)
	if err := mem.DMARead(pteAddr, raw); err != nil {
		return fault.MSILoadFault
	}
	lo := binary.LittleEndian.Uint64(raw[0:8])
	hi := binary.LittleEndian.Uint64(raw[8:16])

	if lo&pteV == 0 || lo&pteC != 0 {
		return fault.MSIInvalid
	}
	mode := (lo >> 2) & 0x3

	switch mode {
	case modeBasic:
		ppn := lo >> 10
		addr := (ppn << 12) + (gpa & pageOffsetMask)
		if err := mem.DMAWrite(addr, data); err != nil {
			return fault.MSIWrFault
		}
		return fault.None

	case modeMRIF:
		dataVal := leValue(data)
		if dataVal > 2047 || gpa&3 != 0 {
			return fault.MSIMisconfigured
		}
		mrifAddr := lo >> 10 << 9
		pendingAddr := (mrifAddr << 0) | ((dataVal & 0x7C0) >> 3)
		pendingMask := uint64(1) << (dataVal & 0x3F)

		pendBuf := make([]byte, 8)
		if err := mem.DMARead(pendingAddr, pendBuf); err != nil {
			return fault.MSILoadFault
		}
		pend := binary.LittleEndian.Uint64(pendBuf) | pendingMask
		binary.LittleEndian.PutUint64(pendBuf, pend)
		if err := mem.DMAWrite(pendingAddr, pendBuf); err != nil {
			return fault.MSIWrFault
		}

		enableBuf := make([]byte, 8)
		if err := mem.DMARead(pendingAddr+8, enableBuf); err != nil {
			return fault.MSILoadFault
		}
		enable := binary.LittleEndian.Uint64(enableBuf)
		if enable&pendingMask == 0 {
			return fault.None
		}

		nid := hi & 0x7FF
		nidMSB := (hi >> 11) & 1
		notify := uint32(nid | (nidMSB << 10))
		nppn := hi >> 12 << 12
		notifyBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(notifyBuf, notify)
		if err := mem.DMAWrite(nppn, notifyBuf); err != nil {
			return fault.MSIWrFault
		}
		return fault.None

	default:
		return fault.MSIMisconfigured
	}
}

func leValue(data []byte) uint64 {
	var v uint64
	for i, b := range data {
		v |= uint64(b) << (8 * i)
	}
	return v
}
