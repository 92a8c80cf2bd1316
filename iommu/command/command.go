/*
 * riscv-iommu - Command-queue opcode dispatcher.
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

// Package command implements component G: command-queue opcode
// decoding and dispatch. Grounded on emu/core.processPacket's
// switch-on-opcode dispatch loop and on emu/sys_channel's CCW
// opcode-field extraction, replayed here over a 16-byte CQ entry
// instead of a channel-program control word.
package command

import (
	"encoding/binary"
	"log/slog"

	"github.com/rcornwell/riscv-iommu/iommu/context"
)

// Opcode/func3 field layout of a command's first dword:
//
//	bits [6:0]   opcode
//	bits [9:7]   func3
//	bit  [15]    AV    (IOFENCE.C)
//	bit  [16]    PSCV  (IOTINVAL)
//	bit  [17]    DV    (IODIR)
//	bits [41:18] DID   (24 bits)
//	bits [61:42] PID   (20 bits)
//	bits [63:32] DATA  (IOFENCE.C, 32-bit value)
//
// dword1 carries the target address for IOFENCE.C's DMA write.
const (
	opIOTINVAL = 1
	opIOFENCE  = 2
	opIODIR    = 3

	funcIOTINVALVMA  = 0
	funcIOTINVALGVMA = 1
	funcIOFENCEC     = 0
	funcIODIRDDT     = 0
	funcIODIRPDT     = 1
)

const (
	bitAV   = 1 << 15
	bitPSCV = 1 << 16
	bitDV   = 1 << 17
)

// Outcome is a dispatch result: done when the loop should advance to
// the next command, illegal/memFault when it must stop without
// advancing (spec.md §4.7).
type Outcome int

const (
	Done Outcome = iota
	Illegal
	MemFault
)

// Memory is the DMA surface a command handler needs for its side
// effect (currently only IOFENCE.C's optional write).
type Memory interface {
	DMAWrite(addr uint64, buf []byte) error
}

// Dispatch decodes and executes one 16-byte command entry against the
// context cache, returning what the caller (iommu/core's CQ drain
// loop) should do next.
func Dispatch(entry []byte, mem Memory, cache *context.Cache) Outcome {
	dword0 := binary.LittleEndian.Uint64(entry[0:8])
	dword1 := binary.LittleEndian.Uint64(entry[8:16])

	opcode := dword0 & 0x7F
	fn := (dword0 >> 7) & 0x7

	switch opcode {
	case opIOFENCE:
		if fn != funcIOFENCEC {
			return Illegal
		}
		if dword0&bitAV == 0 {
			return Done
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(dword0>>32))
		if err := mem.DMAWrite(dword1, buf); err != nil {
			slog.Debug("iofence dma write failed", "error", err)
			return MemFault
		}
		return Done

	case opIOTINVAL:
		switch fn {
		case funcIOTINVALGVMA:
			if dword0&bitPSCV != 0 {
				return Illegal
			}
			return Done
		case funcIOTINVALVMA:
			return Done
		default:
			return Illegal
		}

	case opIODIR:
		did := uint32((dword0 >> 18) & 0xFFFFFF)
		pid := uint32((dword0 >> 42) & 0xFFFFF)
		switch fn {
		case funcIODIRDDT:
			if dword0&bitDV == 0 {
				cache.InvalidateAll()
			} else {
				cache.InvalidateDevice(did)
			}
			return Done
		case funcIODIRPDT:
			if dword0&bitDV == 0 {
				return Illegal
			}
			cache.Invalidate(did, pid)
			return Done
		default:
			return Illegal
		}

	default:
		return Illegal
	}
}
