/*
 * riscv-iommu - Device and process directory tree walkers.
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

// Package directory implements component C: the DDT and PDT walkers.
// Grounded on emu/sys_channel's fetch-validate-descend pattern for
// CCW chains (loadCCW reads a control word from host memory, checks
// reserved bits, and descends), replayed here over host.Memory
// instead of the teacher's flat emu/memory array.
package directory

import (
	"encoding/binary"

	"github.com/rcornwell/riscv-iommu/iommu/fault"
	"github.com/rcornwell/riscv-iommu/iommu/host"
)

// Mode is ddtp.MODE / pdtp.MODE.
type Mode int

const (
	ModeOff Mode = iota
	ModeBare
	Mode1LVL
	Mode2LVL
	Mode3LVL
)

// ValidModeTransition implements the DDTP processor's transition
// table (spec.md §4.3): OFF/BARE accept anything, the leveled modes
// only come from OFF or BARE, and same-mode writes are always fine.
func ValidModeTransition(old, next Mode) bool {
	if old == next {
		return true
	}
	switch next {
	case ModeOff, ModeBare:
		return true
	case Mode1LVL, Mode2LVL, Mode3LVL:
		return old == ModeOff || old == ModeBare
	default:
		return false
	}
}

// Device-context tc bits consumed by the walker.
const (
	TCValid  uint64 = 1 << 0
	TCEnPRI  uint64 = 1 << 1
	TCT2GPA  uint64 = 1 << 2
	TCPDTV   uint64 = 1 << 3
	TCPRPR   uint64 = 1 << 4
	TCSBE    uint64 = 1 << 5
	TCDTF    uint64 = 1 << 6
	TCVendor uint64 = 1 << 32
)

const TAValid uint64 = 1 << 0

// MSIPTP modes, reused by the directory validation step and by the
// msi package.
const (
	MSIPTPOff  uint64 = 0
	MSIPTPFlat uint64 = 1
)

// Context is the in-memory translation context populated by Fetch.
// Lifecycle and identity are owned by iommu/context; this struct is
// the payload.
type Context struct {
	DeviceID  uint32
	ProcessID uint32
	HasPID    bool

	TC             uint64
	TA             uint64
	MSIPTP         uint64
	MSIAddrMask    uint64
	MSIAddrPattern uint64
}

func (c *Context) Valid() bool { return c.TC&TCValid != 0 }

// Capabilities gates behavior that depends on device-wide feature
// bits rather than the per-context tc/ta fields.
type Capabilities struct {
	T2GPA   bool
	MSIFlat bool
}

// Walker resolves {device_id, process_id} into a Context by walking
// the device directory tree and, if PDTV is set, the process
// directory tree.
type Walker struct {
	mem host.Memory
}

func New(mem host.Memory) *Walker {
	return &Walker{mem: mem}
}

// Fetch implements spec.md §4.4. enableMSI is the device's realize-time
// configuration knob: it selects the DC leaf length (64 bytes, with
// MSI fields, when true; 32 bytes otherwise, matching §3's DC
// description), while the device-id addressing width uses the
// logically opposite "extended format" flag per §4.4 step 3's literal
// text ("extended format is selected when enable_msi is false") —
// confirmed against spec.md §8 scenario 3's worked numbers, which only
// check out under that reading.
func (w *Walker) Fetch(mode Mode, ddtpPPN uint64, enableMSI bool, caps Capabilities, ctx *Context) fault.Cause {
	if mode == ModeOff {
		return fault.DMADisabled
	}
	if mode == ModeBare {
		ctx.TC = TCValid
		ctx.TA = 0
		ctx.MSIPTP = 0
		ctx.MSIAddrMask = 0
		ctx.MSIAddrPattern = 0
		return 0
	}

	addrExtended := !enableMSI
	depth := int(mode) - int(Mode1LVL) // 0, 1, or 2

	extraBit := 0
	if addrExtended && depth != 2 {
		extraBit = 1
	}
	limitBits := depth*9 + 6 + extraBit
	if limitBits < 31 && ctx.DeviceID >= uint32(1)<<uint(limitBits) {
		return fault.TTypeBlocked
	}

	base := ddtpPPN << 12
	// Descends depth-1, ..., 0: the lowest DDT level indexes the bits just
	// above the DC leaf's own 6- or 7-bit index field, not above a
	// nonexistent depth-th level.
	for lvl := depth - 1; lvl >= 0; lvl-- {
		split := uint(lvl*9 + 6)
		if addrExtended {
			split++
		}
		idx := uint64(ctx.DeviceID>>split) & 0x1FF
		// base is page-aligned and idx*8 never reaches 4096: the sum
		// already lands within the table page, no further masking needed.
		addr := base + idx*8
		buf := make([]byte, 8)
		if err := w.mem.DMARead(addr, buf); err != nil {
			return fault.DDTLoadFault
		}
		entry := binary.LittleEndian.Uint64(buf)
		if entry&1 == 0 {
			return fault.DDTInvalid
		}
		if entry&^ddtPPNMask&^uint64(1) != 0 {
			return fault.DDTMisconfigured
		}
		ppn := (entry & ddtPPNMask) >> 10
		base = ppn << 12
	}

	dcLen := uint64(32)
	if enableMSI {
		dcLen = 64
	}
	// The intermediate levels above already consumed device_id's upper
	// bits via split; only the low bits that index within this leaf
	// table page remain (one page holds 4096/dcLen entries).
	leafMask := uint64(4096)/dcLen - 1
	addr := base + (uint64(ctx.DeviceID)&leafMask)*dcLen
	buf := make([]byte, dcLen)
	if err := w.mem.DMARead(addr, buf); err != nil {
		return fault.DDTLoadFault
	}

	ctx.TC = binary.LittleEndian.Uint64(buf[0:8])
	ctx.TA = binary.LittleEndian.Uint64(buf[16:24])
	if dcLen == 64 {
		ctx.MSIPTP = binary.LittleEndian.Uint64(buf[32:40])
		ctx.MSIAddrMask = binary.LittleEndian.Uint64(buf[40:48])
		ctx.MSIAddrPattern = binary.LittleEndian.Uint64(buf[48:56])
	} else {
		ctx.MSIPTP, ctx.MSIAddrMask, ctx.MSIAddrPattern = 0, 0, 0
	}

	if !ctx.Valid() {
		return fault.DDTInvalid
	}
	if ctx.TC&TCPRPR != 0 && ctx.TC&TCEnPRI == 0 {
		return fault.DDTMisconfigured
	}
	if ctx.TC&TCT2GPA != 0 && !caps.T2GPA {
		return fault.DDTMisconfigured
	}
	if caps.MSIFlat && ctx.MSIPTP != MSIPTPOff && ctx.MSIPTP&0xF != MSIPTPFlat {
		return fault.DDTMisconfigured
	}
	if ctx.TC&TCSBE != 0 {
		return fault.DDTMisconfigured
	}

	if ctx.TC&TCPDTV == 0 {
		if ctx.HasPID && ctx.ProcessID != 0 {
			return fault.TTypeBlocked
		}
		return 0
	}

	return w.walkPDT(ctx)
}

// ddtPPNMask covers the PPN field of an 8-byte DDT intermediate entry
// (bits [53:10]); bit 0 is V, all remaining bits must be reserved-0.
const ddtPPNMask uint64 = 0x3F_FFFF_FFFF_FC00

const pdtPPNMask uint64 = ddtPPNMask

// walkPDT implements spec.md §4.4 step 8.
func (w *Walker) walkPDT(ctx *Context) fault.Cause {
	fsc := ctx.TA
	pdtMode := int((fsc >> 60) & 0xF)
	if pdtMode == 0 {
		// Mode 0 is OFF (PD8 is mode 1): no walk is defined; treat as not-present.
		return fault.PDTInvalid
	}
	depth := pdtMode - 1 // PD8 -> 0, PD17 -> 1, PD20 -> 2
	base := (fsc & pdtPPNMask) >> 10 << 12

	// Same descending depth-1, ..., 0 sequence as the DDT walk above.
	for lvl := depth - 1; lvl >= 0; lvl-- {
		split := uint(lvl*9 + 8)
		idx := uint64(ctx.ProcessID>>split) & 0x1FF
		addr := base + idx*8
		buf := make([]byte, 8)
		if err := w.mem.DMARead(addr, buf); err != nil {
			return fault.PDTLoadFault
		}
		entry := binary.LittleEndian.Uint64(buf)
		if entry&1 == 0 {
			return fault.PDTInvalid
		}
		base = ((entry & pdtPPNMask) >> 10) << 12
	}

	// A 16-byte leaf entry page holds 4096/16 = 256 entries: 8 bits,
	// not 9, of process_id select within it.
	addr := base + (uint64(ctx.ProcessID)&0xFF)*16
	buf := make([]byte, 16)
	if err := w.mem.DMARead(addr, buf); err != nil {
		return fault.PDTLoadFault
	}
	ta := binary.LittleEndian.Uint64(buf[0:8])
	if ta&TAValid == 0 {
		return fault.PDTInvalid
	}
	if ta&^(TAValid|pdtPPNMask) != 0 {
		return fault.PDTMisconfigured
	}
	ctx.TA = ta
	return 0
}
