/*
 * riscv-iommu - Fault cause vocabulary and record shapes.
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

// Package fault holds the cause taxonomy and record shapes shared by
// the directory walker, the MSI redirector, the command dispatcher
// and the translation path, the way emu/device holds the shared
// channel sense/status byte constants the rest of the teacher's
// device model builds on.
package fault

// Cause is a stable fault cause code, reported in FQ/PQ records.
type Cause uint8

const (
	None Cause = iota
	DMADisabled
	DDTLoadFault
	DDTInvalid
	DDTMisconfigured
	PDTLoadFault
	PDTInvalid
	PDTMisconfigured
	TTypeBlocked
	MSILoadFault
	MSIInvalid
	MSIMisconfigured
	MSIPTCorrupted
	MSIWrFault
	InternalDPError
)

func (c Cause) String() string {
	switch c {
	case None:
		return "none"
	case DMADisabled:
		return "dma_disabled"
	case DDTLoadFault:
		return "ddt_load_fault"
	case DDTInvalid:
		return "ddt_invalid"
	case DDTMisconfigured:
		return "ddt_misconfigured"
	case PDTLoadFault:
		return "pdt_load_fault"
	case PDTInvalid:
		return "pdt_invalid"
	case PDTMisconfigured:
		return "pdt_misconfigured"
	case TTypeBlocked:
		return "ttype_blocked"
	case MSILoadFault:
		return "msi_load_fault"
	case MSIInvalid:
		return "msi_invalid"
	case MSIMisconfigured:
		return "msi_misconfigured"
	case MSIPTCorrupted:
		return "msi_pt_corrupted"
	case MSIWrFault:
		return "msi_wr_fault"
	case InternalDPError:
		return "internal_dp_error"
	default:
		return "unknown_cause"
	}
}

// whitelisted reports whether a cause survives tc.DTF suppression:
// DMA-plumbing causes are always reported even when the device context
// asks to suppress faults.
func (c Cause) whitelisted() bool {
	switch c {
	case DMADisabled, DDTLoadFault, DDTInvalid, DDTMisconfigured,
		MSIPTCorrupted, InternalDPError, MSIWrFault:
		return true
	default:
		return false
	}
}

// TType is the transaction type recorded on a fault.
type TType uint8

const (
	TTypeNone  TType = 0
	TTypeUAddrRD TType = 1
	TTypeUAddrWR TType = 2
)

// Record is a 32-byte fault-queue entry (spec.md §3, §6).
type Record struct {
	Cause        Cause
	TType        TType
	PV           bool // process_id valid
	DeviceID     uint32
	ProcessID    uint32
	IOVA         uint64
	IOVal2       uint64 // secondary info (e.g. GPA for two-stage faults)
}

// PageRequest is a 16-byte page-request-queue entry.
type PageRequest struct {
	DeviceID   uint32
	ProcessID  uint32
	HasProcess bool
	IOVAPage   uint64
	M          bool // last request in group
}

// ShouldReport applies the tc.DTF suppression rule from spec.md §7.
func ShouldReport(dtf bool, cause Cause) bool {
	if !dtf {
		return true
	}
	return cause.whitelisted()
}

// NewRecord builds a fault record from a permission request, choosing
// the ttype the way spec.md §4.5 describes (UADDR_RD/UADDR_WR by the
// permission that was being attempted).
func NewRecord(cause Cause, wantWrite bool, deviceID uint32, processID uint32, hasProcess bool, iova, iova2 uint64) Record {
	tt := TTypeUAddrRD
	if wantWrite {
		tt = TTypeUAddrWR
	}
	return Record{
		Cause:     cause,
		TType:     tt,
		PV:        hasProcess,
		DeviceID:  deviceID,
		ProcessID: processID,
		IOVA:      iova,
		IOVal2:    iova2,
	}
}
