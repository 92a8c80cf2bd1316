/*
 * riscv-iommu - Top-level IOMMU device: MMIO dispatch and wiring.
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

// Package core wires components A through H into one IOMMU device:
// the masked-MMIO register file, the three queue engines, the
// directory walkers, the MSI redirector, the context cache, the
// address-space registry, the command dispatcher and the interrupt
// logic. Grounded on emu/core.core, the teacher's top-level object
// that owns the channel set and exposes Start/Stop plus a
// switch-based processPacket, here reworked into a masked-MMIO
// dispatch table plus a translate() entry point instead of a packet
// switch.
package core

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rcornwell/riscv-iommu/iommu/addrspace"
	"github.com/rcornwell/riscv-iommu/iommu/command"
	"github.com/rcornwell/riscv-iommu/iommu/context"
	"github.com/rcornwell/riscv-iommu/iommu/directory"
	"github.com/rcornwell/riscv-iommu/iommu/fault"
	"github.com/rcornwell/riscv-iommu/iommu/host"
	"github.com/rcornwell/riscv-iommu/iommu/irq"
	"github.com/rcornwell/riscv-iommu/iommu/msi"
	"github.com/rcornwell/riscv-iommu/iommu/queue"
	"github.com/rcornwell/riscv-iommu/iommu/regs"
)

// MMIO register map (spec.md §6: "offsets are spec-defined;
// implementers must match the RISC-V IOMMU architecture document").
// Mirrors the real register layout so a host stack speaking the
// genuine architecture document lines up unmodified.
const (
	offCap   = 0x000
	offFctl  = 0x008
	offDdtp  = 0x010
	offCqb   = 0x018
	offCqh   = 0x020
	offCqt   = 0x024
	offFqb   = 0x028
	offFqh   = 0x030
	offFqt   = 0x034
	offPqb   = 0x038
	offPqh   = 0x040
	offPqt   = 0x044
	offCqcsr = 0x048
	offFqcsr = 0x04C
	offPqcsr = 0x050
	offIpsr  = 0x054
	offIvec  = 0x2F8

	regSize = 0x300 // up through the MSI-config offset, per spec.md §3.
)

const (
	capMSIFlat uint64 = 1 << 7
	capMSIMrif uint64 = 1 << 8
	capPD8     uint64 = 1 << 9
	capT2GPA   uint64 = 1 << 2
)

const (
	fctlBE  uint64 = 1 << 0
	fctlWSI uint64 = 1 << 1
)

const (
	ddtpModeMask uint64 = 0xF
	ddtpBusy     uint64 = 1 << 4
	ddtpPPNShift        = 10
	ddtpPPNMask  uint64 = 0x3F_FFFF_FFFF_FC00
)

const (
	qbPPNMask    uint64 = 0x3F_FFFF_FFFF_FC00
	qbLog2SzMask uint64 = 0x1F
)

const (
	csrEN      uint32 = 1 << 0
	csrIE      uint32 = 1 << 1
	csrMF      uint32 = 1 << 8 // CQMF/FQMF/PQMF
	csrOn      uint32 = 1 << 16
	cqCmdIll   uint32 = 1 << 9
	cqCmdTo    uint32 = 1 << 10
	cqFenceWIP uint32 = 1 << 11
	fqOverflow uint32 = 1 << 9
	pqOverflow uint32 = 1 << 9
)

// Config carries the realize-time knobs spec.md §6 lists: version,
// the bus this IOMMU answers on, whether inter-IOMMU MSI remapping is
// present, the initial DDTP mode, and whether a downstream memory
// region (trap_as) is available for per-write MSI handling.
type Config struct {
	Version     uint8
	Bus         int
	IntRemap    bool
	Off         bool // initial ddtp.MODE = OFF instead of BARE
	PasidBits   uint
	AddrBits    uint8
	MSIFlat     bool
	MSIMrif     bool
	PD8         bool
	DownstreamMR bool
}

// Device is one realized IOMMU instance.
type Device struct {
	mu sync.Mutex // core mutex: serializes queue control and DDTP; held by Unrealize, not by registry lookups.

	regs *regs.File
	cq   *queue.Engine
	fq   *queue.Engine
	pq   *queue.Engine

	walker   *directory.Walker
	cache    *context.Cache
	registry *addrspace.Registry

	mem        host.Memory
	trapAS     host.Memory
	interrupts host.Interrupts

	caps directory.Capabilities
	cfg  Config
}

// New realizes an IOMMU device over mem (the DMA surface the walkers
// and queues issue reads/writes against), trapAS (the region MSI
// writes are redirected into) and interrupts (the wire-signal
// callback). Mirrors spec.md §6's realize(): allocate register
// arrays, initialize CAP, pre-mark all regs RO, then open the
// writable windows, create an empty context cache, seed DDTP.
func New(mem, trapAS host.Memory, interrupts host.Interrupts, cfg Config) *Device {
	d := &Device{
		regs:       regs.New(regSize),
		cq:         queue.New(queue.CQ, mem),
		fq:         queue.New(queue.FQ, mem),
		pq:         queue.New(queue.PQ, mem),
		walker:     directory.New(mem),
		cache:      context.New(),
		registry:   addrspace.New(cfg.PasidBits),
		mem:        mem,
		trapAS:     trapAS,
		interrupts: interrupts,
		caps:       directory.Capabilities{T2GPA: false, MSIFlat: cfg.MSIFlat},
		cfg:        cfg,
	}
	d.realizeRegs()
	return d
}

func (d *Device) realizeRegs() {
	cap := uint64(d.cfg.Version) | uint64(d.cfg.AddrBits)<<24
	if d.cfg.MSIFlat {
		cap |= capMSIFlat
	}
	if d.cfg.MSIMrif {
		cap |= capMSIMrif
	}
	if d.cfg.PD8 {
		cap |= capPD8
	}
	_ = d.regs.StoreRaw(offCap, 8, cap)

	_ = d.regs.MakeWritable(offFctl, 8, fctlWSI) // BE is fixed little-endian-only in this model.

	_ = d.regs.MakeWritable(offDdtp, 8, ddtpModeMask|ddtpPPNMask)
	if d.cfg.Off {
		_ = d.regs.StoreRaw(offDdtp, 8, uint64(directory.ModeOff))
	} else {
		_ = d.regs.StoreRaw(offDdtp, 8, uint64(directory.ModeBare))
	}

	_ = d.regs.MakeWritable(offCqb, 8, qbPPNMask|qbLog2SzMask)
	_ = d.regs.MakeWritable(offFqb, 8, qbPPNMask|qbLog2SzMask)
	_ = d.regs.MakeWritable(offPqb, 8, qbPPNMask|qbLog2SzMask)

	_ = d.regs.MakeWritable(offCqt, 4, 0xFFFFFFFF)
	_ = d.regs.MakeWritable(offFqh, 4, 0xFFFFFFFF)
	_ = d.regs.MakeWritable(offPqh, 4, 0xFFFFFFFF)

	_ = d.regs.MakeWritable(offCqcsr, 4, uint64(csrEN|csrIE))
	_ = d.regs.PokeWC(offCqcsr, 4, uint64(cqCmdIll|cqCmdTo|cqFenceWIP|csrMF))
	_ = d.regs.MakeWritable(offFqcsr, 4, uint64(csrEN|csrIE))
	_ = d.regs.PokeWC(offFqcsr, 4, uint64(fqOverflow|csrMF))
	_ = d.regs.MakeWritable(offPqcsr, 4, uint64(csrEN|csrIE))
	_ = d.regs.PokeWC(offPqcsr, 4, uint64(pqOverflow|csrMF))

	_ = d.regs.MakeWritable(offIpsr, 4, 0xFFFFFFFF)
	_ = d.regs.MakeWritable(offIvec, 8, 0xFFFFFFFFFFFFFFFF)
}

// Unrealize releases the context cache and address-space registry.
// There is nothing else to free: Go's GC owns the rest.
func (d *Device) Unrealize() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = context.New()
	d.registry = addrspace.New(d.cfg.PasidBits)
}

// Read services an MMIO read at offset.
func (d *Device) Read(offset uint32, size int) (uint64, error) {
	return d.regs.Read(offset, size)
}

// Write services an MMIO write at offset, applying the masked-update
// formula and then routing to whichever component owns that offset's
// side effect (spec.md §2's dispatch-table data flow).
func (d *Device) Write(offset uint32, size int, v uint64) error {
	switch offset {
	case offIpsr:
		return d.writeIPSR(size, v)
	case offDdtp:
		return d.writeDDTP(size, v)
	case offCqt:
		return d.writeCQT(size, v)
	case offFqh:
		return d.writeQueueHead(d.fq, size, v)
	case offPqh:
		return d.writeQueueHead(d.pq, size, v)
	case offCqcsr:
		return d.writeCSR(d.cq, offCqcsr, size, v)
	case offFqcsr:
		return d.writeCSR(d.fq, offFqcsr, size, v)
	case offPqcsr:
		return d.writeCSR(d.pq, offPqcsr, size, v)
	default:
		_, err := d.regs.Write(offset, size, v)
		return err
	}
}

// writeDDTP implements the DDTP processor (spec.md §4.3): validate the
// mode transition, otherwise restore the prior value; on success store
// {PPN kept, MODE sanitized, all other bits zero}.
func (d *Device) writeDDTP(size int, v uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, err := d.regs.Read(offDdtp, size)
	if err != nil {
		return err
	}
	apparent, err := d.regs.ComputeMasked(offDdtp, size, v)
	if err != nil {
		return err
	}

	oldMode := directory.Mode(cur & ddtpModeMask)
	newMode := directory.Mode(apparent & ddtpModeMask)
	if !directory.ValidModeTransition(oldMode, newMode) {
		return d.regs.StoreRaw(offDdtp, size, cur)
	}
	sanitized := uint64(newMode) | (apparent & ddtpPPNMask)
	return d.regs.StoreRaw(offDdtp, size, sanitized)
}

// writeCQT drives the command dispatcher (component G, spec.md §4.7)
// once the producer index has been latched.
func (d *Device) writeCQT(size int, v uint64) error {
	if _, err := d.regs.Write(offCqt, size, v); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	tail, err := d.regs.Read(offCqt, 4)
	if err != nil {
		return err
	}
	d.cq.SetTail(uint32(tail))

	if !d.cq.On() || d.cq.ActiveError() {
		return nil
	}

	faulted := false
	for {
		entry, empty, rerr := d.cq.Fetch()
		if rerr != nil {
			d.setCSRBit(offCqcsr, csrMF)
			faulted = true
			break
		}
		if empty {
			break
		}
		switch command.Dispatch(entry, d.mem, d.cache) {
		case command.Done:
			d.cq.AdvanceHead()
			head := d.cq.Head()
			_ = d.regs.StoreRaw(offCqh, 4, uint64(head))
		case command.Illegal:
			d.setCSRBit(offCqcsr, cqCmdIll)
			faulted = true
		case command.MemFault:
			d.setCSRBit(offCqcsr, csrMF)
			faulted = true
		}
		if faulted {
			break
		}
	}
	if faulted {
		d.maybeNotify(irq.CQVector, offCqcsr)
	}
	return nil
}

// writeQueueHead latches a software-supplied FQH/PQH consumer index.
func (d *Device) writeQueueHead(e *queue.Engine, size int, v uint64) error {
	applied, err := d.regs.Write(offsetFor(e), size, v)
	if err != nil {
		return err
	}
	e.SetHead(uint32(applied))
	return nil
}

func offsetFor(e *queue.Engine) uint32 {
	switch e.Kind() {
	case queue.FQ:
		return offFqh
	default:
		return offPqh
	}
}

// writeCSR applies an EN/IE/write-1-to-clear update to one queue's
// control register, driving the engine's Enable/Disable transition
// and re-deriving the IPSR bit afterwards (spec.md §4.2, §4.8).
func (d *Device) writeCSR(e *queue.Engine, offset uint32, size int, v uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	applied, err := d.regs.Write(offset, size, v)
	if err != nil {
		return err
	}

	wantEnable := uint32(applied)&csrEN != 0
	if wantEnable && !e.Enabled() {
		baseOff, headOff, tailOff := baseOffsetsFor(e)
		base, _ := d.regs.Read(baseOff, 8)
		ppn := (base & qbPPNMask) >> ddtpPPNShift
		log2sz := uint(base & qbLog2SzMask)
		e.Enable(ppn, log2sz)
		_ = d.regs.StoreRaw(headOff, 4, 0)
		_ = d.regs.StoreRaw(tailOff, 4, 0)
	} else if !wantEnable && e.Enabled() {
		e.Disable()
	}
	e.SetIE(uint32(applied)&csrIE != 0)
	e.ClearErrorBits(errorBitsOf(v))

	status := applied &^ uint64(csrEN|csrIE|errorMaskOf(e))
	status |= uint64(applied) & uint64(csrEN|csrIE)
	if e.On() {
		status |= uint64(csrOn)
	}
	status |= uint64(e.ErrorBits())
	_ = d.regs.StoreRaw(offset, size, status)

	d.recomputeIPSR(e, offset)
	return nil
}

func baseOffsetsFor(e *queue.Engine) (base, head, tail uint32) {
	switch e.Kind() {
	case queue.CQ:
		return offCqb, offCqh, offCqt
	case queue.FQ:
		return offFqb, offFqh, offFqt
	default:
		return offPqb, offPqh, offPqt
	}
}

func errorMaskOf(e *queue.Engine) uint32 {
	switch e.Kind() {
	case queue.CQ:
		return csrMF | cqCmdIll | cqCmdTo | cqFenceWIP
	case queue.FQ:
		return csrMF | fqOverflow
	default:
		return csrMF | pqOverflow
	}
}

func errorBitsOf(v uint64) uint32 {
	return uint32(v) & (csrMF | cqCmdIll | cqCmdTo | cqFenceWIP | fqOverflow | pqOverflow)
}

func (d *Device) setCSRBit(offset uint32, bit uint32) {
	cur, _ := d.regs.Read(offset, 4)
	_ = d.regs.StoreRaw(offset, 4, cur|uint64(bit))
	switch offset {
	case offCqcsr:
		d.cq.SetErrorBit(bit)
	case offFqcsr:
		d.fq.SetErrorBit(bit)
	case offPqcsr:
		d.pq.SetErrorBit(bit)
	}
}

func (d *Device) vectorFor(offset uint32) irq.Vector {
	switch offset {
	case offCqcsr:
		return irq.CQVector
	case offFqcsr:
		return irq.FQVector
	default:
		return irq.PQVector
	}
}

func (d *Device) recomputeIPSR(e *queue.Engine, csrOffset uint32) {
	ipsr, _ := d.regs.Read(offIpsr, 4)
	next := irq.RecomputeBit(uint32(ipsr), d.vectorFor(csrOffset), e.IE(), e.ActiveError())
	_ = d.regs.StoreRaw(offIpsr, 4, uint64(next))
}

func (d *Device) maybeNotify(vector irq.Vector, csrOffset uint32) {
	e := d.engineFor(csrOffset)
	if !e.IE() {
		return
	}
	d.recomputeIPSR(e, csrOffset)
	fctl, _ := d.regs.Read(offFctl, 8)
	ipsrVal, _ := d.regs.Read(offIpsr, 4)
	ivec, _ := d.regs.Read(offIvec, 8)
	ipsr32 := uint32(ipsrVal)
	irq.Notify(&ipsr32, fctl&fctlWSI != 0, vector, ivec, d.interrupts)
	_ = d.regs.StoreRaw(offIpsr, 4, uint64(ipsr32))
}

func (d *Device) engineFor(csrOffset uint32) *queue.Engine {
	switch csrOffset {
	case offCqcsr:
		return d.cq
	case offFqcsr:
		return d.fq
	default:
		return d.pq
	}
}

// writeIPSR implements spec.md §4.1's special-cased IPSR write path:
// apply the masked update, apply write-1-to-clear, then let each
// queue's CSR state override the corresponding bit.
func (d *Device) writeIPSR(size int, v uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	apparent, err := d.regs.ComputeMasked(offIpsr, size, v)
	if err != nil {
		return err
	}
	result := uint32(apparent)
	result = irq.RecomputeBit(result, irq.CQVector, d.cq.IE(), d.cq.ActiveError())
	result = irq.RecomputeBit(result, irq.FQVector, d.fq.IE(), d.fq.ActiveError())
	result = irq.RecomputeBit(result, irq.PQVector, d.pq.IE(), d.pq.ActiveError())
	return d.regs.StoreRaw(offIpsr, size, uint64(result))
}

// Translate implements the translation path (component F calling into
// E, C and D — spec.md §4.5). reqDeviceID/processID identify the
// requester; hasProcessID distinguishes a PASID-tagged access.
func (d *Device) Translate(req *host.Request) error {
	pin := d.cache.Pin()
	defer pin.Release()

	ctx, ok := pin.Get(req.DeviceID, req.ProcessID)
	if !ok || !ctx.Valid() {
		fresh := &directory.Context{DeviceID: req.DeviceID, ProcessID: req.ProcessID, HasPID: req.HasProcessID}
		d.mu.Lock()
		ddtp, _ := d.regs.Read(offDdtp, 8)
		mode := directory.Mode(ddtp & ddtpModeMask)
		ppn := (ddtp & ddtpPPNMask) >> ddtpPPNShift
		d.mu.Unlock()

		cause := d.walker.Fetch(mode, ppn, d.cfg.MSIFlat, d.caps, fresh)
		if cause != fault.None {
			// Every cause this call site can produce is a ctx_fetch-stage
			// fault (DDT/PDT walk failure); those always report ttype
			// UADDR_RD regardless of the permission the requester wanted,
			// unlike a stage-2 translation fault's perm-dependent ttype.
			return d.reportFault(cause, req, false, fresh.TC&directory.TCDTF != 0)
		}
		d.cache.Insert(req.DeviceID, req.ProcessID, fresh)
		ctx = fresh
	}

	if req.Perm.HasWrite() && msi.Matches(ctx, req.IOVA) {
		req.TranslatedAddr = req.IOVA
		req.AddrMask = ^uint64(0xFFF)
		req.TargetAS = d.trapAS
		return nil
	}

	req.TranslatedAddr = req.IOVA
	req.AddrMask = ^uint64(0xFFF)
	req.Perm = host.PermReadWrite
	req.TargetAS = d.mem
	return nil
}

// reportFault pushes an FQ record for cause unless tc.DTF suppresses it
// (spec.md §7: DTF passes through only the whitelisted DMA-plumbing
// causes). wantWrite selects the record's ttype and is passed in by the
// caller rather than read off req.Perm here, since a ctx_fetch-stage
// fault reports ttype UADDR_RD unconditionally while an MSI write fault
// reports the write it actually attempted. The returned error is always
// non-nil: suppression affects the ring record, not whether the access
// itself failed.
func (d *Device) reportFault(cause fault.Cause, req *host.Request, wantWrite bool, dtf bool) error {
	if fault.ShouldReport(dtf, cause) {
		rec := fault.NewRecord(cause, wantWrite, req.DeviceID, req.ProcessID, req.HasProcessID, req.IOVA, 0)
		buf := make([]byte, 32)
		binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.Cause)|uint64(rec.TType)<<8)
		binary.LittleEndian.PutUint32(buf[8:12], rec.DeviceID)
		binary.LittleEndian.PutUint32(buf[12:16], rec.ProcessID)
		binary.LittleEndian.PutUint64(buf[16:24], rec.IOVA)
		binary.LittleEndian.PutUint64(buf[24:32], rec.IOVal2)
		if _, err := d.fq.Append(buf); err != nil {
			slog.Debug("fault record append failed", "error", err)
		}
		d.mu.Lock()
		// Fold any overflow/memory-fault bit Append latched into FQCSR.
		if errBits := d.fq.ErrorBits(); errBits != 0 {
			csr, _ := d.regs.Read(offFqcsr, 4)
			_ = d.regs.StoreRaw(offFqcsr, 4, csr|uint64(errBits))
		}
		d.maybeNotify(irq.FQVector, offFqcsr)
		d.mu.Unlock()
	}
	return fmt.Errorf("iommu: translation fault: %s", cause)
}

// WriteMSI performs a device-initiated write already known to target
// the trap address space, routing it through the MSI redirector
// (component D, spec.md §4.6).
func (d *Device) WriteMSI(deviceID, processID uint32, gpa uint64, data []byte) error {
	pin := d.cache.Pin()
	defer pin.Release()
	ctx, ok := pin.Get(deviceID, processID)
	if !ok {
		return fmt.Errorf("iommu: no cached context for msi write")
	}
	if cause := msi.Write(d.mem, ctx, gpa, data); cause != fault.None {
		req := &host.Request{IOVA: gpa, Perm: host.PermWrite, DeviceID: deviceID, ProcessID: processID, HasProcessID: processID != 0}
		return d.reportFault(cause, req, true, ctx.TC&directory.TCDTF != 0)
	}
	return nil
}

// Registry exposes the address-space registry so a host bus model can
// resolve (bus, device, function) into a translate callback.
func (d *Device) Registry() *addrspace.Registry { return d.registry }
