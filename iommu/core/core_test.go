package core_test

import (
	"encoding/binary"
	"testing"

	"github.com/rcornwell/riscv-iommu/iommu/core"
	"github.com/rcornwell/riscv-iommu/iommu/directory"
	"github.com/rcornwell/riscv-iommu/iommu/fault"
	"github.com/rcornwell/riscv-iommu/iommu/host"
)

type fakeMem struct {
	data map[uint64][]byte
}

func newFakeMem() *fakeMem { return &fakeMem{data: map[uint64][]byte{}} }

func (m *fakeMem) DMARead(addr uint64, buf []byte) error {
	src, ok := m.data[addr]
	for i := range buf {
		if ok && i < len(src) {
			buf[i] = src[i]
		} else {
			buf[i] = 0
		}
	}
	return nil
}

func (m *fakeMem) DMAWrite(addr uint64, buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.data[addr] = cp
	return nil
}

func (m *fakeMem) putU64(addr, v uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	m.data[addr] = buf
}

type fakeInterrupts struct{ lines []int }

func (f *fakeInterrupts) RaiseInterrupt(line int) { f.lines = append(f.lines, line) }

func newDevice(mem host.Memory) (*core.Device, *fakeInterrupts) {
	fi := &fakeInterrupts{}
	cfg := core.Config{Version: 1, AddrBits: 56, MSIFlat: true}
	d := core.New(mem, mem, fi, cfg)
	return d, fi
}

const (
	offDdtp  = 0x010
	offCqb   = 0x018
	offCqt   = 0x024
	offFqb   = 0x028
	offCqcsr = 0x048
	offFqcsr = 0x04C
	offIpsr  = 0x054
)

// setupPDTInvalid realizes a device whose DDT points at a device
// context with PDTV set (and dtf as given) and a PD8 process directory
// whose sole leaf entry is absent, so translation fails with
// fault.PDTInvalid. An FQ is realized at PPN 0x30 so the test can
// observe whether a record actually lands there.
func setupPDTInvalid(t *testing.T, dtf bool) (*fakeMem, *core.Device) {
	t.Helper()
	mem := newFakeMem()
	d, _ := newDevice(mem)

	ddtpVal := uint64(directory.Mode1LVL) | (uint64(0x10) << 10)
	if err := d.Write(offDdtp, 8, ddtpVal); err != nil {
		t.Fatalf("write ddtp: %v", err)
	}

	tc := directory.TCValid | directory.TCPDTV
	if dtf {
		tc |= directory.TCDTF
	}
	fsc := uint64(1)<<60 | uint64(0x20)<<10 // PD8 mode, PDT base PPN 0x20
	dc := make([]byte, 64)                  // full 64-byte DC leaf (MSIFlat realized -> long form)
	binary.LittleEndian.PutUint64(dc[0:8], tc)
	binary.LittleEndian.PutUint64(dc[16:24], fsc)
	if err := mem.DMAWrite(0x10000, dc); err != nil {
		t.Fatalf("write dc: %v", err)
	}

	if err := d.Write(offFqb, 8, uint64(0x30)<<10|2); err != nil { // PPN=0x30, log2sz=2
		t.Fatalf("write fqb: %v", err)
	}
	if err := d.Write(offFqcsr, 4, uint64(0x1)); err != nil { // EN only
		t.Fatalf("write fqcsr: %v", err)
	}
	return mem, d
}

func TestDTFSuppressesNonWhitelistedCause(t *testing.T) {
	mem, d := setupPDTInvalid(t, true)
	req := &host.Request{IOVA: 0x4000, Perm: host.PermRead, DeviceID: 0}
	if err := d.Translate(req); err == nil {
		t.Fatalf("expected translation fault")
	}
	if _, ok := mem.data[0x30000]; ok {
		t.Fatalf("expected no FQ record when tc.DTF suppresses PDTInvalid")
	}
}

func TestWithoutDTFReportsCause(t *testing.T) {
	mem, d := setupPDTInvalid(t, false)
	req := &host.Request{IOVA: 0x4000, Perm: host.PermRead, DeviceID: 0}
	if err := d.Translate(req); err == nil {
		t.Fatalf("expected translation fault")
	}
	rec, ok := mem.data[0x30000]
	if !ok {
		t.Fatalf("expected an FQ record when tc.DTF is clear")
	}
	if fault.Cause(rec[0]) != fault.PDTInvalid {
		t.Fatalf("expected PDTInvalid cause byte, got %#x", rec[0])
	}
}

// TestWithoutDTFReportsFixedTTypeOnWrite proves a ctx_fetch-stage fault
// always reports ttype UADDR_RD even when the requester wanted to write:
// the perm-dependent ttype only belongs to a stage-2 translation fault,
// which this walker never reaches.
func TestWithoutDTFReportsFixedTTypeOnWrite(t *testing.T) {
	mem, d := setupPDTInvalid(t, false)
	req := &host.Request{IOVA: 0x4000, Perm: host.PermWrite, DeviceID: 0}
	if err := d.Translate(req); err == nil {
		t.Fatalf("expected translation fault")
	}
	rec, ok := mem.data[0x30000]
	if !ok {
		t.Fatalf("expected an FQ record when tc.DTF is clear")
	}
	if fault.TType(rec[1]) != fault.TTypeUAddrRD {
		t.Fatalf("expected fixed ttype UADDR_RD even for a write request, got %#x", rec[1])
	}
}

func TestBareModeTranslation(t *testing.T) {
	mem := newFakeMem()
	d, _ := newDevice(mem)
	if err := d.Write(offDdtp, 8, uint64(directory.ModeBare)); err != nil {
		t.Fatalf("write ddtp: %v", err)
	}
	req := &host.Request{IOVA: 0x1000, Perm: host.PermRead, DeviceID: 0x100}
	if err := d.Translate(req); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if req.TranslatedAddr != 0x1000 || req.Perm != host.PermReadWrite {
		t.Fatalf("unexpected translation result: %+v", req)
	}
}

func TestDDTInvalidReportsFault(t *testing.T) {
	mem := newFakeMem()
	d, _ := newDevice(mem)
	// ddtp = {MODE=1LVL, PPN=0x10}, memory at 0x10000 all zero.
	ddtpVal := uint64(directory.Mode1LVL) | (uint64(0x10) << 10)
	if err := d.Write(offDdtp, 8, ddtpVal); err != nil {
		t.Fatalf("write ddtp: %v", err)
	}
	req := &host.Request{IOVA: 0x2000, Perm: host.PermRead, DeviceID: 0}
	if err := d.Translate(req); err == nil {
		t.Fatalf("expected translation fault")
	}
}

func TestDDTPInvalidTransitionRestoresPriorValue(t *testing.T) {
	mem := newFakeMem()
	d, _ := newDevice(mem)
	_ = d.Write(offDdtp, 8, uint64(directory.Mode1LVL))
	// 1LVL -> 2LVL is not a legal transition; the write should be ignored.
	_ = d.Write(offDdtp, 8, uint64(directory.Mode2LVL))

	got, err := d.Read(offDdtp, 8)
	if err != nil {
		t.Fatalf("read ddtp: %v", err)
	}
	if directory.Mode(got&0xF) != directory.Mode1LVL {
		t.Fatalf("expected ddtp.MODE to remain 1LVL, got %v", got&0xF)
	}
}

func TestCQIllegalCommandSetsCmdIllAndIPSR(t *testing.T) {
	mem := newFakeMem()
	d, _ := newDevice(mem)

	mem.putU64(0, 0xFFFFFFFFFFFFFFFF)

	if err := d.Write(offCqb, 8, uint64(2)); err != nil { // log2sz=2 -> 8 entries, PPN=0
		t.Fatalf("write cqb: %v", err)
	}
	if err := d.Write(offCqcsr, 4, uint64(0x3)); err != nil { // EN|IE
		t.Fatalf("write cqcsr: %v", err)
	}
	if err := d.Write(offCqt, 4, 1); err != nil {
		t.Fatalf("write cqt: %v", err)
	}

	csr, _ := d.Read(offCqcsr, 4)
	if csr&(1<<9) == 0 {
		t.Fatalf("expected CMD_ILL set, csr=%#x", csr)
	}
	ipsr, _ := d.Read(offIpsr, 4)
	if ipsr&1 == 0 {
		t.Fatalf("expected IPSR.CIP set, ipsr=%#x", ipsr)
	}
}
