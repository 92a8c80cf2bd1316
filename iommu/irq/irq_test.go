package irq_test

import (
	"testing"

	"github.com/rcornwell/riscv-iommu/iommu/irq"
)

type fakeInterrupts struct {
	lines []int
}

func (f *fakeInterrupts) RaiseInterrupt(line int) {
	f.lines = append(f.lines, line)
}

func TestRecomputeBitSetsWhenIEAndError(t *testing.T) {
	got := irq.RecomputeBit(0, irq.FQVector, true, true)
	if got&(1<<1) == 0 {
		t.Fatalf("expected FQ bit set, got %x", got)
	}
}

func TestRecomputeBitClearsWithoutActiveError(t *testing.T) {
	got := irq.RecomputeBit(0xFF, irq.CQVector, true, false)
	if got&1 != 0 {
		t.Fatalf("expected CQ bit cleared, got %x", got)
	}
}

func TestRecomputeBitClearsWithoutIE(t *testing.T) {
	got := irq.RecomputeBit(0xFF, irq.PQVector, false, true)
	if got&(1<<2) != 0 {
		t.Fatalf("expected PQ bit cleared without IE, got %x", got)
	}
}

func TestNotifySkippedUnderWSI(t *testing.T) {
	ipsr := uint32(0)
	fi := &fakeInterrupts{}
	irq.Notify(&ipsr, true, irq.CQVector, 0x1, fi)
	if ipsr != 0 || len(fi.lines) != 0 {
		t.Fatalf("expected no-op under WSI")
	}
}

func TestNotifyRaisesOnlyOnRisingEdge(t *testing.T) {
	ipsr := uint32(0)
	fi := &fakeInterrupts{}
	ivec := uint64(0x5) // vector 0 -> line 5

	irq.Notify(&ipsr, false, irq.CQVector, ivec, fi)
	if ipsr&1 == 0 {
		t.Fatalf("expected CQ bit set")
	}
	if len(fi.lines) != 1 || fi.lines[0] != 5 {
		t.Fatalf("expected one interrupt on line 5, got %v", fi.lines)
	}

	irq.Notify(&ipsr, false, irq.CQVector, ivec, fi)
	if len(fi.lines) != 1 {
		t.Fatalf("expected no second interrupt while bit already set, got %v", fi.lines)
	}
}

func TestNotifySelectsLineFromIVECNibble(t *testing.T) {
	ipsr := uint32(0)
	fi := &fakeInterrupts{}
	ivec := uint64(0xA) << (4 * 1) // vector 1 (FQ) -> line 0xA

	irq.Notify(&ipsr, false, irq.FQVector, ivec, fi)
	if len(fi.lines) != 1 || fi.lines[0] != 0xA {
		t.Fatalf("expected interrupt on line 0xA, got %v", fi.lines)
	}
}
