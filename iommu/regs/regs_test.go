package regs_test

import (
	"testing"

	"github.com/rcornwell/riscv-iommu/iommu/regs"
)

// Masked update law: after write(o, s, v) the bytes equal
// (prev_rw & ro) | (v & ~ro), then cleared by v & wc.
func TestMaskedUpdateLaw(t *testing.T) {
	f := regs.New(16)
	if err := f.MakeWritable(0, 4, 0xFFFFFFFF); err != nil {
		t.Fatalf("MakeWritable: %v", err)
	}
	if err := f.PokeWC(0, 4, 0x0000_00F0); err != nil {
		t.Fatalf("PokeWC: %v", err)
	}

	if _, err := f.Write(0, 4, 0x1234_5678); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := f.Read(0, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := uint64(0x1234_5678) &^ (uint64(0x1234_5678) & 0xF0)
	if got != want {
		t.Fatalf("got %#x want %#x", got, want)
	}
}

func TestReservedDefaultZero(t *testing.T) {
	f := regs.New(16)
	if _, err := f.Write(4, 4, 0xFFFFFFFF); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := f.Read(4, 4)
	if got != 0 {
		t.Fatalf("reserved register should stay 0, got %#x", got)
	}
}

func TestMisalignedAccessFails(t *testing.T) {
	f := regs.New(16)
	if _, err := f.Read(1, 4); err == nil {
		t.Fatalf("expected misaligned error")
	}
	if _, err := f.Write(2, 8, 0); err == nil {
		t.Fatalf("expected misaligned error")
	}
}

func TestOutOfRangeFails(t *testing.T) {
	f := regs.New(16)
	if _, err := f.Read(16, 4); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestStoreRawBypassesMask(t *testing.T) {
	f := regs.New(16)
	// offset 8 stays fully read-only.
	if err := f.StoreRaw(8, 4, 0xDEADBEEF); err != nil {
		t.Fatalf("StoreRaw: %v", err)
	}
	got, _ := f.Read(8, 4)
	if got != 0xDEADBEEF {
		t.Fatalf("got %#x want 0xDEADBEEF", got)
	}
}
