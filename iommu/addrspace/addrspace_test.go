package addrspace_test

import (
	"testing"

	"github.com/rcornwell/riscv-iommu/iommu/addrspace"
	"github.com/rcornwell/riscv-iommu/iommu/host"
)

type fakeTranslator struct{ n int }

func (f *fakeTranslator) Translate(req *host.Request) error { f.n++; return nil }

type fakeHost struct {
	bus, dev, fn int
	registered   host.Translator
}

func (h *fakeHost) RegisterAddressSpace(bus, device, function int, translate host.Translator) {
	h.bus, h.dev, h.fn = bus, device, function
	h.registered = translate
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	r := addrspace.New(8)
	tr := &fakeTranslator{}
	h := &fakeHost{}

	s1 := r.FindOrCreate(0, 3, 0, 0x18, tr, h)
	s2 := r.FindOrCreate(0, 3, 0, 0x18, tr, h)
	if s1 != s2 {
		t.Fatalf("expected same space returned for repeated lookup")
	}
	if h.registered == nil {
		t.Fatalf("expected host to be asked to register the new space")
	}
}

func TestFindMissesOnUnknownRequesterID(t *testing.T) {
	r := addrspace.New(8)
	if _, ok := r.Find(1, 2, 3); ok {
		t.Fatalf("expected miss on empty registry")
	}
}

func TestChainSearchesSecondIOMMU(t *testing.T) {
	primary := addrspace.New(8)
	secondary := addrspace.New(8)
	primary.Chain(secondary)

	tr := &fakeTranslator{}
	secondary.FindOrCreate(0, 5, 0, 0x28, tr, nil)

	s, ok := primary.Find(0, 5, 0)
	if !ok {
		t.Fatalf("expected chained registry search to find space on secondary")
	}
	if s.DeviceID != 0x28 {
		t.Fatalf("unexpected device id %x", s.DeviceID)
	}
}

func TestContextIndexFallsBackToZero(t *testing.T) {
	if got := addrspace.ContextIndex(false, 7); got != 0 {
		t.Fatalf("expected 0 without PASID, got %d", got)
	}
	if got := addrspace.ContextIndex(true, 7); got != 7 {
		t.Fatalf("expected PASID passthrough, got %d", got)
	}
}

func TestTotalIndices(t *testing.T) {
	r := addrspace.New(4)
	if got := r.TotalIndices(); got != 16 {
		t.Fatalf("expected 2^4=16, got %d", got)
	}
}

func TestSpaceTranslateForwards(t *testing.T) {
	r := addrspace.New(8)
	tr := &fakeTranslator{}
	s := r.FindOrCreate(0, 1, 0, 1, tr, nil)
	if err := s.Translate(&host.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.n != 1 {
		t.Fatalf("expected translate forwarded once, got %d", tr.n)
	}
}
