package context_test

import (
	"testing"

	"github.com/rcornwell/riscv-iommu/iommu/context"
	"github.com/rcornwell/riscv-iommu/iommu/directory"
)

func TestInsertAndPinnedLookup(t *testing.T) {
	c := context.New()
	ctx := &directory.Context{DeviceID: 5, TC: directory.TCValid}
	c.Insert(5, 0, ctx)

	p := c.Pin()
	defer p.Release()
	got, ok := p.Get(5, 0)
	if !ok || got != ctx {
		t.Fatalf("expected pinned lookup to find inserted context")
	}
}

func TestMissOnUnknownIdentity(t *testing.T) {
	c := context.New()
	p := c.Pin()
	defer p.Release()
	if _, ok := p.Get(1, 1); ok {
		t.Fatalf("expected miss on empty cache")
	}
}

func TestInvalidateClearsValidBit(t *testing.T) {
	c := context.New()
	ctx := &directory.Context{DeviceID: 1, TC: directory.TCValid}
	c.Insert(1, 0, ctx)
	c.Invalidate(1, 0)
	if ctx.Valid() {
		t.Fatalf("expected tc.V cleared")
	}
	// entry survives the invalidation, per spec: never freed until eviction.
	p := c.Pin()
	defer p.Release()
	if _, ok := p.Get(1, 0); !ok {
		t.Fatalf("expected entry to still be present after invalidate")
	}
}

func TestOverflowReplacesWholesale(t *testing.T) {
	c := context.New()
	for i := 0; i < context.LimitCacheCtx; i++ {
		c.Insert(uint32(i), 0, &directory.Context{DeviceID: uint32(i), TC: directory.TCValid})
	}
	if c.Len() != context.LimitCacheCtx {
		t.Fatalf("expected full cache, got %d", c.Len())
	}
	c.Insert(999, 0, &directory.Context{DeviceID: 999, TC: directory.TCValid})
	if c.Len() != 1 {
		t.Fatalf("expected wholesale replace leaving only the new entry, got %d", c.Len())
	}
	p := c.Pin()
	defer p.Release()
	if _, ok := p.Get(0, 0); ok {
		t.Fatalf("expected old entries evicted")
	}
	if _, ok := p.Get(999, 0); !ok {
		t.Fatalf("expected new entry present")
	}
}

func TestPinnedSnapshotSurvivesReplace(t *testing.T) {
	c := context.New()
	ctx := &directory.Context{DeviceID: 1, TC: directory.TCValid}
	c.Insert(1, 0, ctx)

	p := c.Pin()
	for i := 0; i < context.LimitCacheCtx; i++ {
		c.Insert(uint32(i+100), 0, &directory.Context{DeviceID: uint32(i + 100), TC: directory.TCValid})
	}
	got, ok := p.Get(1, 0)
	if !ok || got != ctx {
		t.Fatalf("pinned snapshot should still see pre-replace entry")
	}
	p.Release()
}
