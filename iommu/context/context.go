/*
 * riscv-iommu - Bounded translation-context cache.
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

// Package context implements component E: the bounded
// {device_id, process_id} -> translation-context cache. Grounded on
// emu/event.EventList's preference for a small synchronized structure
// with explicit pointers rather than a generic container, reworked
// here into an atomically-swapped, reference-counted immutable table
// per spec.md §9's reimplementation note.
package context

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rcornwell/riscv-iommu/iommu/directory"
)

// LimitCacheCtx is the cache's capacity; reaching it triggers a
// wholesale swap to a fresh empty table rather than partial eviction
// (spec.md §3, §8).
const LimitCacheCtx = 128

type key struct {
	deviceID  uint32
	processID uint32
}

// snapshot is one immutable generation of the lookup table. refs
// counts in-flight pinning translations; the table is never mutated
// once published, only replaced.
type snapshot struct {
	entries map[key]*directory.Context
	refs    atomic.Int64
}

// Pinned is a reference-counted handle on one snapshot, held by a
// single in-flight translation.
type Pinned struct {
	snap *snapshot
}

// Get looks up the context for the given identity within the pinned
// snapshot.
func (p *Pinned) Get(deviceID, processID uint32) (*directory.Context, bool) {
	c, ok := p.snap.entries[key{deviceID, processID}]
	return c, ok
}

// Release drops this translation's reference to the pinned snapshot.
func (p *Pinned) Release() {
	p.snap.refs.Add(-1)
}

// Cache is the context cache described in spec.md §5: its mutex
// guards insertions and the bulk-replace swap, lookups run against an
// atomically loaded snapshot, and the handle it hands out is
// reference-counted so an in-flight translation can outlive a cache
// replacement.
type Cache struct {
	mu  sync.Mutex
	cur atomic.Pointer[snapshot]
}

func New() *Cache {
	c := &Cache{}
	c.cur.Store(&snapshot{entries: map[key]*directory.Context{}})
	return c
}

// Pin takes a reference on the current snapshot generation. The
// in-flight translation performs its lookup and work against the
// pinned snapshot, then calls Release.
func (c *Cache) Pin() *Pinned {
	snap := c.cur.Load()
	snap.refs.Add(1)
	return &Pinned{snap: snap}
}

// Insert installs ctx under (deviceID, processID), allocated on first
// translate miss (spec.md §3). If the table is at capacity the cache
// is atomically replaced with a fresh empty one before the insert,
// never partially evicted.
func (c *Cache) Insert(deviceID, processID uint32, ctx *directory.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.cur.Load()
	var entries map[key]*directory.Context
	if len(old.entries) >= LimitCacheCtx {
		slog.Debug("context cache capacity reached, replacing table", "limit", LimitCacheCtx)
		entries = make(map[key]*directory.Context)
	} else {
		entries = make(map[key]*directory.Context, len(old.entries)+1)
		for k, v := range old.entries {
			entries[k] = v
		}
	}
	entries[key{deviceID, processID}] = ctx
	c.cur.Store(&snapshot{entries: entries})
}

// Invalidate clears tc.V on the entry for (deviceID, processID), if
// present. Per spec.md §3 an invalidated context is never freed until
// the next wholesale eviction; it mutates the shared Context value in
// place so pinned readers observe the invalidation too.
func (c *Cache) Invalidate(deviceID, processID uint32) {
	snap := c.cur.Load()
	if ctx, ok := snap.entries[key{deviceID, processID}]; ok {
		ctx.TC &^= directory.TCValid
	}
}

// InvalidateDevice clears tc.V on every cached context matching
// deviceID, used by IODIR.INVAL_DDT.
func (c *Cache) InvalidateDevice(deviceID uint32) {
	snap := c.cur.Load()
	for k, ctx := range snap.entries {
		if k.deviceID == deviceID {
			ctx.TC &^= directory.TCValid
		}
	}
}

// InvalidateAll clears tc.V on every cached context.
func (c *Cache) InvalidateAll() {
	snap := c.cur.Load()
	for _, ctx := range snap.entries {
		ctx.TC &^= directory.TCValid
	}
}

// Len reports the current generation's entry count, for diagnostics.
func (c *Cache) Len() int {
	return len(c.cur.Load().entries)
}
