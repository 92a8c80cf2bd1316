/*
 * riscv-iommu - Triple-shadow MMIO register file.
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

// Package regs implements component A: the triple-shadow (rw/ro/wc)
// MMIO register file. Masked-update discipline is the same idea as
// the teacher's emu/memory.PutWordMask ("mem &= ^mask; mem |= data &
// mask"), generalized from a single mask to the rw/ro/wc triple the
// IOMMU register map requires.
package regs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrMisaligned = errors.New("regs: misaligned access")
	ErrOutOfRange = errors.New("regs: access beyond MMIO window")
	ErrBadWidth   = errors.New("regs: unsupported access width")
)

// File is the triple-shadow register file: rw holds the live value,
// ro marks bits hardware keeps (1 = the write bit of a masked update
// is ignored), wc marks bits that are write-1-to-clear.
type File struct {
	mu sync.Mutex
	rw []byte
	ro []byte
	wc []byte
}

// New allocates a register file of size bytes, with every byte
// reserved-default-0 (ro = 0xFF) until the caller opens writable
// windows with MakeWritable during realize.
func New(size int) *File {
	f := &File{
		rw: make([]byte, size),
		ro: make([]byte, size),
		wc: make([]byte, size),
	}
	for i := range f.ro {
		f.ro[i] = 0xFF
	}
	return f
}

func (f *File) Size() int {
	return len(f.rw)
}

func checkWidth(size int) error {
	switch size {
	case 1, 2, 4, 8:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrBadWidth, size)
	}
}

func (f *File) bounds(offset uint32, size int) error {
	if err := checkWidth(size); err != nil {
		return err
	}
	if offset%uint32(size) != 0 {
		return fmt.Errorf("%w: offset=%#x size=%d", ErrMisaligned, offset, size)
	}
	if int(offset)+size > len(f.rw) {
		return fmt.Errorf("%w: offset=%#x size=%d", ErrOutOfRange, offset, size)
	}
	return nil
}

func load(b []byte, offset uint32, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[offset])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b[offset:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b[offset:]))
	default:
		return binary.LittleEndian.Uint64(b[offset:])
	}
}

func store(b []byte, offset uint32, size int, v uint64) {
	switch size {
	case 1:
		b[offset] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b[offset:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b[offset:], uint32(v))
	default:
		binary.LittleEndian.PutUint64(b[offset:], v)
	}
}

// Read returns the current rw value at offset, width size.
func (f *File) Read(offset uint32, size int) (uint64, error) {
	if err := f.bounds(offset, size); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return load(f.rw, offset, size), nil
}

// ComputeMasked applies the rw/ro/wc formula without storing it:
// apparent = (rw & ro) | (v & ~ro), then cleared by v & wc. Exported
// so callers with special per-register semantics (IPSR) can see the
// apparent value before deciding what to actually store.
func (f *File) ComputeMasked(offset uint32, size int, v uint64) (apparent uint64, err error) {
	if err = f.bounds(offset, size); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.computeLocked(offset, size, v), nil
}

func (f *File) computeLocked(offset uint32, size int, v uint64) uint64 {
	rw := load(f.rw, offset, size)
	ro := load(f.ro, offset, size)
	wc := load(f.wc, offset, size)
	apparent := (rw & ro) | (v &^ ro)
	apparent &^= v & wc
	return apparent
}

// Write performs the standard masked-update write and stores it.
func (f *File) Write(offset uint32, size int, v uint64) (applied uint64, err error) {
	if err = f.bounds(offset, size); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	applied = f.computeLocked(offset, size, v)
	store(f.rw, offset, size, applied)
	return applied, nil
}

// StoreRaw writes value directly into rw, bypassing ro/wc masking.
// Used by callers (IPSR recomputation, realize-time pokes, enable/
// disable transitions latching head/tail) that have already decided
// the final bit pattern.
func (f *File) StoreRaw(offset uint32, size int, v uint64) error {
	if err := f.bounds(offset, size); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	store(f.rw, offset, size, v)
	return nil
}

// PokeRO sets the read-only mask bits at offset (1 = hardware-held,
// ignored on writes unless opened). Used at realize time to describe
// which fields are writable.
func (f *File) PokeRO(offset uint32, size int, mask uint64) error {
	if err := f.bounds(offset, size); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	store(f.ro, offset, size, mask)
	return nil
}

// PokeWC sets the write-1-to-clear mask bits at offset.
func (f *File) PokeWC(offset uint32, size int, mask uint64) error {
	if err := f.bounds(offset, size); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	store(f.wc, offset, size, mask)
	return nil
}

// MakeWritable clears the given bits in ro, opening them to software
// writes. MakeReadOnly sets them. The queue enable and disable paths
// in iommu/core call neither, so the head/tail registers keep the ro
// mask set at realize time.
func (f *File) MakeWritable(offset uint32, size int, bits uint64) error {
	if err := f.bounds(offset, size); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := load(f.ro, offset, size)
	store(f.ro, offset, size, cur&^bits)
	return nil
}

func (f *File) MakeReadOnly(offset uint32, size int, bits uint64) error {
	if err := f.bounds(offset, size); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := load(f.ro, offset, size)
	store(f.ro, offset, size, cur|bits)
	return nil
}
