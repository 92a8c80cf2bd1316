/*
 * riscv-iommu - Hex-dump helper for fixed-size records.
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

// Package hexdump formats byte slices the console and fault logging
// paths need to show: register windows, queue entries, DDT/PDT
// leaves and MSI PTEs. Adapted from util/hex's writer-based formatting
// style, reworked from S370's word/halfword-oriented helpers into one
// generic offset-prefixed byte dumper.
package hexdump

import "strings"

var hexMap = "0123456789abcdef"

// FormatByte appends the two-hex-digit form of b to str.
func FormatByte(str *strings.Builder, b byte) {
	str.WriteByte(hexMap[(b>>4)&0xf])
	str.WriteByte(hexMap[b&0xf])
}

// Dump renders data as offset-prefixed 16-byte rows, the shape used
// when the console inspects a queue entry or DDT/PDT leaf.
func Dump(baseAddr uint64, data []byte) string {
	var str strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		addr := baseAddr + uint64(off)
		for shift := 60; shift >= 0; shift -= 4 {
			str.WriteByte(hexMap[(addr>>uint(shift))&0xf])
		}
		str.WriteString(": ")

		for i, b := range row {
			FormatByte(&str, b)
			str.WriteByte(' ')
			if i == 7 {
				str.WriteByte(' ')
			}
		}
		str.WriteByte('\n')
	}
	return str.String()
}

// FormatWords renders data as a flat sequence of little-endian u64
// words, one per line, prefixed with "+<offset>:" — the layout used
// to inspect a register window or a DC/MSI-PTE struct field by field.
func FormatWords(data []byte) string {
	var str strings.Builder
	for off := 0; off+8 <= len(data); off += 8 {
		str.WriteByte('+')
		FormatByte(&str, byte(off))
		str.WriteString(": ")
		for i := 7; i >= 0; i-- {
			FormatByte(&str, data[off+i])
		}
		str.WriteByte('\n')
	}
	return str.String()
}
