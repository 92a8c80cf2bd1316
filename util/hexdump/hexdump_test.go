package hexdump_test

import (
	"strings"
	"testing"

	"github.com/rcornwell/riscv-iommu/util/hexdump"
)

func TestDumpProducesOneRowPerSixteenBytes(t *testing.T) {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	out := hexdump.Dump(0, data)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 rows for 32 bytes, got %d: %q", len(lines), out)
	}
}

func TestFormatByteWritesTwoHexDigits(t *testing.T) {
	var b strings.Builder
	hexdump.FormatByte(&b, 0xAB)
	if b.String() != "ab" {
		t.Fatalf("expected 'ab', got %q", b.String())
	}
}

func TestFormatWordsLittleEndian(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	out := hexdump.FormatWords(data)
	if !strings.Contains(out, "0807060504030201") {
		t.Fatalf("expected little-endian word rendering, got %q", out)
	}
}
