package iommuconfig_test

import (
	"strings"
	"testing"

	"github.com/rcornwell/riscv-iommu/config/iommuconfig"
)

func TestParseAppliesRecognizedKeys(t *testing.T) {
	src := "# comment\nversion=2\nbus=1\nintremap=true\noff=true\n\ndownstream-mr=true\n"
	cfg, err := iommuconfig.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Version != 2 || cfg.Bus != 1 || !cfg.IntRemap || !cfg.Off || !cfg.DownstreamMR {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := iommuconfig.Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := iommuconfig.Defaults()
	if cfg != want {
		t.Fatalf("expected defaults unchanged, got %+v want %+v", cfg, want)
	}
}

func TestParseRejectsUnrecognizedKey(t *testing.T) {
	_, err := iommuconfig.Parse(strings.NewReader("bogus=1\n"))
	if err == nil {
		t.Fatalf("expected error for unrecognized key")
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := iommuconfig.Parse(strings.NewReader("not-a-keyvalue-line\n"))
	if err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestParseRejectsBadBool(t *testing.T) {
	_, err := iommuconfig.Parse(strings.NewReader("off=maybe\n"))
	if err == nil {
		t.Fatalf("expected error for bad bool")
	}
}
