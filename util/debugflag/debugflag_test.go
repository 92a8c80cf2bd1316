package debugflag_test

import (
	"testing"

	"github.com/rcornwell/riscv-iommu/util/debugflag"
)

func TestSetAndEnabled(t *testing.T) {
	if err := debugflag.Set("Queue", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !debugflag.Enabled("queue") {
		t.Fatalf("expected queue debug enabled")
	}
	if err := debugflag.Set("queue", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if debugflag.Enabled("QUEUE") {
		t.Fatalf("expected queue debug disabled")
	}
}

func TestSetRejectsUnknownComponent(t *testing.T) {
	if err := debugflag.Set("nonsense", true); err == nil {
		t.Fatalf("expected error for unknown component")
	}
}

func TestEnabledDefaultsFalse(t *testing.T) {
	if debugflag.Enabled("irq") {
		t.Fatalf("expected irq debug to default off")
	}
}
