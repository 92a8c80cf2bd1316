/*
 * riscv-iommu - Per-component debug flag registry.
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

// Package debugflag tracks which components have debug logging
// turned on, keyed by name. Adapted from util/debug's per-subsystem
// Debugf gating plus config/debugconfig's named-option dispatch
// ("DEBUG CHANNEL 3 trace", "DEBUG CPU trace"), reworked from a
// channel/cpu/tape vocabulary into this core's component names.
package debugflag

import (
	"fmt"
	"strings"
	"sync"
)

// Component names accepted by Set: the ledger's components A-E, G
// and H plus the config layer (the address-space registry, F, has no
// flag).
const (
	Regs      = "regs"
	Queue     = "queue"
	Directory = "directory"
	MSI       = "msi"
	Context   = "context"
	Command   = "command"
	IRQ       = "irq"
	Config    = "config"
)

var known = map[string]bool{
	Regs: true, Queue: true, Directory: true, MSI: true,
	Context: true, Command: true, IRQ: true, Config: true,
}

var (
	mu      sync.RWMutex
	enabled = map[string]bool{}
)

// Set turns debug logging for component on or off. Returns an error
// if component isn't a recognized name, the way debugconfig.setDebug
// rejects an unknown device/module name.
func Set(component string, on bool) error {
	name := strings.ToLower(component)
	if !known[name] {
		return fmt.Errorf("debugflag: unknown component %q", component)
	}
	mu.Lock()
	defer mu.Unlock()
	enabled[name] = on
	return nil
}

// Enabled reports whether component currently has debug logging on.
func Enabled(component string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled[strings.ToLower(component)]
}
