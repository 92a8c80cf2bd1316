/*
 * riscv-iommu - Realize-time configuration knob parser.
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

// Package iommuconfig parses the realize-time knobs spec.md §6 lists
// (version, bus, intremap, off, downstream-mr) out of a small
// key=value config file. Adapted from config/configparser's
// bufio.Scanner line-at-a-time style, reworked from the teacher's
// device-model grammar (<model> <address> <options>) into a flat
// key=value grammar since this core has no device list to parse.
package iommuconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rcornwell/riscv-iommu/iommu/core"
)

// Defaults mirrors spec.md §6's realize-time defaults: BARE mode,
// MSI_FLAT capability present, a modest PASID width.
func Defaults() core.Config {
	return core.Config{
		Version:   1,
		Bus:       0,
		IntRemap:  false,
		Off:       false,
		PasidBits: 8,
		AddrBits:  56,
		MSIFlat:   true,
	}
}

// Parse reads key=value lines from r, one per line, '#' starting a
// comment, and applies recognized keys over Defaults(). Unrecognized
// keys are reported as errors rather than silently ignored.
func Parse(r io.Reader) (core.Config, error) {
	cfg := Defaults()
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return cfg, fmt.Errorf("iommuconfig: line %d: expected key=value, got %q", lineNumber, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if err := apply(&cfg, key, value); err != nil {
			return cfg, fmt.Errorf("iommuconfig: line %d: %w", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func apply(cfg *core.Config, key, value string) error {
	switch key {
	case "version":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("version must be a number: %s", value)
		}
		cfg.Version = uint8(v)
	case "bus":
		v, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("bus must be a number: %s", value)
		}
		cfg.Bus = int(v)
	case "intremap":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("intremap must be true/false: %s", value)
		}
		cfg.IntRemap = v
	case "off":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("off must be true/false: %s", value)
		}
		cfg.Off = v
	case "downstream-mr":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("downstream-mr must be true/false: %s", value)
		}
		cfg.DownstreamMR = v
	case "pasid-bits":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("pasid-bits must be a number: %s", value)
		}
		cfg.PasidBits = uint(v)
	case "addr-bits":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("addr-bits must be a number: %s", value)
		}
		cfg.AddrBits = uint8(v)
	case "msi-flat":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("msi-flat must be true/false: %s", value)
		}
		cfg.MSIFlat = v
	case "msi-mrif":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("msi-mrif must be true/false: %s", value)
		}
		cfg.MSIMrif = v
	case "pd8":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("pd8 must be true/false: %s", value)
		}
		cfg.PD8 = v
	default:
		return fmt.Errorf("unrecognized key: %s", key)
	}
	return nil
}
