/*
 * riscv-iommu - Interactive console harness.
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

// Console command dispatch, grounded on command/parser's name-table
// dispatch and command/reader.ConsoleReader's liner prompt loop.
// Reworked from the teacher's CPU-register/memory-inspection command
// set into register/MMIO and physical-memory inspection commands for
// an IOMMU core realized over hostsim.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/rcornwell/riscv-iommu/hostsim"
	"github.com/rcornwell/riscv-iommu/iommu/core"
	"github.com/rcornwell/riscv-iommu/util/hexdump"
)

type console struct {
	device     *core.Device
	mem        *hostsim.Memory
	interrupts *hostsim.Interrupts
}

type cmd struct {
	name    string
	min     int
	process func(c *console, args []string) (quit bool, err error)
}

var cmdList = []cmd{
	{name: "regread", min: 4, process: (*console).cmdRegRead},
	{name: "regwrite", min: 4, process: (*console).cmdRegWrite},
	{name: "load", min: 2, process: (*console).cmdLoad},
	{name: "dump", min: 2, process: (*console).cmdDump},
	{name: "interrupts", min: 3, process: (*console).cmdInterrupts},
	{name: "help", min: 1, process: (*console).cmdHelp},
	{name: "quit", min: 1, process: (*console).cmdQuit},
}

func matchCmd(name string) []cmd {
	if name == "" {
		return nil
	}
	var matches []cmd
	for _, c := range cmdList {
		if strings.HasPrefix(c.name, name) && len(name) >= c.min {
			matches = append(matches, c)
		}
	}
	return matches
}

func processCommand(c *console, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	matches := matchCmd(strings.ToLower(fields[0]))
	if len(matches) == 0 {
		return false, fmt.Errorf("command not found: %s", fields[0])
	}
	if len(matches) > 1 {
		return false, fmt.Errorf("ambiguous command: %s", fields[0])
	}
	return matches[0].process(c, fields[1:])
}

func runConsole(device *core.Device, mem *hostsim.Memory, interrupts *hostsim.Interrupts) {
	c := &console{device: device, mem: mem, interrupts: interrupts}

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		var out []string
		for _, cmd := range cmdList {
			if strings.HasPrefix(cmd.name, partial) {
				out = append(out, cmd.name)
			}
		}
		return out
	})

	for {
		text, err := line.Prompt("iommu> ")
		if err == nil {
			line.AppendHistory(text)
			quit, perr := processCommand(c, text)
			if perr != nil {
				fmt.Println("Error: " + perr.Error())
			}
			if quit {
				return
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		slog.Error("error reading line: " + err.Error())
		return
	}
}

func parseUint(text string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(text, "0x"), 16, 64)
}

// regread <offset-hex> <size>
func (c *console) cmdRegRead(args []string) (bool, error) {
	if len(args) != 2 {
		return false, errors.New("usage: regread <offset-hex> <size>")
	}
	offset, err := parseUint(args[0])
	if err != nil {
		return false, fmt.Errorf("bad offset: %w", err)
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return false, fmt.Errorf("bad size: %w", err)
	}
	v, err := c.device.Read(uint32(offset), size)
	if err != nil {
		return false, err
	}
	fmt.Printf("%#04x: %#x\n", offset, v)
	return false, nil
}

// regwrite <offset-hex> <size> <value-hex>
func (c *console) cmdRegWrite(args []string) (bool, error) {
	if len(args) != 3 {
		return false, errors.New("usage: regwrite <offset-hex> <size> <value-hex>")
	}
	offset, err := parseUint(args[0])
	if err != nil {
		return false, fmt.Errorf("bad offset: %w", err)
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return false, fmt.Errorf("bad size: %w", err)
	}
	value, err := parseUint(args[2])
	if err != nil {
		return false, fmt.Errorf("bad value: %w", err)
	}
	if err := c.device.Write(uint32(offset), size, value); err != nil {
		return false, err
	}
	return false, nil
}

// load <addr-hex> <hex-byte>...
func (c *console) cmdLoad(args []string) (bool, error) {
	if len(args) < 2 {
		return false, errors.New("usage: load <addr-hex> <hex-byte>...")
	}
	addr, err := parseUint(args[0])
	if err != nil {
		return false, fmt.Errorf("bad address: %w", err)
	}
	data := make([]byte, 0, len(args)-1)
	for _, tok := range args[1:] {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return false, fmt.Errorf("bad byte %q: %w", tok, err)
		}
		data = append(data, byte(v))
	}
	if err := c.mem.DMAWrite(addr, data); err != nil {
		return false, err
	}
	return false, nil
}

// dump <addr-hex> <len>
func (c *console) cmdDump(args []string) (bool, error) {
	if len(args) != 2 {
		return false, errors.New("usage: dump <addr-hex> <len>")
	}
	addr, err := parseUint(args[0])
	if err != nil {
		return false, fmt.Errorf("bad address: %w", err)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return false, fmt.Errorf("bad length: %w", err)
	}
	buf := make([]byte, n)
	if err := c.mem.DMARead(addr, buf); err != nil {
		return false, err
	}
	fmt.Print(hexdump.Dump(addr, buf))
	return false, nil
}

func (c *console) cmdInterrupts(args []string) (bool, error) {
	lines := c.interrupts.Drain()
	if len(lines) == 0 {
		fmt.Println("no interrupts pending")
		return false, nil
	}
	strs := make([]string, len(lines))
	for i, l := range lines {
		strs[i] = strconv.Itoa(l)
	}
	fmt.Println("raised: " + strings.Join(strs, ", "))
	return false, nil
}

func (c *console) cmdHelp(args []string) (bool, error) {
	fmt.Println("commands:")
	for _, cmd := range cmdList {
		fmt.Println("  " + cmd.name)
	}
	return false, nil
}

func (c *console) cmdQuit(args []string) (bool, error) {
	return true, nil
}
