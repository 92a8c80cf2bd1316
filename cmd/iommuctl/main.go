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

// Command iommuctl realizes an IOMMU core over a hostsim-backed
// memory and interrupt sink and drops into an interactive console for
// reading and writing MMIO registers, loading and dumping physical
// memory, and listing raised interrupt lines. Grounded on
// main.go's getopt flag parsing plus command/reader.ConsoleReader's
// liner readline loop, reworked from S370's config-file-driven CPU
// boot into a single realized core with a fixed memory size flag.
package main

import (
	"io"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/riscv-iommu/config/iommuconfig"
	"github.com/rcornwell/riscv-iommu/hostsim"
	"github.com/rcornwell/riscv-iommu/iommu/core"
	"github.com/rcornwell/riscv-iommu/iommu/host"
	"github.com/rcornwell/riscv-iommu/util/logger"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file (key=value per line)")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optMemSize := getopt.IntLong("memsize", 'm', 16*1024*1024, "Simulated physical memory size in bytes")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file io.Writer
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error("unable to create log file", "error", err)
			os.Exit(1)
		}
		file = f
	}
	debug := false
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	handler := logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, &debug)
	log := slog.New(handler)
	slog.SetDefault(log)

	cfg := iommuconfig.Defaults()
	if *optConfig != "" {
		f, err := os.Open(*optConfig)
		if err != nil {
			log.Error("unable to open configuration file", "path", *optConfig, "error", err)
			os.Exit(1)
		}
		cfg, err = iommuconfig.Parse(f)
		f.Close()
		if err != nil {
			log.Error("invalid configuration", "error", err)
			os.Exit(1)
		}
	}

	log.Info("riscv-iommu console started", "memsize", *optMemSize)

	mem := hostsim.NewMemory(*optMemSize)
	interrupts := &hostsim.Interrupts{}
	bus := hostsim.NewBus()
	device := core.New(mem, mem, interrupts, cfg)
	device.Registry().FindOrCreate(cfg.Bus, 0, 0, 0, deviceTranslator{device}, bus)

	runConsole(device, mem, interrupts)
}

// deviceTranslator adapts core.Device.Translate to host.Translator so
// the registry can hand the device back to a bus model as the
// translation callback for its own device-id 0 space.
type deviceTranslator struct{ d *core.Device }

func (t deviceTranslator) Translate(req *host.Request) error {
	return t.d.Translate(req)
}
