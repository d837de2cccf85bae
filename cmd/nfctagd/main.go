// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command nfctagd drives an NCI controller, reports tags entering and
// leaving the field and reads or writes their NDEF text.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nfctag "github.com/ZaparooProject/go-nfctag"
	"github.com/ZaparooProject/go-nfctag/detection"
	_ "github.com/ZaparooProject/go-nfctag/detection/i2c"
	_ "github.com/ZaparooProject/go-nfctag/detection/kernel"
	_ "github.com/ZaparooProject/go-nfctag/detection/uart"
	"github.com/ZaparooProject/go-nfctag/internal/syncutil"
	simtest "github.com/ZaparooProject/go-nfctag/internal/testing"
	"github.com/ZaparooProject/go-nfctag/nci"
	"github.com/ZaparooProject/go-nfctag/polling"
	"github.com/ZaparooProject/go-nfctag/transport/i2c"
	"github.com/ZaparooProject/go-nfctag/transport/kernel"
	"github.com/ZaparooProject/go-nfctag/transport/uart"
)

const (
	transportUART   = "uart"
	transportI2C    = "i2c"
	transportKernel = "kernel"
	transportSim    = "sim"
	transportAuto   = "auto"

	defaultBaud   = 115200
	simPlaceDelay = 200 * time.Millisecond
)

// Protocols mapped and modes polled when discovery starts.
var (
	discoveryProtocols = []nfctag.Protocol{
		nfctag.ProtocolT1T, nfctag.ProtocolT2T, nfctag.ProtocolT3T,
		nfctag.ProtocolISODEP, nfctag.ProtocolISO15693,
	}
	discoveryModes = []nfctag.DiscoveryMode{
		nfctag.ModePollA, nfctag.ModePollB, nfctag.ModePollF, nfctag.ModePollISO15693,
	}
)

type config struct {
	out              io.Writer
	simTag           *simtest.VirtualTag
	transport        string
	devicePath       string
	irqPin           string
	writeText        string
	baud             int
	presenceInterval time.Duration
	lockTimeout      time.Duration
	debug            bool
	sessionLog       bool
	powerCycle       bool
	passiveDetect    bool
}

// Package-level flag variables
var (
	flagTransport        string
	flagDevicePath       string
	flagIRQPin           string
	flagWriteText        string
	flagBaud             int
	flagPresenceInterval time.Duration
	flagLockTimeout      time.Duration
	flagDebug            bool
	flagSessionLog       bool
	flagPowerCycle       bool
	flagPassiveDetect    bool
)

func init() {
	flag.StringVar(&flagTransport, "transport", "", "Transport: uart, i2c, kernel, sim or auto (guessed from -device if empty)")
	flag.StringVar(&flagDevicePath, "device", "", "Device path, e.g. /dev/ttyUSB0, /dev/i2c-1:0x28 or /dev/pn544")
	flag.StringVar(&flagIRQPin, "irq", "", "GPIO name of the controller IRQ line (i2c only)")
	flag.StringVar(&flagWriteText, "write", "", "Text to write to the next scanned tag (exits after write)")
	flag.IntVar(&flagBaud, "baud", defaultBaud, "Serial baud rate (uart only)")
	flag.DurationVar(&flagPresenceInterval, "presence", 0, "Presence check interval (monitor default if 0)")
	flag.DurationVar(&flagLockTimeout, "lock-timeout", 30*time.Second, "Deadlock report threshold (deadlock builds only)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagSessionLog, "session-log", false, "Write a debug session log file")
	flag.BoolVar(&flagPowerCycle, "power-cycle", false, "Power cycle the controller on open (kernel only)")
	flag.BoolVar(&flagPassiveDetect, "passive", false, "Auto-detect without resetting candidate devices")
}

func parseConfig() (*config, error) {
	cfg := &config{
		out:              os.Stdout,
		transport:        strings.ToLower(flagTransport),
		devicePath:       flagDevicePath,
		irqPin:           flagIRQPin,
		writeText:        flagWriteText,
		baud:             flagBaud,
		presenceInterval: flagPresenceInterval,
		lockTimeout:      flagLockTimeout,
		debug:            flagDebug,
		sessionLog:       flagSessionLog,
		powerCycle:       flagPowerCycle,
		passiveDetect:    flagPassiveDetect,
	}
	if cfg.transport == "" {
		cfg.transport = guessTransport(cfg.devicePath)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Enable debug output if --debug flag is set
	if cfg.debug {
		nfctag.SetDebugEnabled(true)
	}
	syncutil.SetLockTimeout(cfg.lockTimeout)
	return cfg, nil
}

func (c *config) validate() error {
	if c.baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.baud)
	}
	if c.presenceInterval < 0 {
		return errors.New("presence interval must not be negative")
	}
	switch c.transport {
	case transportSim, transportAuto:
		return nil
	case transportUART, transportI2C, transportKernel:
		if c.devicePath == "" {
			return fmt.Errorf("-device is required for the %s transport", c.transport)
		}
		return nil
	default:
		return fmt.Errorf("unsupported transport type: %q", c.transport)
	}
}

// guessTransport picks a transport from the shape of a device path.
func guessTransport(path string) string {
	pathLower := strings.ToLower(path)
	switch {
	case path == "":
		return transportAuto
	case strings.Contains(pathLower, "i2c"):
		return transportI2C
	case strings.Contains(pathLower, "pn5") || strings.Contains(pathLower, "nfc"):
		return transportKernel
	default:
		return transportUART
	}
}

// detectDevice fills in the transport and path of the best controller found.
func detectDevice(ctx context.Context, cfg *config) error {
	opts := detection.DefaultOptions()
	if cfg.passiveDetect {
		opts.Mode = detection.Passive
	}
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return fmt.Errorf("failed to detect a controller: %w", err)
	}
	best, ok := detection.Best(devices)
	if !ok {
		return fmt.Errorf("failed to detect a controller: %w", detection.ErrNoDevicesFound)
	}
	cfg.transport, cfg.devicePath = best.Transport, best.Path
	_, _ = fmt.Fprintf(cfg.out, "Using %s\n", best)
	return nil
}

// newTransport opens the configured transport. The simulated transport
// comes with its controller so a tag can be placed on it.
func newTransport(cfg *config) (nci.Transport, *simtest.SimController, error) {
	switch cfg.transport {
	case transportUART:
		t, err := uart.New(cfg.devicePath, cfg.baud)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create UART transport for %s: %w", cfg.devicePath, err)
		}
		return t, nil, nil
	case transportI2C:
		var opts []i2c.Option
		if cfg.irqPin != "" {
			opts = append(opts, i2c.WithIRQPin(cfg.irqPin))
		}
		t, err := i2c.New(cfg.devicePath, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create I2C transport for %s: %w", cfg.devicePath, err)
		}
		return t, nil, nil
	case transportKernel:
		var opts []kernel.Option
		if cfg.powerCycle {
			opts = append(opts, kernel.WithPowerCycle())
		}
		t, err := kernel.New(cfg.devicePath, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kernel transport for %s: %w", cfg.devicePath, err)
		}
		return t, nil, nil
	case transportSim:
		sim := simtest.NewSimController()
		return simtest.NewSimTransport(sim), sim, nil
	default:
		return nil, nil, fmt.Errorf("unsupported transport type: %s", cfg.transport)
	}
}

func run(ctx context.Context, cfg *config) error {
	if cfg.sessionLog {
		path, err := nfctag.InitSessionLog()
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		defer func() { _ = nfctag.CloseSessionLog() }()
		_, _ = fmt.Fprintf(cfg.out, "Session log: %s\n", path)
	}

	if cfg.transport == transportAuto {
		if err := detectDevice(ctx, cfg); err != nil {
			return err
		}
	}
	transport, sim, err := newTransport(cfg)
	if err != nil {
		return err
	}
	port := cfg.devicePath
	if port == "" {
		port = cfg.transport
	}
	link, err := nci.NewLink(transport, nci.WithPort(port))
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("failed to create link: %w", err)
	}
	defer func() {
		if err := link.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close link: %v\n", err)
		}
	}()

	pollCfg := polling.DefaultConfig()
	if cfg.presenceInterval > 0 {
		pollCfg.PresenceInterval = cfg.presenceInterval
	}
	recoverer := polling.NewDefaultRecoverer(link, discoveryProtocols, discoveryModes,
		pollCfg.SleepRecovery.RecoveryBackoff, pollCfg.SleepRecovery.MaxRecoveryAttempts)
	mon := polling.NewMonitor(pollCfg, recoverer)

	session := nfctag.NewSession(link, mon, nfctag.DefaultConfig())
	link.SetHandler(session)
	mon.Attach(session)
	// Ensure session cleanup for fast shutdown
	defer func() {
		if err := session.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
	}()

	if err := startController(ctx, link, session); err != nil {
		return err
	}
	if sim != nil {
		tag := cfg.simTag
		if tag == nil {
			tag = simtest.NewVirtualNTAG213(nil)
		}
		// Placed once the monitor is listening, as a user would.
		placed := time.AfterFunc(simPlaceDelay, func() { sim.PlaceTag(tag) })
		defer placed.Stop()
	}

	if cfg.writeText != "" {
		return runWriteMode(ctx, mon, session, cfg)
	}
	return runReadMode(ctx, mon, session, cfg)
}

func startController(ctx context.Context, link *nci.Link, session *nfctag.Session) error {
	if err := link.Start(ctx); err != nil {
		return fmt.Errorf("failed to start link: %w", err)
	}
	if err := session.Start(); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if err := link.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset controller: %w", err)
	}
	if err := link.StartDiscovery(ctx, discoveryProtocols, discoveryModes); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}
	return nil
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Parse command-line flags
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	// Run the main application logic
	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
