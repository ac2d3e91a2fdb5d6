// Package firmware defines the UEFI service contracts the boot orchestrator
// consumes, ported from bootloader/src/uefi/*.rs call shapes: memory map
// enumeration, the watchdog, stall, MP-services AP launch, TFTP fetch, and
// the console/serial diagnostic surfaces. Real firmware backs these with
// protocol pointers; package sim backs them with an in-memory simulation
// for tests and the CLI harness.
package firmware

import (
	"context"
	"errors"
	"time"
)

// MemoryType classifies a region returned by MemoryMap.Get, restricted to
// the two kinds the orchestrator consumes per spec §6.
type MemoryType int

const (
	MemoryTypeConventional MemoryType = iota
	MemoryTypePersistent
)

// MemoryRegion is one entry of the firmware memory map.
type MemoryRegion struct {
	PhysicalStart uint64
	NumberOfPages uint64
	Type          MemoryType
}

var (
	// ErrGetMemoryMapFailed is returned by MemoryMap.Get on firmware failure.
	ErrGetMemoryMapFailed = errors.New("firmware: GetMemoryMap failed")
	// ErrLocateProtocolFailed is returned when a protocol interface cannot be obtained.
	ErrLocateProtocolFailed = errors.New("firmware: LocateProtocol failed")
	// ErrStartupThisAPFailed is returned when MP-services cannot launch an AP.
	ErrStartupThisAPFailed = errors.New("firmware: StartupThisAP failed")
	// ErrTFTPConfigureFailed is returned by TFTP.Configure on failure.
	ErrTFTPConfigureFailed = errors.New("firmware: TFTP Configure failed")
	// ErrTFTPReadFileFailed is returned by TFTP.ReadFile on failure.
	ErrTFTPReadFileFailed = errors.New("firmware: TFTP ReadFile failed")
)

// MemoryMap enumerates the firmware's physical memory regions.
type MemoryMap interface {
	Get() ([]MemoryRegion, error)
}

// Watchdog controls the firmware auto-reboot timer.
type Watchdog interface {
	// Disable calls the SetWatchdogTimer(0,0,0,NULL) equivalent: cancel the
	// timer so firmware will not auto-reboot the platform.
	Disable() error
}

// Stall sleeps the calling core for the given duration, backing the
// "Stall(µs)" contract used by the monitor loop.
type Stall interface {
	Stall(ctx context.Context, d time.Duration) error
}

// APEntryFunc is the physical-address function pointer form MP-services
// expects: a core id and an opaque argument pointer (a CoreArg's physical
// address), both caller-interpreted.
type APEntryFunc = uintptr

// MPServices launches application processors.
type MPServices interface {
	// NumberOfProcessors returns the logical CPU count the platform reports.
	NumberOfProcessors() (int, error)
	// StartupThisAP launches core procNum at entryFn with argPtr, matching
	// the non-blocking contract: wait_event=nil, timeout=0, single_thread=false.
	StartupThisAP(procNum int, entryFn APEntryFunc, argPtr uintptr) error
}

// TFTP fetches a file over the fixed network configuration in internal/netcfg.
type TFTP interface {
	Configure(cfg TFTPConfig) error
	ReadFile(filename string, dst []byte) (int, error)
}

// TFTPConfig is the fixed configuration passed to TFTP.Configure, matching
// spec §6's literal values.
type TFTPConfig struct {
	StationIP   [4]byte
	SubnetMask  [4]byte
	GatewayIP   [4]byte
	ServerIP    [4]byte
	ServerPort  uint16
	BlockSize   uint16
	TryCount    int
	Timeout     time.Duration
}

// DefaultTFTPConfig is the fixed configuration spec §6 mandates.
func DefaultTFTPConfig() TFTPConfig {
	return TFTPConfig{
		StationIP:  [4]byte{192, 168, 2, 201},
		SubnetMask: [4]byte{255, 255, 255, 0},
		GatewayIP:  [4]byte{192, 168, 2, 2},
		ServerIP:   [4]byte{192, 168, 2, 2},
		ServerPort: 69,
		BlockSize:  8192,
		TryCount:   5,
		Timeout:    5 * time.Second,
	}
}

// Console is the Simple-Text-Output protocol: UTF-16 output with CR+LF
// injection, used for interactive diagnostics.
type Console interface {
	OutputString(s string) error
}

// Serial is the out-of-band log surface: bytes written verbatim.
type Serial interface {
	Write(p []byte) (int, error)
}
