// Package sim is an in-memory stand-in for the firmware interfaces in
// internal/firmware, used by tests and the CLI harness. It never backs a
// real boot — no core package imports it.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/tinyrange/paintbrush/internal/firmware"
)

// MemoryMap returns a fixed region list supplied at construction.
type MemoryMap struct {
	Regions []firmware.MemoryRegion
}

func (m *MemoryMap) Get() ([]firmware.MemoryRegion, error) {
	out := make([]firmware.MemoryRegion, len(m.Regions))
	copy(out, m.Regions)
	return out, nil
}

// Watchdog records whether Disable was called.
type Watchdog struct {
	Disabled bool
}

func (w *Watchdog) Disable() error {
	w.Disabled = true
	return nil
}

// Stall sleeps for real, bounded by ctx, matching the Stall(µs) contract.
type Stall struct{}

func (Stall) Stall(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartedAP records one StartupThisAP invocation.
type StartedAP struct {
	ProcNum int
	EntryFn firmware.APEntryFunc
	ArgPtr  uintptr
}

// MPServices simulates AP launch by running the Launch callback, if set, on
// its own goroutine, matching the contract's non-blocking semantics:
// StartupThisAP returns immediately and the "AP" makes progress concurrently.
// entryFn itself is only recorded, never called.
type MPServices struct {
	mu      sync.Mutex
	cpus    int
	started []StartedAP
	Launch  func(procNum int, entryFn firmware.APEntryFunc, argPtr uintptr)
}

// NewMPServices returns a simulator reporting cpus logical processors.
func NewMPServices(cpus int) *MPServices {
	return &MPServices{cpus: cpus}
}

func (m *MPServices) NumberOfProcessors() (int, error) {
	return m.cpus, nil
}

func (m *MPServices) StartupThisAP(procNum int, entryFn firmware.APEntryFunc, argPtr uintptr) error {
	m.mu.Lock()
	m.started = append(m.started, StartedAP{procNum, entryFn, argPtr})
	launch := m.Launch
	m.mu.Unlock()

	if launch != nil {
		go launch(procNum, entryFn, argPtr)
	}
	return nil
}

// Started returns a copy of every AP launch recorded so far.
func (m *MPServices) Started() []StartedAP {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StartedAP, len(m.started))
	copy(out, m.started)
	return out
}

// TFTP serves File's contents regardless of the requested filename, after
// recording the configuration it was given.
type TFTP struct {
	Configured firmware.TFTPConfig
	File       []byte
}

func (t *TFTP) Configure(cfg firmware.TFTPConfig) error {
	t.Configured = cfg
	return nil
}

func (t *TFTP) ReadFile(filename string, dst []byte) (int, error) {
	n := copy(dst, t.File)
	return n, nil
}

// Console accumulates every OutputString call, with CR+LF injection
// applied the way the real Simple-Text-Output protocol does.
type Console struct {
	mu  sync.Mutex
	buf []byte
}

func (c *Console) OutputString(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range s {
		if r == '\n' {
			c.buf = append(c.buf, '\r', '\n')
			continue
		}
		c.buf = append(c.buf, []byte(string(r))...)
	}
	return nil
}

func (c *Console) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

// Serial accumulates every Write verbatim.
type Serial struct {
	mu  sync.Mutex
	buf []byte
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *Serial) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out
}
