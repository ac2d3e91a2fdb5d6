package sim

import (
	"context"
	"testing"
	"time"

	"github.com/tinyrange/paintbrush/internal/firmware"
)

func TestMemoryMapReturnsCopy(t *testing.T) {
	m := &MemoryMap{Regions: []firmware.MemoryRegion{{PhysicalStart: 0x1000, NumberOfPages: 1, Type: firmware.MemoryTypeConventional}}}
	got, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got[0].PhysicalStart = 0xDEAD
	if m.Regions[0].PhysicalStart != 0x1000 {
		t.Fatalf("Get must return a copy, original mutated")
	}
}

func TestWatchdogDisable(t *testing.T) {
	w := &Watchdog{}
	if err := w.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if !w.Disabled {
		t.Fatalf("expected Disabled=true")
	}
}

func TestStallRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if err := (Stall{}).Stall(ctx, time.Second); err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestMPServicesStartupIsNonBlocking(t *testing.T) {
	m := NewMPServices(4)
	n, err := m.NumberOfProcessors()
	if err != nil || n != 4 {
		t.Fatalf("NumberOfProcessors = %d, %v", n, err)
	}

	done := make(chan struct{})
	m.Launch = func(procNum int, entryFn firmware.APEntryFunc, argPtr uintptr) {
		close(done)
	}

	if err := m.StartupThisAP(1, 0x1000, 0x2000); err != nil {
		t.Fatalf("StartupThisAP: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("launch callback never ran")
	}

	started := m.Started()
	if len(started) != 1 || started[0].ProcNum != 1 {
		t.Fatalf("unexpected started record: %+v", started)
	}
}

func TestTFTPReadFileCopiesConfiguredFile(t *testing.T) {
	tf := &TFTP{File: []byte("kernel bytes")}
	if err := tf.Configure(firmware.DefaultTFTPConfig()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	dst := make([]byte, 64)
	n, err := tf.ReadFile("paintbrush_x86.kernel", dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(dst[:n]) != "kernel bytes" {
		t.Fatalf("unexpected file contents: %q", dst[:n])
	}
}

func TestConsoleInjectsCRLF(t *testing.T) {
	c := &Console{}
	c.OutputString("line one\nline two")
	if c.String() != "line one\r\nline two" {
		t.Fatalf("unexpected console output: %q", c.String())
	}
}

func TestSerialWritesVerbatim(t *testing.T) {
	s := &Serial{}
	s.Write([]byte{0x01, 0x02, 0x03})
	if got := s.Bytes(); string(got) != "\x01\x02\x03" {
		t.Fatalf("unexpected serial bytes: %v", got)
	}
}
