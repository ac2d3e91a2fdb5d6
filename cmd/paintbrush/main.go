// Command paintbrush drives the boot orchestrator against the in-memory
// firmware simulation: it stands in for the real UEFI handoff so the
// bootloader core can be exercised, timed, and watched from a terminal
// without real firmware.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"
	"unsafe"

	"github.com/charmbracelet/x/ansi"
	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/paintbrush/internal/addr"
	"github.com/tinyrange/paintbrush/internal/bootctl"
	"github.com/tinyrange/paintbrush/internal/bootprofile"
	"github.com/tinyrange/paintbrush/internal/corearg"
	"github.com/tinyrange/paintbrush/internal/debug"
	"github.com/tinyrange/paintbrush/internal/firmware"
	"github.com/tinyrange/paintbrush/internal/firmware/sim"
	"github.com/tinyrange/paintbrush/internal/hostmem"
	"github.com/tinyrange/paintbrush/internal/kernelentry"
	"github.com/tinyrange/paintbrush/internal/rangeset"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "paintbrush: %v\n", err)
		os.Exit(1)
	}
}

type fixCrlf struct {
	w io.Writer
}

func (f *fixCrlf) Write(p []byte) (n int, err error) {
	return f.w.Write(bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\r', '\n'}))
}

type intFlag struct {
	v   int
	set bool
}

func (f *intFlag) String() string { return strconv.Itoa(f.v) }

func (f *intFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	f.v = v
	f.set = true
	return nil
}

type simplePaging struct{ root addr.Phys }

func (p simplePaging) CurrentRoot() addr.Phys { return p.root }

// wallClock stands in for the kernel's _rdtsc() read: a monotonically
// increasing counter, derived from the runtime's monotonic clock reading.
type wallClock struct{}

// wallClockStart anchors wallClock readings; time.Since measures from its
// monotonic clock reading.
var wallClockStart = time.Now()

func (wallClock) Now() uint64 { return uint64(time.Since(wallClockStart)) }

func run() error {
	profilePath := flag.String("profile", "", "boot profile YAML file (default: built-in fixed configuration)")
	kernelPath := flag.String("kernel", "", "path to a PE kernel image to serve over the simulated TFTP link")
	memoryMB := flag.Int("memory-mb", 4096, "size of the simulated physical memory arena, in MiB")
	dbg := flag.Bool("debug", false, "enable debug-level logging")
	debugFile := flag.String("debug-file", "", "write the binary debug stream to this file")
	timeout := flag.Duration("timeout", 30*time.Second, "overall boot timeout")
	noProgress := flag.Bool("no-progress", false, "disable the terminal progress bar")

	var cpusFlag intFlag
	flag.Var(&cpusFlag, "cpus", "override the boot profile's logical CPU count")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -kernel <path> [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Boot a kernel image against the simulated firmware.\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debugFile != "" {
		if err := debug.OpenFile(*debugFile); err != nil {
			return fmt.Errorf("open debug file: %w", err)
		}
		defer debug.Close()
		debug.Writef("paintbrush startup", "debug-file=%s", *debugFile)
	}

	level := slog.LevelInfo
	if *dbg {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(&fixCrlf{w: os.Stderr}, &slog.HandlerOptions{Level: level})))

	if *kernelPath == "" {
		return fmt.Errorf("-kernel is required")
	}
	kernelImage, err := os.ReadFile(*kernelPath)
	if err != nil {
		return fmt.Errorf("read kernel image: %w", err)
	}

	var profile bootprofile.Profile
	if *profilePath != "" {
		profile, err = bootprofile.Load(*profilePath)
		if err != nil {
			return err
		}
	} else {
		profile = bootprofile.Default()
	}

	cfg, err := profile.ToConfig()
	if err != nil {
		return err
	}
	if cpusFlag.set {
		cfg.NumCPUs = cpusFlag.v
	}

	slog.Debug("loaded boot profile", "numCPUs", cfg.NumCPUs, "kernelFilename", cfg.KernelFilename)

	arenaSize := *memoryMB * 1024 * 1024
	arena, err := hostmem.New(addr.Phys(0x10_0000), arenaSize)
	if err != nil {
		return fmt.Errorf("create simulated physical memory: %w", err)
	}
	defer arena.Close()

	memory := rangeset.New()
	memory.AttachArena(uint64(arena.Base), arena.Bytes())
	if err := memory.Insert(rangeset.InclusiveRange{
		Start: uint64(arena.Base),
		End:   uint64(arena.Base) + uint64(arena.Len()) - 1,
	}); err != nil {
		return fmt.Errorf("seed simulated memory map: %w", err)
	}

	activeRoot, err := memory.AllocPageZeroed()
	if err != nil {
		return fmt.Errorf("allocate active page table root: %w", err)
	}

	mp := sim.NewMPServices(cfg.NumCPUs)
	mp.Launch = func(procNum int, _ firmware.APEntryFunc, argPtr uintptr) {
		arg := (*corearg.CoreArg)(unsafe.Pointer(argPtr))
		if _, err := kernelentry.Run(arg, wallClock{}); err != nil {
			slog.Error("ap workload failed", "core", procNum, "err", err)
		}
	}
	console := &sim.Console{}
	serial := &sim.Serial{}

	fw := bootctl.Firmware{
		MemoryMap: &sim.MemoryMap{Regions: []firmware.MemoryRegion{{
			PhysicalStart: uint64(arena.Base),
			NumberOfPages: uint64(arena.Len()) / addr.PageSize4K,
			Type:          firmware.MemoryTypeConventional,
		}}},
		Watchdog: &sim.Watchdog{},
		Stall:    sim.Stall{},
		MP:       mp,
		TFTP:     &sim.TFTP{File: kernelImage},
		Console:  console,
		Serial:   serial,
	}

	orch := bootctl.New(cfg, fw, simplePaging{root: activeRoot}, memory)

	var bar *progressbar.ProgressBar
	if !*noProgress {
		bar = progressbar.Default(int64(cfg.NumCPUs-1), "booting cores")
		orch.Progress = func(alive, total int) {
			_ = bar.Set(total - alive)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bootErr := orch.Boot(ctx)
	if bar != nil {
		bar.Close()
	}

	fmt.Fprintf(os.Stdout, "%s%s\n", ansi.EraseEntireLine, console.String())

	if bootErr != nil {
		return fmt.Errorf("boot: %w", bootErr)
	}

	slog.Info("boot complete", "cores", cfg.NumCPUs)
	return nil
}
