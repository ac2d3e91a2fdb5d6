// Package bootctl implements the boot orchestrator: the sequence that
// takes firmware from its UEFI handoff state through downloading and
// mapping the kernel image, to launching every application processor and
// monitoring their progress. Ported from bootloader/src/main.rs's
// try_main, generalized to the firmware.* interfaces so it runs against
// either real firmware adapters or the in-memory sim package.
package bootctl

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"
	"unsafe"

	"github.com/tinyrange/paintbrush/internal/addr"
	"github.com/tinyrange/paintbrush/internal/corearg"
	"github.com/tinyrange/paintbrush/internal/debug"
	"github.com/tinyrange/paintbrush/internal/errchain"
	"github.com/tinyrange/paintbrush/internal/firmware"
	"github.com/tinyrange/paintbrush/internal/netcfg"
	"github.com/tinyrange/paintbrush/internal/pagetable"
	"github.com/tinyrange/paintbrush/internal/pe"
	"github.com/tinyrange/paintbrush/internal/rangeset"
)

var debugLog = debug.WithSource("bootctl")

// errLoc reports the file and line of its caller, so each errchain frame
// stamps the real call site instead of a hardcoded placeholder.
func errLoc() (string, int) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return "bootctl.go", 0
	}
	return filepath.Base(file), line
}

// Config is the orchestrator's compile-time-equivalent tuning, read from
// the CLI's boot profile.
type Config struct {
	// NumCPUs is the compile-time logical-CPU cap (36 in the original build).
	NumCPUs int
	// KernelBufferSize is the scratch allocation for the downloaded kernel
	// image (2 MiB in the original).
	KernelBufferSize uint64
	// PerCoreMemorySize is the arena size handed to each AP (1 GiB in the
	// original).
	PerCoreMemorySize uint64
	// KernelFilename is the well-known TFTP filename to fetch.
	KernelFilename string
	// TFTP is the fixed network configuration used to reach the server.
	TFTP firmware.TFTPConfig
	// MonitorPollInterval paces the monitor loop's firmware Stall calls.
	MonitorPollInterval time.Duration
}

// DefaultConfig matches the original build's fixed constants.
func DefaultConfig() Config {
	return Config{
		NumCPUs:             36,
		KernelBufferSize:    2 * 1024 * 1024,
		PerCoreMemorySize:   1024 * 1024 * 1024,
		KernelFilename:      netcfg.KernelFilename,
		TFTP:                firmware.DefaultTFTPConfig(),
		MonitorPollInterval: 500 * time.Millisecond,
	}
}

// HostPaging gives the orchestrator access to the page table active at
// handoff (cr3), the equivalent of the original's unsafe page_table::current().
type HostPaging interface {
	CurrentRoot() addr.Phys
}

// Firmware bundles every UEFI service contract the orchestrator consumes.
type Firmware struct {
	MemoryMap firmware.MemoryMap
	Watchdog  firmware.Watchdog
	Stall     firmware.Stall
	MP        firmware.MPServices
	TFTP      firmware.TFTP
	Console   firmware.Console
	Serial    firmware.Serial
}

// Orchestrator runs the boot sequence described in the teacher's own
// bootloader/src/main.rs, against a Firmware bundle and a HostPaging
// source for the active page table.
type Orchestrator struct {
	cfg      Config
	fw       Firmware
	paging   HostPaging
	memory   *rangeset.RangeSet
	coreArgs []*corearg.CoreArg
	alive    []*corearg.AliveFlag

	// Progress, if set, is called once per monitor-loop tick with the
	// current count of alive APs and the total launched. It stands in for
	// the terminal progress bar a CLI driving this orchestrator may want,
	// the same optional-callback role c.progressCallback plays for image
	// pulls: nil means "no one is watching, just log".
	Progress func(alive, total int)
}

// New constructs an Orchestrator. memory must already be attached to a
// simulated or real physical arena via rangeset.RangeSet.AttachArena.
func New(cfg Config, fw Firmware, paging HostPaging, memory *rangeset.RangeSet) *Orchestrator {
	return &Orchestrator{cfg: cfg, fw: fw, paging: paging, memory: memory}
}

func (o *Orchestrator) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...) + "\n"
	debugLog.Write(line)
	if o.fw.Console != nil {
		_ = o.fw.Console.OutputString(line)
	}
	if o.fw.Serial != nil {
		_ = o.fw.Serial.Write([]byte(line))
	}
}

// Boot runs the full sequence: disable the watchdog, build the memory map,
// download and parse the kernel, map its sections into both page tables,
// launch every AP, then block in the monitor loop until every AP reports
// dead. ctx governs the monitor loop's Stall calls only; every earlier step
// is expected to complete promptly.
func (o *Orchestrator) Boot(ctx context.Context) error {
	if err := o.fw.Watchdog.Disable(); err != nil {
		file, line := errLoc()
		return errchain.New(file, line, err).Context(file, line, "disable watchdog")
	}

	if err := o.buildMemoryMap(); err != nil {
		return err
	}

	if err := o.checkCPUCount(); err != nil {
		return err
	}

	kernelBufferAddr, kernelBuffer, err := o.downloadKernel()
	if err != nil {
		return err
	}

	parsed, err := pe.Parse(kernelBuffer)
	if err != nil {
		file, line := errLoc()
		return errchain.New(file, line, err).Context(file, line, "parse kernel PE image")
	}

	newRoot, err := o.memory.AllocPageZeroed()
	if err != nil {
		file, line := errLoc()
		return errchain.New(file, line, err).Context(file, line, "allocate new page table root")
	}
	newPageTable := pagetable.FromPhysAddr(newRoot)
	currentPageTable := pagetable.FromPhysAddr(o.paging.CurrentRoot())

	if err := o.mapKernelSections(newPageTable, currentPageTable, parsed, kernelBufferAddr); err != nil {
		return err
	}

	if err := o.launchAPs(currentPageTable, parsed); err != nil {
		return err
	}

	return o.monitor(ctx)
}

func (o *Orchestrator) buildMemoryMap() error {
	o.memory.Clear()

	regions, err := o.fw.MemoryMap.Get()
	if err != nil {
		file, line := errLoc()
		return errchain.New(file, line, err).Context(file, line, "fetch firmware memory map")
	}

	for _, r := range regions {
		if r.Type != firmware.MemoryTypeConventional && r.Type != firmware.MemoryTypePersistent {
			continue
		}
		start := r.PhysicalStart
		size := r.NumberOfPages * addr.PageSize4K
		if size == 0 {
			continue
		}
		rng := rangeset.InclusiveRange{Start: start, End: start + size - 1}
		if err := o.memory.Insert(rng); err != nil {
			file, line := errLoc()
			return errchain.New(file, line, err).Context(file, line, "insert memory map region")
		}
	}
	return nil
}

func (o *Orchestrator) checkCPUCount() error {
	n, err := o.fw.MP.NumberOfProcessors()
	if err != nil {
		file, line := errLoc()
		return errchain.New(file, line, err).Context(file, line, "get logical CPU count")
	}
	if n > o.cfg.NumCPUs {
		file, line := errLoc()
		return errchain.Newf(file, line, "too few CPUs allocated: platform reports %d, cap is %d", n, o.cfg.NumCPUs)
	}
	return nil
}

func (o *Orchestrator) downloadKernel() (addr.Phys, []byte, error) {
	if err := netcfg.Validate(o.cfg.TFTP); err != nil {
		file, line := errLoc()
		return 0, nil, errchain.New(file, line, err).Context(file, line, "validate tftp network configuration")
	}
	o.logf("Downloading kernel: %s", netcfg.Describe(o.cfg.TFTP))

	kernelAddr, err := o.memory.AllocPhys(o.cfg.KernelBufferSize, addr.PageSize4K)
	if err != nil {
		file, line := errLoc()
		return 0, nil, errchain.New(file, line, err).Context(file, line, "allocate kernel scratch buffer")
	}

	buf, err := o.memory.GetMutSlice(kernelAddr, int(o.cfg.KernelBufferSize))
	if err != nil {
		file, line := errLoc()
		return 0, nil, errchain.New(file, line, err).Context(file, line, "map kernel scratch buffer")
	}

	if err := o.fw.TFTP.Configure(o.cfg.TFTP); err != nil {
		file, line := errLoc()
		return 0, nil, errchain.New(file, line, err).Context(file, line, "configure tftp")
	}
	n, err := o.fw.TFTP.ReadFile(o.cfg.KernelFilename, buf)
	if err != nil {
		file, line := errLoc()
		return 0, nil, errchain.New(file, line, err).Context(file, line, "tftp read kernel file")
	}

	o.logf("Kernel buffer: %#x (%d bytes)", kernelAddr, n)
	return kernelAddr, buf, nil
}

// mapKernelSections maps every PE section (not only R|X&!W, correcting the
// documented mapping gap) into both page tables: writable sections have
// their in-memory tail beyond the raw file data zeroed before mapping
// (the BSS case), matching the spec's stated intended behaviour.
func (o *Orchestrator) mapKernelSections(newPT, currPT *pagetable.PageTable, parsed *pe.Parsed, kernelBufferAddr addr.Phys) error {
	for _, section := range parsed.Sections {
		if section == nil {
			continue
		}

		o.logf("..Data: %#x Addr: %#x Perms: %+v", len(section.Data), section.VirtAddr, section.Permissions)

		pageCount := (uint64(section.VirtSize) + addr.PageSize4K - 1) / addr.PageSize4K
		if pageCount == 0 {
			continue
		}

		sectionPhys := addr.Phys(uint64(kernelBufferAddr) + uint64(section.VirtAddr))
		if section.Permissions.Writable {
			if err := zeroSectionTail(o.memory, sectionPhys, section); err != nil {
				file, line := errLoc()
				return errchain.New(file, line, err).Context(file, line, "zero writable section tail")
			}
		}

		virtBase := addr.Virt(parsed.ImageBase + uint64(section.VirtAddr))

		for p := uint64(0); p < pageCount; p++ {
			pagePhys := addr.Phys(uint64(sectionPhys) + p*addr.PageSize4K)
			pageVirt := addr.Virt(uint64(virtBase) + p*addr.PageSize4K)

			entry, err := pagetable.NewEntryBuilder().
				Address(pagePhys).
				PageSize(pagetable.Size4K).
				Present(true).
				UserPermitted(true).
				Writable(true).
				ExecuteDisable(false).
				Finish()
			if err != nil {
				file, line := errLoc()
				return errchain.New(file, line, err).Context(file, line, "build section page-table entry")
			}

			if err := newPT.Map(entry, pageVirt, pagetable.Size4K, o.memory); err != nil {
				file, line := errLoc()
				return errchain.New(file, line, err).Context(file, line, "map section into new page table")
			}
			if err := currPT.Map(entry, pageVirt, pagetable.Size4K, o.memory); err != nil {
				file, line := errLoc()
				return errchain.New(file, line, err).Context(file, line, "map section into active page table")
			}
		}
	}
	return nil
}

func zeroSectionTail(phys pagetable.PhysMem, sectionPhys addr.Phys, section *pe.Section) error {
	if uint64(section.VirtSize) <= uint64(len(section.Data)) {
		return nil
	}
	tailStart := uint64(sectionPhys) + uint64(len(section.Data))
	tailLen := int(uint64(section.VirtSize) - uint64(len(section.Data)))
	slice, err := phys.GetMutSlice(addr.Phys(tailStart), tailLen)
	if err != nil {
		return err
	}
	for i := range slice {
		slice[i] = 0
	}
	return nil
}

// launchAPs allocates and populates a CoreArg plus alive flag for every AP
// index 1..NumCPUs-1, then calls firmware MP-services to start it.
func (o *Orchestrator) launchAPs(currPT *pagetable.PageTable, parsed *pe.Parsed) error {
	o.coreArgs = make([]*corearg.CoreArg, o.cfg.NumCPUs)
	o.alive = make([]*corearg.AliveFlag, o.cfg.NumCPUs)

	entryTranslated, err := currPT.Translate(addr.Virt(parsed.EntryPoint), o.memory)
	if err != nil {
		file, line := errLoc()
		return errchain.New(file, line, err).Context(file, line, "translate kernel entry point")
	}
	if entryTranslated.Phys == nil {
		file, line := errLoc()
		return errchain.Newf(file, line, "kernel entry point %#x is unmapped", parsed.EntryPoint)
	}
	entryPhys := *entryTranslated.Phys

	for coreID := 1; coreID < o.cfg.NumCPUs; coreID++ {
		arg := corearg.New()
		arg.SetCore(coreID)

		flag := &corearg.AliveFlag{}
		arg.SetAliveAddress(flag)

		memStart, err := o.memory.AllocPhys(o.cfg.PerCoreMemorySize, addr.PageSize4K)
		if err != nil {
			file, line := errLoc()
			return errchain.New(file, line, err).Context(file, line, "allocate per-core arena")
		}
		if err := arg.InsertMemory(uint64(memStart), o.cfg.PerCoreMemorySize); err != nil {
			file, line := errLoc()
			return errchain.New(file, line, err).Context(file, line, "insert per-core arena")
		}

		o.coreArgs[coreID] = arg
		o.alive[coreID] = flag

		// argPtr is the physical address the AP dereferences on entry; real
		// firmware reads it back through identity-mapped physical memory,
		// so the Go pointer value doubles for that address here.
		argPtr := uintptr(unsafe.Pointer(arg))
		if err := o.fw.MP.StartupThisAP(coreID, firmware.APEntryFunc(entryPhys), argPtr); err != nil {
			file, line := errLoc()
			return errchain.New(file, line, err).Context(file, line, "startup AP")
		}
	}
	return nil
}

// monitor polls every alive flag until none remain set, printing progress
// between polls, matching the original's cores-alive/stats print loop.
func (o *Orchestrator) monitor(ctx context.Context) error {
	total := len(o.alive) - 1
	if total < 0 {
		total = 0
	}

	for {
		anyAlive := false
		aliveCount := 0
		o.logf("Cores alive:")
		for coreID, flag := range o.alive {
			if flag != nil && flag.Get() {
				anyAlive = true
				aliveCount++
				o.logf(" %d", coreID)
			}
		}

		if o.Progress != nil {
			o.Progress(aliveCount, total)
		}

		if !anyAlive {
			return nil
		}

		for coreID, arg := range o.coreArgs {
			if arg == nil {
				continue
			}
			o.logf("[%d]: %x", coreID, arg.Stats.StartTime)
		}

		if err := o.fw.Stall.Stall(ctx, o.cfg.MonitorPollInterval); err != nil {
			file, line := errLoc()
			return errchain.New(file, line, err).Context(file, line, "monitor loop stall")
		}
	}
}
