// Package hostmem provides an mmap-backed byte arena standing in for real
// physical memory during simulation: a rangeset.RangeSet attached to the
// arena via AttachArena lets every other package (pagetable, corearg,
// bootctl) exercise its PhysMem contract without a real UEFI environment.
package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/paintbrush/internal/addr"
)

// Arena is an anonymous mmap region simulating a contiguous physical
// memory range starting at Base.
type Arena struct {
	Base addr.Phys
	mem  []byte
}

// New mmaps size bytes anonymously and reports them as simulated physical
// memory starting at base. size is rounded up to the host page size, the
// same rounding the teacher's JIT arena allocator applies before mmap.
func New(base addr.Phys, size int) (*Arena, error) {
	pageSize := unix.Getpagesize()
	allocSize := ((size + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, allocSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("hostmem: mmap %d bytes: %w", allocSize, err)
	}

	return &Arena{Base: base, mem: mem}, nil
}

// Bytes returns the backing slice, for handing to rangeset.AttachArena.
func (a *Arena) Bytes() []byte { return a.mem }

// Len reports the arena's size in bytes.
func (a *Arena) Len() int { return len(a.mem) }

// Close unmaps the arena. After Close, any RangeSet still attached to it
// must not be used.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}
