// Package corearg defines CoreArg, the page-aligned argument block the BSP
// hands to each AP through firmware's StartupThisAP, and Stats, the small
// per-core timing record the AP stamps on entry.
package corearg

import (
	"errors"
	"sync/atomic"

	"github.com/tinyrange/paintbrush/internal/addr"
	"github.com/tinyrange/paintbrush/internal/rangeset"
)

// ErrNoMemoryInserted is returned by InsertMemory when size is zero.
var ErrNoMemoryInserted = errors.New("corearg: zero-sized memory insert")

// Stats is the per-core timing record. StartTime is a monotonic counter
// value, stamped by the AP itself immediately on kernel entry — it is not
// set by the BSP.
type Stats struct {
	StartTime uint64
}

// AliveFlag is the flag the BSP polls to learn whether an AP is still
// running. Exactly one AP ever writes a given AliveFlag, and the BSP only
// ever reads it, so the flag's atomic store and load are the
// synchronization: the AP's Set is a release, the BSP's Get is the
// matching acquire. sync/atomic.Bool documents both sides of that contract
// instead of leaving it as an implicit property of a plain bool.
type AliveFlag struct {
	set atomic.Bool
}

// Set publishes that the owning AP is alive (release).
func (f *AliveFlag) Set() { f.set.Store(true) }

// Clear publishes that the owning AP has finished (release).
func (f *AliveFlag) Clear() { f.set.Store(false) }

// Get observes the flag (acquire). Called only by the BSP.
func (f *AliveFlag) Get() bool { return f.set.Load() }

// CoreArg is the block passed by pointer to one AP. New allocates it on the
// Go heap like any other struct: it is not 4 KiB-aligned, and nothing keeps
// it from straddling a page boundary.
type CoreArg struct {
	Core         *int
	Memory       *rangeset.RangeSet
	AliveAddress *AliveFlag
	PageTable    addr.Phys
	Stats        Stats
}

// New returns a zeroed CoreArg with its own empty RangeSet.
func New() *CoreArg {
	return &CoreArg{Memory: rangeset.New()}
}

// Reset clears the core id and empties the per-core RangeSet, leaving the
// alive-flag pointer and page table untouched.
func (c *CoreArg) Reset() {
	c.Core = nil
	c.Memory = rangeset.New()
}

// SetCore records which logical core this CoreArg belongs to.
func (c *CoreArg) SetCore(core int) {
	c.Core = &core
}

// SetAliveAddress installs the flag this core's AP must set on entry and
// clear on exit.
func (c *CoreArg) SetAliveAddress(f *AliveFlag) {
	c.AliveAddress = f
}

// InsertMemory inserts [start, start+size-1] into this core's RangeSet,
// using checked arithmetic so a zero size or an overflowing end is
// reported rather than silently ignored, and propagates whatever the
// underlying RangeSet insert reports instead of discarding it.
func (c *CoreArg) InsertMemory(start, size uint64) error {
	if size == 0 {
		return ErrNoMemoryInserted
	}
	end := start + (size - 1)
	if end < start {
		return rangeset.ErrSizeOverflow
	}
	return c.Memory.Insert(rangeset.InclusiveRange{Start: start, End: end})
}
