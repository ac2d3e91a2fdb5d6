// Package pagetable implements the 4-level x86-64 page-table walker,
// mapper, and permission updater, ported from the bootloader's
// page_table/x86 crate. It performs no allocation of its own: every
// intermediate frame comes from the caller-supplied PhysMem.
package pagetable

import (
	"errors"

	"github.com/tinyrange/paintbrush/internal/addr"
)

var (
	// ErrCannotMapNonPageAligned is returned when a leaf's physical address
	// is not 4 KiB aligned.
	ErrCannotMapNonPageAligned = errors.New("pagetable: physical address is not 4 KiB aligned")
	// ErrVirtAddrAlreadyMapped is returned by Map when the target virtual
	// address already translates to a physical address.
	ErrVirtAddrAlreadyMapped = errors.New("pagetable: virtual address is already mapped")
	// ErrPageSizeNotSet is returned by EntryBuilder.Finish without a page size.
	ErrPageSizeNotSet = errors.New("pagetable: entry builder has no page size set")
)

// shiftOf returns the bit shift used to extract the index at depth d: 39,
// 30, 21, 12 for depths 0..3.
func shiftOf(depth int) uint {
	return uint(39 - depth*9)
}

func indexAt(v addr.Virt, depth int) uint64 {
	return (uint64(v) >> shiftOf(depth)) & 0x1FF
}

// PhysMem is the allocator capability the mapper consumes, satisfied by
// *rangeset.RangeSet.
type PhysMem interface {
	AllocPage() (addr.Phys, error)
	AllocPageZeroed() (addr.Phys, error)
	AllocPhys(size, align uint64) (addr.Phys, error)
	GetMutSlice(phys addr.Phys, size int) ([]byte, error)
}

// PageTable is 512 contiguous entries at a 4 KiB-aligned physical frame,
// identified solely by that frame's address; the entries themselves always
// live in the PhysMem-backed arena, never in this struct.
type PageTable struct {
	root addr.Phys
}

// FromPhysAddr wraps an existing, already-allocated root frame.
func FromPhysAddr(root addr.Phys) *PageTable { return &PageTable{root: root} }

// Root returns the physical address of the table's root frame.
func (pt *PageTable) Root() addr.Phys { return pt.root }

func readEntry(phys PhysMem, at addr.Phys) (Entry, error) {
	slice, err := phys.GetMutSlice(at, 8)
	if err != nil {
		return 0, err
	}
	var word uint64
	for i := 0; i < 8; i++ {
		word |= uint64(slice[i]) << (8 * i)
	}
	return Entry(word), nil
}

func writeEntry(phys PhysMem, at addr.Phys, e Entry) error {
	slice, err := phys.GetMutSlice(at, 8)
	if err != nil {
		return err
	}
	word := uint64(e)
	for i := 0; i < 8; i++ {
		slice[i] = byte(word >> (8 * i))
	}
	return nil
}

// Translated is the result of walking a virtual address. Entries[d] holds
// the physical address of the slot read at depth d, recorded by value so
// the permission updater can revisit it without re-walking.
type Translated struct {
	Virt    addr.Virt
	Phys    *addr.Phys
	Size    *PageSize
	Entries [4]*addr.Phys
	Perms   Permissions
}

// Translate walks virt through pt, recording the slot address visited at
// every depth and accumulating permissions as the AND of writable bits and
// the AND of NOT-execute-disable bits across all visited levels (Intel
// semantics: a single restrictive level anywhere in the walk restricts the
// whole translation).
func (pt *PageTable) Translate(virt addr.Virt, phys PhysMem) (*Translated, error) {
	tr := &Translated{Virt: virt}
	writableAll := true
	executableAll := true

	tableAddr := pt.root
	for depth := 0; depth < 4; depth++ {
		idx := indexAt(virt, depth)
		slotAddr := addr.Phys(uint64(tableAddr) + idx*8)
		tr.Entries[depth] = &slotAddr

		entry, err := readEntry(phys, slotAddr)
		if err != nil {
			return nil, err
		}
		if !entry.Present() {
			tr.Perms = Permissions{Readable: false, Writable: false, Executable: false}
			return tr, nil
		}

		writableAll = writableAll && entry.Writable()
		executableAll = executableAll && !entry.ExecuteDisable()

		terminal := false
		var size PageSize
		var page addr.Phys
		switch {
		case depth == 1 && entry.PageSizeBit():
			terminal, size = true, Size512G
			page = addr.Phys(uint64(entry.Address()) | (uint64(virt) & (Size512G.Bytes() - 1)))
		case depth == 2 && entry.PageSizeBit():
			terminal, size = true, Size2M
			page = addr.Phys(uint64(entry.Address()) | (uint64(virt) & (Size2M.Bytes() - 1)))
		case depth == 3:
			terminal, size = true, Size4K
			page = addr.Phys(uint64(entry.Address()) | (uint64(virt) & (Size4K.Bytes() - 1)))
		}

		if terminal {
			tr.Phys = &page
			tr.Size = &size
			tr.Perms = Permissions{Readable: true, Writable: writableAll, Executable: executableAll}
			return tr, nil
		}

		tableAddr = entry.Address()
	}

	// Unreachable: depth 3 is always terminal.
	return tr, nil
}

// Map installs leaf at virt with the given pageSize, allocating and
// linking any missing intermediate tables via phys. leaf's physical
// address must be 4 KiB aligned; virt must not already translate to a
// physical address.
func (pt *PageTable) Map(leaf Entry, virt addr.Virt, pageSize PageSize, phys PhysMem) error {
	if !addr.IsAligned4K(uint64(leaf.Address())) {
		return ErrCannotMapNonPageAligned
	}

	tr, err := pt.Translate(virt, phys)
	if err != nil {
		return err
	}
	if tr.Phys != nil {
		return ErrVirtAddrAlreadyMapped
	}

	maxDepth := pageSize.Levels()
	entries := tr.Entries // entries[0] is always populated (root is known)

	for d := 1; d < maxDepth; d++ {
		if entries[d] != nil {
			continue
		}

		newPage, err := phys.AllocPageZeroed()
		if err != nil {
			return err
		}
		if err := writeEntry(phys, *entries[d-1], newIntermediateEntry(newPage)); err != nil {
			return err
		}

		slot := addr.Phys(uint64(newPage) + indexAt(virt, d)*8)
		entries[d] = &slot
	}

	return writeEntry(phys, *entries[maxDepth-1], leaf)
}

// UpdatePerms elevates permissions at virt: translates, then at every slot
// visited ORs in the writable bit if requested and clears execute-disable
// if executable is requested, writing each modified entry back. This never
// removes permissions and is a no-op on bits already satisfying the
// request.
func (pt *PageTable) UpdatePerms(virt addr.Virt, perms Permissions, phys PhysMem) error {
	tr, err := pt.Translate(virt, phys)
	if err != nil {
		return err
	}

	for _, slot := range tr.Entries {
		if slot == nil {
			continue
		}
		entry, err := readEntry(phys, *slot)
		if err != nil {
			return err
		}
		if !entry.Present() {
			continue
		}

		updated := entry
		if perms.Writable {
			updated = updated.WithWritable(true)
		}
		if perms.Executable {
			updated = updated.WithExecuteDisable(false)
		}
		if updated == entry {
			continue
		}
		if err := writeEntry(phys, *slot, updated); err != nil {
			return err
		}
	}
	return nil
}
