package pagetable

import "github.com/tinyrange/paintbrush/internal/addr"

// Entry is a raw 64-bit page-table entry word. Bit layout, from the
// original page_table crate: present(0), writable(1), user(2),
// write-through(3), cache-disable(4), accessed(5), dirty(6), page-size(7),
// global(8), three software bits(9-11), physical address(12..51),
// protection-key(59-62), execute-disable(63).
type Entry uint64

const (
	bitPresent      = 1 << 0
	bitWritable     = 1 << 1
	bitUser         = 1 << 2
	bitWriteThrough = 1 << 3
	bitCacheDisable = 1 << 4
	bitAccessed     = 1 << 5
	bitDirty        = 1 << 6
	bitPageSize     = 1 << 7
	bitGlobal       = 1 << 8
	bitExecDisable  = 1 << 63

	addrMask    = 0x000F_FFFF_FFFF_F000
	protKeyMask = 0xF
	protKeyShift = 59
)

func (e Entry) Present() bool        { return e&bitPresent != 0 }
func (e Entry) Writable() bool       { return e&bitWritable != 0 }
func (e Entry) User() bool           { return e&bitUser != 0 }
func (e Entry) WriteThrough() bool   { return e&bitWriteThrough != 0 }
func (e Entry) CacheDisable() bool   { return e&bitCacheDisable != 0 }
func (e Entry) Accessed() bool       { return e&bitAccessed != 0 }
func (e Entry) Dirty() bool          { return e&bitDirty != 0 }
func (e Entry) PageSizeBit() bool    { return e&bitPageSize != 0 }
func (e Entry) Global() bool         { return e&bitGlobal != 0 }
func (e Entry) ExecuteDisable() bool { return e&bitExecDisable != 0 }

// Address returns the 4 KiB-aligned physical address encoded in bits 12-51.
func (e Entry) Address() addr.Phys { return addr.Phys(uint64(e) & addrMask) }

// ProtectionKey returns the 4-bit protection key in bits 59-62.
func (e Entry) ProtectionKey() uint8 { return uint8((uint64(e) >> protKeyShift) & protKeyMask) }

func (e Entry) withBit(bit uint64, set bool) Entry {
	if set {
		return Entry(uint64(e) | bit)
	}
	return Entry(uint64(e) &^ bit)
}

// WithWritable returns e with the writable bit set or cleared.
func (e Entry) WithWritable(v bool) Entry { return e.withBit(bitWritable, v) }

// WithExecuteDisable returns e with the execute-disable bit set or cleared.
func (e Entry) WithExecuteDisable(v bool) Entry { return e.withBit(bitExecDisable, v) }

// PageSize identifies the size of a terminal mapping.
type PageSize int

const (
	Size4K PageSize = iota
	Size2M
	Size512G
)

// Bytes returns the number of bytes covered by a single page of this size.
func (s PageSize) Bytes() uint64 {
	switch s {
	case Size4K:
		return 1 << 12
	case Size2M:
		return 1 << 21
	case Size512G:
		return 1 << 39
	default:
		return 0
	}
}

// Levels returns the number of page-table levels walked to reach a terminal
// entry of this size: 4 for 4K, 3 for 2M, 2 for 512G.
func (s PageSize) Levels() int {
	switch s {
	case Size4K:
		return 4
	case Size2M:
		return 3
	case Size512G:
		return 2
	default:
		return 0
	}
}

// pageSizeBit returns the encoded page-size bit for a leaf of this size: 0
// for 4 KiB (terminal at depth 3, not a "large page" bit), 1 for 2M/512G.
func (s PageSize) pageSizeBit() bool {
	return s != Size4K
}

// Permissions is the {readable, writable, executable} triple the caller
// requests or observes. Readable is implicit in presence and is not stored
// here as a settable flag by EntryBuilder, matching the original's
// all-false Default.
type Permissions struct {
	Readable   bool
	Writable   bool
	Executable bool
}

// EntryBuilder fluently constructs a leaf Entry; all flags default false.
// Finish requires a page size to have been set and asserts the physical
// address is 4 KiB aligned.
type EntryBuilder struct {
	address       addr.Phys
	size          PageSize
	sizeSet       bool
	present       bool
	writable      bool
	user          bool
	writeThrough  bool
	cacheDisable  bool
	global        bool
	executeDisable bool
}

// NewEntryBuilder returns an EntryBuilder with all flags false.
func NewEntryBuilder() *EntryBuilder { return &EntryBuilder{} }

func (b *EntryBuilder) Address(a addr.Phys) *EntryBuilder   { b.address = a; return b }
func (b *EntryBuilder) PageSize(s PageSize) *EntryBuilder    { b.size = s; b.sizeSet = true; return b }
func (b *EntryBuilder) Present(v bool) *EntryBuilder         { b.present = v; return b }
func (b *EntryBuilder) Writable(v bool) *EntryBuilder        { b.writable = v; return b }
func (b *EntryBuilder) UserPermitted(v bool) *EntryBuilder   { b.user = v; return b }
func (b *EntryBuilder) WriteThrough(v bool) *EntryBuilder    { b.writeThrough = v; return b }
func (b *EntryBuilder) CacheDisable(v bool) *EntryBuilder    { b.cacheDisable = v; return b }
func (b *EntryBuilder) Global(v bool) *EntryBuilder          { b.global = v; return b }
func (b *EntryBuilder) ExecuteDisable(v bool) *EntryBuilder  { b.executeDisable = v; return b }

// Finish validates and encodes the built Entry.
func (b *EntryBuilder) Finish() (Entry, error) {
	if !b.sizeSet {
		return 0, ErrPageSizeNotSet
	}
	if !addr.IsAligned4K(uint64(b.address)) {
		return 0, ErrCannotMapNonPageAligned
	}

	var e Entry
	e = e.withBit(bitPresent, b.present)
	e = e.withBit(bitWritable, b.writable)
	e = e.withBit(bitUser, b.user)
	e = e.withBit(bitWriteThrough, b.writeThrough)
	e = e.withBit(bitCacheDisable, b.cacheDisable)
	e = e.withBit(bitGlobal, b.global)
	e = e.withBit(bitPageSize, b.size.pageSizeBit())
	e = e.withBit(bitExecDisable, b.executeDisable)
	e = Entry(uint64(e) | (uint64(b.address) & addrMask))

	return e, nil
}

// newIntermediateEntry builds a present, writable, user-accessible,
// executable, non-terminal entry pointing at a freshly zeroed page-table
// frame — the fixed shape the mapper uses for every table it has to create
// on demand.
func newIntermediateEntry(page addr.Phys) Entry {
	e, _ := NewEntryBuilder().
		Address(page).
		PageSize(Size4K).
		Present(true).
		Writable(true).
		UserPermitted(true).
		ExecuteDisable(false).
		Finish()
	return e
}
