// Package acpimadt implements a read-only walker over a Multiple APIC
// Description Table (MADT), enumerating enabled Local APIC IDs into a
// stackvec.StackVec. It is off the critical boot path: the orchestrator
// does not call it, matching the original's acpi.rs being compiled out of
// bootloader/src/main.rs. It exists so a caller that does have ACPI tables
// available (rather than firmware's MP-services CPU count) has a way to
// discover the same information.
package acpimadt

import (
	"encoding/binary"
	"errors"

	"github.com/tinyrange/paintbrush/internal/stackvec"
)

// MaxCPUs bounds the StackVec capacity Parse enumerates into.
const MaxCPUs = 48

var (
	// ErrTruncated is returned when an entry header or body runs past the
	// table's declared payload length.
	ErrTruncated = errors.New("acpimadt: truncated entry")
)

const (
	entryTypeLocalAPIC = 0
	entryTypeHeaderLen = 2

	localAPICEntryLen    = 8
	localAPICFlagEnabled = 1
)

// Parse walks payload — the MADT's variable-length interrupt-controller
// structure list, immediately following the fixed Madt header — and
// returns the enabled Local APIC IDs it finds, in table order.
//
// Only type-0 (Processor Local APIC) entries are recognized, matching the
// sole structure the original parser consumed; unrecognized entry types
// are skipped using their declared length.
func Parse(payload []byte) (*stackvec.StackVec[uint32], error) {
	out := stackvec.New[uint32](MaxCPUs)

	for off := 0; off < len(payload); {
		if off+entryTypeHeaderLen > len(payload) {
			return nil, ErrTruncated
		}
		entryType := payload[off]
		entryLen := int(payload[off+1])
		if entryLen < entryTypeHeaderLen || off+entryLen > len(payload) {
			return nil, ErrTruncated
		}

		if entryType == entryTypeLocalAPIC && entryLen == localAPICEntryLen {
			apicID := payload[off+3]
			flags := binary.LittleEndian.Uint32(payload[off+4 : off+8])
			if flags&localAPICFlagEnabled != 0 {
				if err := out.Push(uint32(apicID)); err != nil {
					return nil, err
				}
			}
		}

		off += entryLen
	}

	return out, nil
}
