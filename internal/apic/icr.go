package apic

// DeliveryMode is the ICR delivery-mode field (bits 10:8).
type DeliveryMode uint8

const (
	DeliveryFixed          DeliveryMode = 0
	DeliveryLowestPriority DeliveryMode = 1
	DeliverySMI            DeliveryMode = 2
	DeliveryNMI            DeliveryMode = 4
	DeliveryINIT           DeliveryMode = 5
	DeliveryStartUp        DeliveryMode = 6
)

// DestinationMode is the ICR destination-mode bit (bit 11).
type DestinationMode uint8

const (
	DestPhysical DestinationMode = 0
	DestLogical  DestinationMode = 1
)

// Level is the ICR level bit (bit 14): Assert issues the IPI, Deassert is
// used only for the legacy INIT-level-deassert sequence.
type Level uint8

const (
	LevelDeassert Level = 0
	LevelAssert   Level = 1
)

// TriggerMode is the ICR trigger-mode bit (bit 15).
type TriggerMode uint8

const (
	TriggerEdge  TriggerMode = 0
	TriggerLevel TriggerMode = 1
)

// DestinationShorthand is the ICR destination-shorthand field (bits 19:18).
type DestinationShorthand uint8

const (
	ShorthandNone             DestinationShorthand = 0
	ShorthandSelf             DestinationShorthand = 1
	ShorthandAllIncludingSelf DestinationShorthand = 2
	ShorthandAllExcludingSelf DestinationShorthand = 3
)

// InterruptCommand is the logical record encoded into a 64-bit ICR value.
type InterruptCommand struct {
	DeliveryMode  DeliveryMode
	DestMode      DestinationMode
	Level         Level
	TriggerMode   TriggerMode
	Shorthand     DestinationShorthand
	Vector        *uint8
	TargetID      *uint32
}

// raw encodes ic into the 64-bit ICR value for the given mode, validating
// the encode-time invariants: a vector is required unless delivery is NMI
// or INIT; a target id must be absent when the shorthand already selects
// every CPU, and present otherwise.
func (ic InterruptCommand) raw(mode Mode) (uint64, error) {
	switch ic.Shorthand {
	case ShorthandAllIncludingSelf, ShorthandAllExcludingSelf:
		if ic.TargetID != nil {
			return 0, ErrApicIDSetWithShorthand
		}
	default:
		if ic.TargetID == nil {
			return 0, ErrIPIWithoutApicID
		}
	}

	if ic.DeliveryMode != DeliveryNMI && ic.DeliveryMode != DeliveryINIT && ic.Vector == nil {
		return 0, ErrUnsetVector
	}

	var vector uint8
	if ic.Vector != nil {
		vector = *ic.Vector
	}

	low := uint64(vector) |
		uint64(ic.DeliveryMode)<<8 |
		uint64(ic.DestMode)<<11 |
		uint64(ic.Level)<<14 |
		uint64(ic.TriggerMode)<<15 |
		uint64(ic.Shorthand)<<18

	var high uint64
	if ic.TargetID != nil {
		if mode == ModeXAPIC {
			high = uint64(*ic.TargetID) << 24
		} else {
			high = uint64(*ic.TargetID)
		}
	}

	return low | (high << 32), nil
}

// writeCommandRegister serialises ic to hardware. In xAPIC mode the high
// word (target id) is written before the low word: the IPI fires on the
// low-word write, so the target must already be in place. In x2APIC mode
// a single 64-bit WRMSR delivers the whole command atomically.
func (a *Apic) writeCommandRegister(ic InterruptCommand) error {
	raw, err := ic.raw(a.mode)
	if err != nil {
		return err
	}

	if a.mode == ModeXAPIC {
		a.write(RegICRHigh, uint32(raw>>32))
		a.write(RegICRLow, uint32(raw))
		return nil
	}

	a.ops.WriteMSR(msrX2APICICR, raw)
	return nil
}

func u8p(v uint8) *uint8   { return &v }
func u32p(v uint32) *uint32 { return &v }

// InitSipiSipi runs the canonical INIT-SIPI-SIPI sequence to wake the AP
// identified by apicID at entryPoint. entryPoint's low 20 bits must encode
// a valid SIPI vector: only bits 19:12 may be set (entryPoint & 0xFFF00FFF
// == 0); the SIPI vector is those bits shifted down to a byte.
func (a *Apic) InitSipiSipi(apicID uint32, entryPoint uint32) error {
	if entryPoint&0xFFF00FFF != 0 {
		return ErrUnalignedStartupVector
	}
	vector := uint8((entryPoint >> 12) & 0xFF)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writeCommandRegister(InterruptCommand{
		DeliveryMode: DeliveryINIT,
		DestMode:     DestPhysical,
		Level:        LevelAssert,
		TriggerMode:  TriggerLevel,
		Shorthand:    ShorthandNone,
		TargetID:     u32p(apicID),
	}); err != nil {
		return err
	}

	for i := 0; i < 2; i++ {
		if err := a.writeCommandRegister(InterruptCommand{
			DeliveryMode: DeliveryStartUp,
			DestMode:     DestPhysical,
			Level:        LevelAssert,
			TriggerMode:  TriggerEdge,
			Shorthand:    ShorthandNone,
			Vector:       u8p(vector),
			TargetID:     u32p(apicID),
		}); err != nil {
			return err
		}
	}

	return nil
}
