package apic

const maxEOIDrainIterations = 100

// eoiAllLocked enables interrupts, then repeatedly scans ISR/IRR and issues
// EOI while any of their 8 words are non-zero, restarting the scan after
// each EOI. It terminates when all words read zero, or gives up after
// maxEOIDrainIterations — a best-effort path, not a guarantee.
func (a *Apic) eoiAllLocked() (drained bool) {
	a.ops.EnableInterrupts()

	for iter := 0; iter < maxEOIDrainIterations; iter++ {
		pending := false
		for i := 0; i < 8; i++ {
			if a.read(Register(uint32(RegISR0)+uint32(i)*0x10)) != 0 ||
				a.read(Register(uint32(RegIRR0)+uint32(i)*0x10)) != 0 {
				pending = true
				break
			}
		}
		if !pending {
			return true
		}
		a.write(RegEOI, 0)
	}
	return false
}

// Reset performs the best-effort soft-reboot sequence: disable the timer,
// restore the 11 saved writable registers, disable the APIC via SVR,
// restore IA32_APIC_BASE, drain pending interrupts, disable interrupts
// globally, then restore both legacy PIC masks. If interrupts remain
// pending after the drain budget, Reset still proceeds — the caller may
// inspect the returned bool to log a warning.
func (a *Apic) Reset() (drainedCleanly bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.disableTimerLocked()

	for i, reg := range writableRegisters {
		a.write(reg, a.original.registers[i])
	}

	a.write(RegSpuriousInterruptVector, 0)

	a.ops.WriteMSR(msrAPICBase, a.original.apicBase)

	drainedCleanly = a.eoiAllLocked()

	a.ops.DisableInterrupts()

	a.ops.OutB(legacyPICMaskPort0, a.original.picMask0)
	a.ops.OutB(legacyPICMaskPort1, a.original.picMask1)

	return drainedCleanly
}
