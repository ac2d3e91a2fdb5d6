package apic

// TimerDivideConfig is the APIC timer's divide-configuration register
// value (bits 3,1,0 of RegTimerDivideConfig); DivideBy2 is 0b0000.
type TimerDivideConfig uint32

const (
	DivideBy2   TimerDivideConfig = 0b0000
	DivideBy4   TimerDivideConfig = 0b0001
	DivideBy8   TimerDivideConfig = 0b0010
	DivideBy16  TimerDivideConfig = 0b0011
	DivideBy32  TimerDivideConfig = 0b1000
	DivideBy64  TimerDivideConfig = 0b1001
	DivideBy128 TimerDivideConfig = 0b1010
	DivideBy1   TimerDivideConfig = 0b1011
)

func (a *Apic) setTimerDivideConfigLocked(cfg TimerDivideConfig) {
	a.write(RegTimerDivideConfig, uint32(cfg))
}

func (a *Apic) disableTimerLocked() {
	a.write(RegTimerInitialCount, 0)
}

// enableTimerLocked programs the LVT-timer entry with periodic mode (bit
// 17) OR'd with vector, divide-by-2, and the fixed initial count used at
// construction.
func (a *Apic) enableTimerLocked(vector uint8) {
	a.disableTimerLocked()
	a.setTimerDivideConfigLocked(DivideBy2)
	a.write(RegLVTTimer, timerPeriodicBit|uint32(vector))
	a.write(RegTimerInitialCount, timerInitialCount)
}

// EnableTimer programs a periodic timer on vector.
func (a *Apic) EnableTimer(vector uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enableTimerLocked(vector)
}

// DisableTimer stops the timer by zeroing its initial count.
func (a *Apic) DisableTimer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disableTimerLocked()
}
