// Package kernelentry implements the minimal per-AP workload the bootloader
// hands off to, ported from kernel/src/main.rs: stamp a start time, publish
// the alive flag, run a bounded unit of work, then clear the alive flag.
// It has no independent use outside the simulation harness and tests — a
// real kernel image supplies its own entry point; this package exists so
// the full boot hand-off can be exercised end-to-end without one.
package kernelentry

import (
	"errors"
	"fmt"

	"github.com/tinyrange/paintbrush/internal/corearg"
)

// ErrCoreNotSet is returned when CoreArg.Core was never assigned before Run.
var ErrCoreNotSet = errors.New("kernelentry: core id not set in CoreArg")

// ErrAliveAddressNotSet is returned when CoreArg.AliveAddress was never
// assigned before Run.
var ErrAliveAddressNotSet = errors.New("kernelentry: alive address not set in CoreArg")

// Clock supplies the monotonic counter value stamped into Stats.StartTime,
// standing in for the original's _rdtsc() read.
type Clock interface {
	Now() uint64
}

const (
	workIterations   = 10
	workInnerRounds  = 0x7ff_ffff
	innerBatchSize   = 1 << 16
)

// Run executes the per-AP workload for arg, exactly mirroring kernel_main
// followed by try_main: assert core id and alive address are set, stamp
// the start time, set the alive flag, run the bounded work loop restamping
// start time each outer iteration, then always clear the alive flag before
// returning — even on error, matching the original's unconditional
// `alive_address.write(false)` after try_main runs.
func Run(arg *corearg.CoreArg, clk Clock) (sum uint64, err error) {
	if arg.Core == nil {
		return 0, ErrCoreNotSet
	}
	if arg.AliveAddress == nil {
		return 0, ErrAliveAddressNotSet
	}

	coreID := *arg.Core
	arg.Stats.StartTime = clk.Now()
	arg.AliveAddress.Set()
	defer arg.AliveAddress.Clear()

	sum, err = tryMain(coreID, arg, clk)
	if err != nil {
		return sum, fmt.Errorf("kernelentry: core %d: %w", coreID, err)
	}
	return sum, nil
}

// tryMain runs the bounded pause-loop workload: workIterations outer
// rounds, each spinning workInnerRounds times (simulated as cheap batched
// counting rather than a real PAUSE-instruction spin, since this runs as
// ordinary user-mode Go), accumulating coreID into sum and restamping
// Stats.StartTime every outer round.
func tryMain(coreID int, arg *corearg.CoreArg, clk Clock) (uint64, error) {
	var sum uint64

	for i := 0; i < workIterations; i++ {
		spin(workInnerRounds)

		sum += uint64(coreID)
		arg.Stats.StartTime = clk.Now()
	}

	return sum, nil
}

// spin busy-counts n times in batches, standing in for the original's
// `asm!("pause")` loop body.
func spin(n int) {
	counted := 0
	for counted < n {
		batch := innerBatchSize
		if n-counted < batch {
			batch = n - counted
		}
		counted += batch
	}
}
