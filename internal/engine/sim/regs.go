package sim

import (
	"fmt"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
)

// regs is a flat register file indexed by arch.Reg.
type regs struct {
	arch *arch.Arch
	vals []uint64
}

func newRegs(a *arch.Arch) *regs {
	return &regs{arch: a, vals: make([]uint64, len(a.Regs))}
}

func (r *regs) read(reg arch.Reg) (uint64, error) {
	if !r.arch.Valid(reg) {
		return 0, fmt.Errorf("%w: %d", engine.ErrInvalidRegister, int(reg))
	}
	return r.vals[reg], nil
}

func (r *regs) write(reg arch.Reg, val uint64) error {
	if !r.arch.Valid(reg) {
		return fmt.Errorf("%w: %d", engine.ErrInvalidRegister, int(reg))
	}
	r.vals[reg] = r.arch.Mask(val)
	return nil
}

func (r *regs) save(into []uint64) []uint64 {
	if len(into) != len(r.vals) {
		into = make([]uint64, len(r.vals))
	}
	copy(into, r.vals)
	return into
}

func (r *regs) restore(from []uint64) {
	copy(r.vals, from)
}
