package nested

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/zboralski/reentry/internal/arch"
	glog "github.com/zboralski/reentry/internal/log"
	"github.com/zboralski/reentry/internal/session"
)

// ErrGuard reports a guard expression that failed to compile or evaluate.
var ErrGuard = errors.New("guard expression")

// Target describes one nested run.
type Target struct {
	// Trigger is the instruction address that activates the target.
	Trigger uint64
	// Diag names registers read and reported before the checkpoint.
	Diag []string
	// Run is the inner run issued between checkpoint and restore.
	Run session.RunRequest
	// Guard is an optional JavaScript expression. Register names are bound
	// as numbers, plus addr and depth. The target fires only when the
	// expression is truthy.
	Guard string
}

type target struct {
	Target
	diag  []arch.Reg
	guard *goja.Program
}

func compileTarget(s *session.Session, t Target) (*target, error) {
	out := &target{Target: t}
	for _, name := range t.Diag {
		reg, err := s.Reg(name)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", glog.Hex(t.Trigger), err)
		}
		out.diag = append(out.diag, reg)
	}
	if t.Guard != "" {
		prog, err := goja.Compile(fmt.Sprintf("guard@%s", glog.Hex(t.Trigger)), t.Guard, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGuard, err)
		}
		out.guard = prog
	}
	return out, nil
}

// allow evaluates the guard against the current register file.
func (t *target) allow(s *session.Session, addr uint64, depth int) (bool, error) {
	if t.guard == nil {
		return true, nil
	}
	regs, err := s.Registers()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGuard, err)
	}
	vm := goja.New()
	for _, r := range regs {
		if err := vm.Set(r.Name, r.Value); err != nil {
			return false, fmt.Errorf("%w: bind %s: %v", ErrGuard, r.Name, err)
		}
	}
	if err := vm.Set("addr", addr); err != nil {
		return false, fmt.Errorf("%w: %v", ErrGuard, err)
	}
	if err := vm.Set("depth", depth); err != nil {
		return false, fmt.Errorf("%w: %v", ErrGuard, err)
	}
	v, err := vm.RunProgram(t.guard)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGuard, err)
	}
	return v.ToBoolean(), nil
}
