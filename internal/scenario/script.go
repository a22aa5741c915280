package scenario

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine/sim"
)

// ErrUnscripted is returned when the code contains an instruction the
// scripted engine has no op for.
var ErrUnscripted = errors.New("no scripted op for instruction")

type scriptedOp struct {
	enc  []byte
	name string
	op   func(a *arch.Arch) sim.Op
}

// thumbOps are the Thumb encodings the scripted engine can run.
var thumbOps = []scriptedOp{
	{enc: []byte{0x10, 0xb5}, name: "push {r4, lr}", op: func(a *arch.Arch) sim.Op {
		return sim.Op{Size: 2, Exec: push(a, "r4", "lr")}
	}},
	{enc: []byte{0x4f, 0xf0, 0x00, 0x04}, name: "mov.w r4, #0", op: func(a *arch.Arch) sim.Op {
		return sim.Op{Size: 4, Exec: movImm(a, "r4", 0)}
	}},
	{enc: []byte{0x00, 0x46}, name: "mov r0, r0", op: func(*arch.Arch) sim.Op {
		return sim.Op{Size: 2}
	}},
	{enc: []byte{0x10, 0xbd}, name: "pop {r4, pc}", op: func(a *arch.Arch) sim.Op {
		return sim.Op{Size: 2, Exec: pop(a, "r4", "pc"), Branch: true}
	}},
}

// Script builds a scripted program for sc's code at every placement. Only
// ARM Thumb code made of the encodings in thumbOps is supported.
func Script(sc *Scenario) (sim.Program, error) {
	a, err := arch.Parse(sc.Arch, sc.Mode)
	if err != nil {
		return nil, err
	}
	if a.ID != arch.ARM || a.Mode != arch.ModeThumb {
		return nil, fmt.Errorf("%w: scripted engine runs arm/thumb, not %s", ErrUnscripted, a)
	}

	ops := make(map[uint64]sim.Op)
	code, err := sc.LoadCode(a)
	if err != nil {
		return nil, err
	}
	for off := 0; off < len(code); {
		s, ok := matchOp(code[off:])
		if !ok {
			return nil, fmt.Errorf("%w: % x at +0x%x", ErrUnscripted, code[off:min(off+4, len(code))], off)
		}
		ops[uint64(off)] = s.op(a)
		off += len(s.enc)
	}

	prog := make(sim.Program, len(ops)*len(sc.Placements))
	for _, place := range sc.Placements {
		at := uint64(sc.Base) + uint64(place)
		for off, op := range ops {
			prog[at+off] = op
		}
	}
	return prog, nil
}

func matchOp(code []byte) (scriptedOp, bool) {
	for _, s := range thumbOps {
		if len(code) >= len(s.enc) && string(code[:len(s.enc)]) == string(s.enc) {
			return s, true
		}
	}
	return scriptedOp{}, false
}

func regs(a *arch.Arch, names ...string) []arch.Reg {
	out := make([]arch.Reg, len(names))
	for i, n := range names {
		r, ok := a.Reg(n)
		if !ok {
			panic(fmt.Sprintf("scripted op: unknown register %q", n))
		}
		out[i] = r
	}
	return out
}

// push stores names in ascending order below sp and lowers sp.
func push(a *arch.Arch, names ...string) func(sim.Machine) error {
	list := regs(a, names...)
	return func(m sim.Machine) error {
		sp, err := m.RegRead(a.SP)
		if err != nil {
			return err
		}
		sp -= uint64(4 * len(list))
		buf := make([]byte, 4*len(list))
		for i, r := range list {
			v, err := m.RegRead(r)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
		}
		if err := m.MemWrite(sp, buf); err != nil {
			return err
		}
		return m.RegWrite(a.SP, sp)
	}
}

// pop loads names from sp in ascending order and raises sp. Loading pc
// clears the Thumb bit and redirects execution.
func pop(a *arch.Arch, names ...string) func(sim.Machine) error {
	list := regs(a, names...)
	return func(m sim.Machine) error {
		sp, err := m.RegRead(a.SP)
		if err != nil {
			return err
		}
		buf, err := m.MemRead(sp, uint64(4*len(list)))
		if err != nil {
			return err
		}
		if err := m.RegWrite(a.SP, sp+uint64(len(buf))); err != nil {
			return err
		}
		for i, r := range list {
			v := uint64(binary.LittleEndian.Uint32(buf[4*i:]))
			if r == a.PC {
				v &^= 1
			}
			if err := m.RegWrite(r, v); err != nil {
				return err
			}
		}
		return nil
	}
}

func movImm(a *arch.Arch, name string, imm uint64) func(sim.Machine) error {
	r := regs(a, name)[0]
	return func(m sim.Machine) error {
		return m.RegWrite(r, imm)
	}
}
