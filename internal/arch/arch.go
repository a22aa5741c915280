// Package arch describes the architectures the harness can drive: their
// modes, register files and the address conventions a run request needs.
package arch

import (
	"errors"
	"fmt"
	"strings"
)

// PageSize is the mapping granularity every backend enforces.
const PageSize = 0x1000

// ErrUnsupported is returned for an architecture/mode pair with no register
// file.
var ErrUnsupported = errors.New("unsupported architecture or mode")

// ID identifies an instruction-set family.
type ID int

const (
	Unknown ID = iota
	ARM
	ARM64
	X86
)

func (id ID) String() string {
	switch id {
	case ARM:
		return "arm"
	case ARM64:
		return "arm64"
	case X86:
		return "x86"
	}
	return fmt.Sprintf("arch(%d)", int(id))
}

// Mode selects an encoding or operand width within a family.
type Mode int

const (
	ModeARM Mode = iota
	ModeThumb
	Mode16
	Mode32
	Mode64
)

func (m Mode) String() string {
	switch m {
	case ModeARM:
		return "arm"
	case ModeThumb:
		return "thumb"
	case Mode16:
		return "16"
	case Mode32:
		return "32"
	case Mode64:
		return "64"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Reg is an index into Arch.Regs. Backends translate it to their own
// register numbering.
type Reg int

// Arch is an immutable description of one architecture/mode pair.
type Arch struct {
	ID   ID
	Mode Mode
	Bits uint

	// Regs lists canonical register names; a Reg is an index into it.
	Regs []string
	SP   Reg
	PC   Reg

	// ModeBit reports whether bit 0 of a start address selects the
	// alternate (Thumb) encoding.
	ModeBit bool

	aliases map[string]Reg
}

func (a *Arch) String() string {
	return a.ID.String() + "/" + a.Mode.String()
}

// Valid reports whether r names a register of this architecture.
func (a *Arch) Valid(r Reg) bool {
	return r >= 0 && int(r) < len(a.Regs)
}

// RegName returns the canonical name of r.
func (a *Arch) RegName(r Reg) string {
	if !a.Valid(r) {
		return fmt.Sprintf("reg(%d)", int(r))
	}
	return a.Regs[r]
}

// Reg resolves a register name or alias, case-insensitively.
func (a *Arch) Reg(name string) (Reg, bool) {
	r, ok := a.aliases[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

// Mask truncates v to the architecture's register width.
func (a *Arch) Mask(v uint64) uint64 {
	return v & (^uint64(0) >> (64 - a.Bits))
}

// PageAligned reports whether v sits on a page boundary.
func PageAligned(v uint64) bool {
	return v%PageSize == 0
}

// Lookup returns the description of id in mode.
func Lookup(id ID, mode Mode) (*Arch, error) {
	switch id {
	case ARM:
		if mode == ModeARM || mode == ModeThumb {
			return newArch(id, mode, 32, armRegs, "sp", "pc", mode == ModeThumb, armAliases), nil
		}
	case ARM64:
		if mode == ModeARM {
			return newArch(id, mode, 64, arm64Regs, "sp", "pc", false, arm64Aliases), nil
		}
	case X86:
		switch mode {
		case Mode16:
			return newArch(id, mode, 16, x86Regs16, "sp", "ip", false, nil), nil
		case Mode32:
			return newArch(id, mode, 32, x86Regs32, "esp", "eip", false, nil), nil
		case Mode64:
			return newArch(id, mode, 64, x86Regs64, "rsp", "rip", false, nil), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnsupported, id, mode)
}

// Parse resolves textual architecture and mode names such as "arm" and
// "thumb".
func Parse(archName, modeName string) (*Arch, error) {
	archName = strings.ToLower(strings.TrimSpace(archName))
	var id ID
	switch archName {
	case "arm", "arm32":
		id = ARM
	case "arm64", "aarch64":
		id = ARM64
	case "x86", "i386", "x86_64", "amd64":
		id = X86
	default:
		return nil, fmt.Errorf("%w: arch %q", ErrUnsupported, archName)
	}

	var mode Mode
	switch strings.ToLower(strings.TrimSpace(modeName)) {
	case "", "arm", "a32":
		mode = ModeARM
		if id == X86 {
			mode = Mode64
			if archName == "x86" || archName == "i386" {
				mode = Mode32
			}
		}
	case "thumb", "t32":
		mode = ModeThumb
	case "16":
		mode = Mode16
	case "32":
		mode = Mode32
	case "64":
		mode = Mode64
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrUnsupported, modeName)
	}
	return Lookup(id, mode)
}

func newArch(id ID, mode Mode, bits uint, regs []string, sp, pc string, modeBit bool, extra map[string]string) *Arch {
	a := &Arch{
		ID:      id,
		Mode:    mode,
		Bits:    bits,
		Regs:    regs,
		ModeBit: modeBit,
		aliases: make(map[string]Reg, len(regs)+len(extra)),
	}
	for i, name := range regs {
		a.aliases[name] = Reg(i)
	}
	for alias, name := range extra {
		a.aliases[alias] = a.aliases[name]
	}
	a.SP = a.aliases[sp]
	a.PC = a.aliases[pc]
	return a
}
