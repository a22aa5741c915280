// Package engine defines the narrow contract the harness consumes from a CPU
// emulation engine. Backends live in sub-packages: unicorn drives the real
// engine, sim is a scripted pure-Go stand-in used by tests.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/zboralski/reentry/internal/arch"
)

var (
	ErrInvalidRange    = errors.New("invalid memory range")
	ErrUnmappedAddress = errors.New("unmapped address")
	ErrInvalidRegister = errors.New("invalid register")
	ErrUnsupportedHook = errors.New("unsupported hook kind")
	ErrInvalidHook     = errors.New("invalid hook handle")
	ErrInvalidContext  = errors.New("invalid context")
	ErrFetch           = errors.New("instruction fetch failed")
	ErrEngineClosed    = errors.New("engine closed")
)

// Prot is a set of page protections.
type Prot int

const (
	ProtNone  Prot = 0
	ProtRead  Prot = 1
	ProtWrite Prot = 2
	ProtExec  Prot = 4
	ProtAll        = ProtRead | ProtWrite | ProtExec
)

func (p Prot) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// HookKind selects the trigger point of a hook.
type HookKind int

const (
	// HookBlock fires when a basic block is entered.
	HookBlock HookKind = iota + 1
	// HookCode fires before each instruction executes.
	HookCode
)

func (k HookKind) String() string {
	switch k {
	case HookBlock:
		return "block"
	case HookCode:
		return "code"
	}
	return fmt.Sprintf("hook(%d)", int(k))
}

// Range is a half-open address range [Begin, End). Any matches every
// address and ignores the bounds.
type Range struct {
	Begin, End uint64
	Any        bool
}

// AnyAddress matches every address.
func AnyAddress() Range {
	return Range{Any: true}
}

// Valid reports whether r is the Any sentinel or non-empty.
func (r Range) Valid() bool {
	return r.Any || r.Begin < r.End
}

// Contains reports whether addr falls inside r.
func (r Range) Contains(addr uint64) bool {
	return r.Any || addr >= r.Begin && addr < r.End
}

func (r Range) String() string {
	if r.Any {
		return "*"
	}
	return fmt.Sprintf("[0x%x, 0x%x)", r.Begin, r.End)
}

// HookFunc is invoked synchronously on the engine's dispatch loop.
type HookFunc func(addr uint64, size uint32)

// Hook is an opaque handle returned by HookAdd.
type Hook interface{}

// Options bound a single Start call. Zero values mean unbounded.
type Options struct {
	Timeout time.Duration
	Count   uint64
}

// Region describes one mapped memory range.
type Region struct {
	Addr uint64
	Size uint64
	Prot Prot
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Addr + r.Size
}

// Contains reports whether [addr, addr+size) lies inside the region.
func (r Region) Contains(addr, size uint64) bool {
	return addr >= r.Addr && addr+size <= r.End() && addr+size >= addr
}

// Overlaps reports whether [addr, addr+size) intersects the region.
func (r Region) Overlaps(addr, size uint64) bool {
	return addr < r.End() && r.Addr < addr+size
}

// Engine is the capability set the harness needs from an emulator.
type Engine interface {
	Arch() *arch.Arch

	MemMap(addr, size uint64, prot Prot) error
	MemRead(addr, size uint64) ([]byte, error)
	MemWrite(addr uint64, data []byte) error

	RegRead(reg arch.Reg) (uint64, error)
	RegWrite(reg arch.Reg, val uint64) error

	HookAdd(kind HookKind, cb HookFunc, r Range) (Hook, error)
	HookDel(h Hook) error

	// Start runs from begin until the instruction at until is reached.
	// Start may be called again from inside a hook callback.
	Start(begin, until uint64, opts Options) error
	Stop() error

	// ContextAlloc returns an independent context bound to this engine.
	ContextAlloc() (Context, error)

	Close() error
}

// Context holds a copy of an engine's architectural state.
type Context interface {
	// Save captures the engine's current state into the context.
	Save() error
	// Restore writes the captured state back into the engine.
	Restore() error
	// Close releases the context.
	Close() error
}

// Opener creates an engine for a.
type Opener func(a *arch.Arch) (Engine, error)
