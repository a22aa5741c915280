// Package sim is a scripted, pure-Go implementation of engine.Engine.
//
// It never decodes machine code. A Program maps addresses to Ops supplied by
// the caller; the engine fetches from mapped executable memory, dispatches
// block and code hooks, and applies each Op's effect. Start is reentrant so a
// hook may issue a nested run on the same engine, exactly as the real engine
// allows.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
)

// ErrProtection is returned when a scripted op touches memory its page
// protections forbid.
var ErrProtection = errors.New("memory protection violation")

// Machine is the view of the engine an Op executes against.
type Machine interface {
	Arch() *arch.Arch
	RegRead(reg arch.Reg) (uint64, error)
	RegWrite(reg arch.Reg, val uint64) error
	MemRead(addr, size uint64) ([]byte, error)
	MemWrite(addr uint64, data []byte) error
}

// Op is one scripted instruction.
type Op struct {
	Size uint32
	// Exec applies the instruction. Writing the PC register redirects
	// execution; otherwise the engine falls through to the next op.
	Exec func(m Machine) error
	// Branch ends the current basic block.
	Branch bool
}

// Program maps instruction addresses to ops.
type Program map[uint64]Op

type frame struct {
	stop atomic.Bool
}

// Engine is the scripted emulator.
type Engine struct {
	arch  *arch.Arch
	prog  Program
	mem   *memory
	regs  *regs
	hooks *hooks

	framesMu sync.Mutex
	frames   []*frame

	contexts int
	closed   bool
}

// New creates an engine for a executing prog.
func New(a *arch.Arch, prog Program) *Engine {
	if prog == nil {
		prog = Program{}
	}
	return &Engine{
		arch:  a,
		prog:  prog,
		mem:   &memory{},
		regs:  newRegs(a),
		hooks: &hooks{},
	}
}

// Opener returns an engine.Opener producing engines that run prog.
func Opener(prog Program) engine.Opener {
	return func(a *arch.Arch) (engine.Engine, error) {
		return New(a, prog), nil
	}
}

// Load adds ops to the program, replacing any at the same address.
func (e *Engine) Load(prog Program) {
	for addr, op := range prog {
		e.prog[addr] = op
	}
}

// Contexts returns the number of contexts allocated and not yet closed.
func (e *Engine) Contexts() int {
	return e.contexts
}

// Depth returns the number of Start calls currently on the stack.
func (e *Engine) Depth() int {
	e.framesMu.Lock()
	defer e.framesMu.Unlock()
	return len(e.frames)
}

// Arch returns the architecture the engine was opened for.
func (e *Engine) Arch() *arch.Arch {
	return e.arch
}

// MemMap maps a zeroed page-aligned region that must not overlap another.
func (e *Engine) MemMap(addr, size uint64, prot engine.Prot) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	return e.mem.mapRegion(addr, size, prot)
}

// Regions lists the mapped regions in mapping order.
func (e *Engine) Regions() []engine.Region {
	out := make([]engine.Region, 0, len(e.mem.regions))
	for _, r := range e.mem.regions {
		out = append(out, r.Region)
	}
	return out
}

// MemRead reads size bytes that lie inside one mapped region.
func (e *Engine) MemRead(addr, size uint64) ([]byte, error) {
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	return e.mem.read(addr, size, engine.ProtNone)
}

// MemWrite writes data into one mapped region.
func (e *Engine) MemWrite(addr uint64, data []byte) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	return e.mem.write(addr, data, engine.ProtNone)
}

// RegRead returns a register value.
func (e *Engine) RegRead(reg arch.Reg) (uint64, error) {
	if e.closed {
		return 0, engine.ErrEngineClosed
	}
	return e.regs.read(reg)
}

// RegWrite sets a register, masked to the architecture width.
func (e *Engine) RegWrite(reg arch.Reg, val uint64) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	return e.regs.write(reg, val)
}

// HookAdd registers cb for kind over r.
func (e *Engine) HookAdd(kind engine.HookKind, cb engine.HookFunc, r engine.Range) (engine.Hook, error) {
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	return e.hooks.add(kind, cb, r)
}

// HookDel removes a hook returned by HookAdd.
func (e *Engine) HookDel(h engine.Hook) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	return e.hooks.del(h)
}

// Stop ends the innermost active run after the current dispatch step. It is
// safe to call from another goroutine.
func (e *Engine) Stop() error {
	e.framesMu.Lock()
	defer e.framesMu.Unlock()
	if n := len(e.frames); n > 0 {
		e.frames[n-1].stop.Store(true)
	}
	return nil
}

func (e *Engine) push() *frame {
	f := &frame{}
	e.framesMu.Lock()
	e.frames = append(e.frames, f)
	e.framesMu.Unlock()
	return f
}

func (e *Engine) pop() {
	e.framesMu.Lock()
	e.frames = e.frames[:len(e.frames)-1]
	e.framesMu.Unlock()
}

// Start executes from begin until the op at until is reached, the run is
// stopped, or one of the bounds in opts is hit.
func (e *Engine) Start(begin, until uint64, opts engine.Options) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	if e.arch.ModeBit {
		begin &^= 1
		until &^= 1
	}

	f := e.push()
	defer e.pop()

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	pc := begin
	blockStart := true
	var executed uint64
	for pc != until {
		if f.stop.Load() {
			return nil
		}
		if opts.Count > 0 && executed >= opts.Count {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}

		op, err := e.fetch(pc)
		if err != nil {
			return err
		}
		if err := e.regs.write(e.arch.PC, pc); err != nil {
			return err
		}

		if blockStart {
			e.hooks.dispatch(engine.HookBlock, pc, e.blockSize(pc, until))
		}
		e.hooks.dispatch(engine.HookCode, pc, op.Size)
		if f.stop.Load() {
			return nil
		}

		// A hook may have redirected execution.
		cur, err := e.regs.read(e.arch.PC)
		if err != nil {
			return err
		}
		if cur != pc {
			pc, blockStart = cur, true
			continue
		}

		if op.Exec != nil {
			if err := op.Exec(guest{e}); err != nil {
				return fmt.Errorf("exec 0x%x: %w", pc, err)
			}
		}
		executed++

		next, err := e.regs.read(e.arch.PC)
		if err != nil {
			return err
		}
		if next != pc {
			pc, blockStart = next, true
			continue
		}
		pc += uint64(op.Size)
		blockStart = op.Branch
		if err := e.regs.write(e.arch.PC, pc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fetch(pc uint64) (Op, error) {
	op, ok := e.prog[pc]
	if !ok || op.Size == 0 {
		return Op{}, fmt.Errorf("%w: no instruction at 0x%x", engine.ErrFetch, pc)
	}
	if _, err := e.mem.read(pc, uint64(op.Size), engine.ProtExec); err != nil {
		return Op{}, fmt.Errorf("%w: 0x%x: %v", engine.ErrFetch, pc, err)
	}
	return op, nil
}

// blockSize sums op sizes from pc to the first branch, gap, or until.
func (e *Engine) blockSize(pc, until uint64) uint32 {
	var size uint32
	for pc != until {
		op, ok := e.prog[pc]
		if !ok || op.Size == 0 {
			break
		}
		size += op.Size
		if op.Branch {
			break
		}
		pc += uint64(op.Size)
	}
	return size
}

// ContextAlloc returns an empty context that Save fills with a register copy.
func (e *Engine) ContextAlloc() (engine.Context, error) {
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	e.contexts++
	return &regContext{e: e}, nil
}

// Close releases the engine. Later calls fail with engine.ErrEngineClosed.
func (e *Engine) Close() error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	e.closed = true
	e.mem = &memory{}
	e.hooks = &hooks{}
	return nil
}

// guest is the Machine handed to ops; its memory accesses honour page
// protections.
type guest struct {
	e *Engine
}

func (g guest) Arch() *arch.Arch                        { return g.e.arch }
func (g guest) RegRead(reg arch.Reg) (uint64, error)    { return g.e.regs.read(reg) }
func (g guest) RegWrite(reg arch.Reg, val uint64) error { return g.e.regs.write(reg, val) }

func (g guest) MemRead(addr, size uint64) ([]byte, error) {
	return g.e.mem.read(addr, size, engine.ProtRead)
}

func (g guest) MemWrite(addr uint64, data []byte) error {
	return g.e.mem.write(addr, data, engine.ProtWrite)
}
