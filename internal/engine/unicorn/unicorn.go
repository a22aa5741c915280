// Package unicorn drives the Unicorn engine through its Go bindings.
package unicorn

import (
	"errors"
	"fmt"
	"time"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
)

// Engine wraps a Unicorn instance opened for one architecture/mode.
type Engine struct {
	mu   uc.Unicorn
	arch *arch.Arch

	// regs maps arch.Reg to Unicorn register ids.
	regs []int

	// depth counts active Start calls; counted those with a Count bound.
	depth   int
	counted int

	closed bool
}

// ErrNestedCount is returned by a Start issued inside another Start when
// either carries an instruction count. Unicorn keeps one count hook per
// instance, so the inner start would replace or delete the outer bound.
var ErrNestedCount = errors.New("instruction count bound cannot nest")

var _ engine.Engine = (*Engine)(nil)

// Open creates a Unicorn instance for a. It satisfies engine.Opener.
func Open(a *arch.Arch) (engine.Engine, error) {
	ucArch, ucMode, err := ucTarget(a)
	if err != nil {
		return nil, err
	}
	regs, err := ucRegs(a)
	if err != nil {
		return nil, err
	}

	mu, err := uc.NewUnicorn(ucArch, ucMode)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", translate(err, arch.ErrUnsupported))
	}
	return &Engine{mu: mu, arch: a, regs: regs}, nil
}

func ucTarget(a *arch.Arch) (int, int, error) {
	switch a.ID {
	case arch.ARM:
		if a.Mode == arch.ModeThumb {
			return uc.ARCH_ARM, uc.MODE_THUMB, nil
		}
		return uc.ARCH_ARM, uc.MODE_ARM, nil
	case arch.ARM64:
		return uc.ARCH_ARM64, uc.MODE_ARM, nil
	case arch.X86:
		switch a.Mode {
		case arch.Mode16:
			return uc.ARCH_X86, uc.MODE_16, nil
		case arch.Mode32:
			return uc.ARCH_X86, uc.MODE_32, nil
		case arch.Mode64:
			return uc.ARCH_X86, uc.MODE_64, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", arch.ErrUnsupported, a)
}

func ucRegs(a *arch.Arch) ([]int, error) {
	table := regTables[a.ID]
	out := make([]int, len(a.Regs))
	for i, name := range a.Regs {
		id, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no unicorn register %q", arch.ErrUnsupported, a, name)
		}
		out[i] = id
	}
	return out, nil
}

// translate maps a Unicorn error onto the engine sentinels, keeping the
// original message.
func translate(err error, fallback error) error {
	var ue uc.UcError
	if !errors.As(err, &ue) {
		return err
	}
	sentinel := fallback
	switch int(ue) {
	case uc.ERR_ARCH, uc.ERR_MODE:
		sentinel = arch.ErrUnsupported
	case uc.ERR_MAP:
		sentinel = engine.ErrInvalidRange
	case uc.ERR_READ_UNMAPPED, uc.ERR_WRITE_UNMAPPED:
		sentinel = engine.ErrUnmappedAddress
	case uc.ERR_FETCH_UNMAPPED, uc.ERR_FETCH_PROT, uc.ERR_INSN_INVALID, uc.ERR_FETCH_UNALIGNED:
		sentinel = engine.ErrFetch
	case uc.ERR_HOOK:
		sentinel = engine.ErrUnsupportedHook
	}
	if sentinel == nil {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

func (e *Engine) reg(r arch.Reg) (int, error) {
	if !e.arch.Valid(r) {
		return 0, fmt.Errorf("%w: %d", engine.ErrInvalidRegister, int(r))
	}
	return e.regs[r], nil
}

// Arch returns the architecture the engine was opened for.
func (e *Engine) Arch() *arch.Arch {
	return e.arch
}

// MemMap maps a region with the given protections.
func (e *Engine) MemMap(addr, size uint64, prot engine.Prot) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	if err := e.mu.MemMapProt(addr, size, int(prot)); err != nil {
		return translate(err, engine.ErrInvalidRange)
	}
	return nil
}

// MemRead reads bytes from memory
func (e *Engine) MemRead(addr, size uint64) ([]byte, error) {
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	data, err := e.mu.MemRead(addr, size)
	if err != nil {
		return nil, translate(err, engine.ErrUnmappedAddress)
	}
	return data, nil
}

// MemWrite writes bytes to memory
func (e *Engine) MemWrite(addr uint64, data []byte) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	if err := e.mu.MemWrite(addr, data); err != nil {
		return translate(err, engine.ErrUnmappedAddress)
	}
	return nil
}

// RegRead reads a register value
func (e *Engine) RegRead(r arch.Reg) (uint64, error) {
	if e.closed {
		return 0, engine.ErrEngineClosed
	}
	id, err := e.reg(r)
	if err != nil {
		return 0, err
	}
	val, err := e.mu.RegRead(id)
	if err != nil {
		return 0, translate(err, engine.ErrInvalidRegister)
	}
	return val, nil
}

// RegWrite writes a register value
func (e *Engine) RegWrite(r arch.Reg, val uint64) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	id, err := e.reg(r)
	if err != nil {
		return err
	}
	if err := e.mu.RegWrite(id, val); err != nil {
		return translate(err, engine.ErrInvalidRegister)
	}
	return nil
}

// HookAdd installs a block or code hook. Unicorn ranges are inclusive and
// treat begin > end as "everywhere", so the half-open range is converted.
func (e *Engine) HookAdd(kind engine.HookKind, cb engine.HookFunc, r engine.Range) (engine.Hook, error) {
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	var htype int
	switch kind {
	case engine.HookBlock:
		htype = uc.HOOK_BLOCK
	case engine.HookCode:
		htype = uc.HOOK_CODE
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupportedHook, kind)
	}
	if cb == nil || !r.Valid() {
		return nil, fmt.Errorf("%w: hook %s", engine.ErrInvalidRange, r)
	}

	begin, end := uint64(1), uint64(0)
	if !r.Any {
		begin, end = r.Begin, r.End-1
	}
	h, err := e.mu.HookAdd(htype, func(_ uc.Unicorn, addr uint64, size uint32) {
		cb(addr, size)
	}, begin, end)
	if err != nil {
		return nil, translate(err, engine.ErrUnsupportedHook)
	}
	return h, nil
}

// HookDel removes a hook returned by HookAdd.
func (e *Engine) HookDel(h engine.Hook) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	uh, ok := h.(uc.Hook)
	if !ok {
		return engine.ErrInvalidHook
	}
	return e.mu.HookDel(uh)
}

// Start emulates from begin until the instruction at until. Timeout and
// Count map onto Unicorn's own bounds.
func (e *Engine) Start(begin, until uint64, opts engine.Options) error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	if e.depth > 0 && (e.counted > 0 || opts.Count > 0) {
		return fmt.Errorf("%w: start 0x%x at depth %d", ErrNestedCount, begin, e.depth+1)
	}
	e.depth++
	if opts.Count > 0 {
		e.counted++
	}
	defer func() {
		e.depth--
		if opts.Count > 0 {
			e.counted--
		}
	}()
	err := e.mu.StartWithOptions(begin, until, &uc.UcOptions{
		Timeout: uint64(opts.Timeout / time.Microsecond),
		Count:   opts.Count,
	})
	if err != nil {
		return translate(err, nil)
	}
	return nil
}

// Stop stops emulation
func (e *Engine) Stop() error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	return e.mu.Stop()
}

// ContextAlloc returns an empty context bound to this engine.
func (e *Engine) ContextAlloc() (engine.Context, error) {
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	return &ucContext{e: e}, nil
}

// Close releases resources
func (e *Engine) Close() error {
	if e.closed {
		return engine.ErrEngineClosed
	}
	e.closed = true
	return e.mu.Close()
}

// ucContext holds a uc.Context. The bindings free the underlying C context
// with a finalizer, so Close only drops the reference.
type ucContext struct {
	e      *Engine
	ctx    uc.Context
	closed bool
}

func (c *ucContext) Save() error {
	if c.closed {
		return fmt.Errorf("%w: closed", engine.ErrInvalidContext)
	}
	if c.e.closed {
		return engine.ErrEngineClosed
	}
	ctx, err := c.e.mu.ContextSave(c.ctx)
	if err != nil {
		return fmt.Errorf("%w: save: %v", engine.ErrInvalidContext, err)
	}
	c.ctx = ctx
	return nil
}

func (c *ucContext) Restore() error {
	if c.closed {
		return fmt.Errorf("%w: closed", engine.ErrInvalidContext)
	}
	if c.ctx == nil {
		return fmt.Errorf("%w: nothing saved", engine.ErrInvalidContext)
	}
	if c.e.closed {
		return engine.ErrEngineClosed
	}
	if err := c.e.mu.ContextRestore(c.ctx); err != nil {
		return fmt.Errorf("%w: restore: %v", engine.ErrInvalidContext, err)
	}
	return nil
}

func (c *ucContext) Close() error {
	if c.closed {
		return fmt.Errorf("%w: already closed", engine.ErrInvalidContext)
	}
	c.closed = true
	c.ctx = nil
	return nil
}
