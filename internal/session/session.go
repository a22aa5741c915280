// Package session manages the lifecycle of one emulation context: its
// architecture, mapped memory regions, register file, hook registry and the
// register snapshots taken while it runs.
package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
	glog "github.com/zboralski/reentry/internal/log"
)

var (
	ErrClosed           = errors.New("session closed")
	ErrBusy             = errors.New("session busy")
	ErrInvalidRequest   = errors.New("invalid run request")
	ErrHookPanic        = errors.New("hook callback panicked")
	ErrSnapshotReleased = errors.New("snapshot already released")
	ErrForeignSnapshot  = errors.New("snapshot belongs to another session")
)

// Engine errors surfaced unchanged by the session.
var (
	ErrUnsupportedArch = arch.ErrUnsupported
	ErrInvalidRange    = engine.ErrInvalidRange
	ErrUnmappedAddress = engine.ErrUnmappedAddress
	ErrInvalidRegister = engine.ErrInvalidRegister
	ErrUnsupportedHook = engine.ErrUnsupportedHook
)

// Session is a live emulation context for one architecture/mode.
type Session struct {
	id   string
	arch *arch.Arch
	eng  engine.Engine
	log  *glog.Logger

	regions []engine.Region
	hooks   []*Hook
	runs    []*runFrame
	stats   SnapshotStats

	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *glog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// Open creates a session for id/mode on an engine produced by open.
func Open(open engine.Opener, id arch.ID, mode arch.Mode, opts ...Option) (*Session, error) {
	a, err := arch.Lookup(id, mode)
	if err != nil {
		return nil, err
	}
	return OpenArch(open, a, opts...)
}

// OpenArch is Open for an already resolved architecture.
func OpenArch(open engine.Opener, a *arch.Arch, opts ...Option) (*Session, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil architecture", ErrUnsupportedArch)
	}
	eng, err := open(a)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a, err)
	}

	s := &Session{
		id:   uuid.NewString(),
		arch: a,
		eng:  eng,
		log:  glog.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(glog.Session(s.id), zap.Stringer("arch", a))
	s.log.Debug("session open")
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Arch returns the session architecture.
func (s *Session) Arch() *arch.Arch {
	return s.arch
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *glog.Logger {
	return s.log
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// MapMemory reserves a zero-filled, page-aligned region.
func (s *Session) MapMemory(base, size uint64, prot engine.Prot) error {
	if err := s.check(); err != nil {
		return err
	}
	if size == 0 || base+size < base || !arch.PageAligned(base) || !arch.PageAligned(base+size) {
		return fmt.Errorf("%w: 0x%x+0x%x not page aligned", ErrInvalidRange, base, size)
	}
	for _, r := range s.regions {
		if r.Overlaps(base, size) {
			return fmt.Errorf("%w: 0x%x+0x%x overlaps 0x%x+0x%x", ErrInvalidRange, base, size, r.Addr, r.Size)
		}
	}
	if err := s.eng.MemMap(base, size, prot); err != nil {
		return fmt.Errorf("map 0x%x+0x%x: %w", base, size, err)
	}
	s.regions = append(s.regions, engine.Region{Addr: base, Size: size, Prot: prot})
	s.log.Debug("mapped", glog.Addr(base), glog.Size(size), zap.Stringer("prot", prot))
	return nil
}

// Regions returns a copy of the mapped regions.
func (s *Session) Regions() []engine.Region {
	return append([]engine.Region(nil), s.regions...)
}

// region returns the mapped region holding all of [addr, addr+size).
func (s *Session) region(addr, size uint64) (engine.Region, bool) {
	for _, r := range s.regions {
		if r.Contains(addr, size) && (size > 0 || addr < r.End()) {
			return r, true
		}
	}
	return engine.Region{}, false
}

// WriteMemory copies data to addr. The range must sit inside one region.
func (s *Session) WriteMemory(addr uint64, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, ok := s.region(addr, uint64(len(data))); !ok {
		return fmt.Errorf("%w: write 0x%x+0x%x", ErrUnmappedAddress, addr, len(data))
	}
	if err := s.eng.MemWrite(addr, data); err != nil {
		return fmt.Errorf("write 0x%x: %w", addr, err)
	}
	return nil
}

// ReadMemory reads size bytes at addr. The range must sit inside one region.
func (s *Session) ReadMemory(addr, size uint64) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if _, ok := s.region(addr, size); !ok {
		return nil, fmt.Errorf("%w: read 0x%x+0x%x", ErrUnmappedAddress, addr, size)
	}
	data, err := s.eng.MemRead(addr, size)
	if err != nil {
		return nil, fmt.Errorf("read 0x%x: %w", addr, err)
	}
	return data, nil
}

// Reg resolves a register name for the session architecture.
func (s *Session) Reg(name string) (arch.Reg, error) {
	r, ok := s.arch.Reg(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q on %s", ErrInvalidRegister, name, s.arch)
	}
	return r, nil
}

// ReadRegister returns the value of reg.
func (s *Session) ReadRegister(reg arch.Reg) (uint64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if !s.arch.Valid(reg) {
		return 0, fmt.Errorf("%w: %d on %s", ErrInvalidRegister, int(reg), s.arch)
	}
	return s.eng.RegRead(reg)
}

// WriteRegister sets reg to val.
func (s *Session) WriteRegister(reg arch.Reg, val uint64) error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.arch.Valid(reg) {
		return fmt.Errorf("%w: %d on %s", ErrInvalidRegister, int(reg), s.arch)
	}
	return s.eng.RegWrite(reg, val)
}

// RegValue is one entry of a register dump.
type RegValue struct {
	Reg   arch.Reg
	Name  string
	Value uint64
}

// Registers reads every register of the architecture in table order.
func (s *Session) Registers() ([]RegValue, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]RegValue, 0, len(s.arch.Regs))
	for i, name := range s.arch.Regs {
		v, err := s.eng.RegRead(arch.Reg(i))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, RegValue{Reg: arch.Reg(i), Name: name, Value: v})
	}
	return out, nil
}

// Close releases the engine and everything it owns. It fails with ErrBusy
// while a run is active.
func (s *Session) Close() error {
	if err := s.check(); err != nil {
		return err
	}
	if len(s.runs) > 0 {
		return ErrBusy
	}
	if out := s.stats.Outstanding(); out != 0 {
		s.log.Warn("snapshots not released", zap.Int("outstanding", out))
	}
	s.closed = true
	s.hooks = nil
	s.regions = nil
	if err := s.eng.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	s.log.Debug("session closed",
		zap.Int("snapshots", s.stats.Allocated),
		zap.Int("released", s.stats.Released),
	)
	return nil
}
