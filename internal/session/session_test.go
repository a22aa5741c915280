package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
	"github.com/zboralski/reentry/internal/engine/sim"
	glog "github.com/zboralski/reentry/internal/log"
)

//go:generate mockgen -destination "mock_engine_test.go" -package $GOPACKAGE -write_package_comment=false github.com/zboralski/reentry/internal/engine Engine,Context

const (
	base = 0x1000000
	size = 0x200000
)

func reg(t *testing.T, s *Session, name string) arch.Reg {
	t.Helper()
	r, err := s.Reg(name)
	require.NoError(t, err)
	return r
}

func addTo(name string, delta uint64) func(sim.Machine) error {
	return func(m sim.Machine) error {
		r, _ := m.Arch().Reg(name)
		v, err := m.RegRead(r)
		if err != nil {
			return err
		}
		return m.RegWrite(r, v+delta)
	}
}

// testProgram: +0 r0 += 1, +2 r1 += 0x10, +4 r2 += 0x100 (branch), +6 sp -= 8.
func testProgram() sim.Program {
	return sim.Program{
		base + 0: {Size: 2, Exec: addTo("r0", 1)},
		base + 2: {Size: 2, Exec: addTo("r1", 0x10)},
		base + 4: {Size: 2, Exec: addTo("r2", 0x100), Branch: true},
		base + 6: {Size: 2, Exec: addTo("sp", ^uint64(7))},
		base + 8: {Size: 2},
	}
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(sim.Opener(testProgram()), arch.ARM, arch.ModeThumb, WithLogger(glog.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if !s.Closed() {
			_ = s.Close()
		}
	})
	return s
}

func mapped(t *testing.T) *Session {
	t.Helper()
	s := newSession(t)
	require.NoError(t, s.MapMemory(base, size, engine.ProtAll))
	return s
}

func TestOpen(t *testing.T) {
	s := newSession(t)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, arch.ARM, s.Arch().ID)
	assert.True(t, s.Arch().ModeBit)

	other := newSession(t)
	assert.NotEqual(t, s.ID(), other.ID())
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(sim.Opener(nil), arch.ARM64, arch.ModeThumb)
	assert.ErrorIs(t, err, ErrUnsupportedArch)

	_, err = OpenArch(sim.Opener(nil), nil)
	assert.ErrorIs(t, err, ErrUnsupportedArch)

	failing := func(*arch.Arch) (engine.Engine, error) { return nil, errors.New("boom") }
	_, err = Open(failing, arch.ARM, arch.ModeARM)
	assert.EqualError(t, err, "open arm/arm: boom")
}

func TestMapMemory(t *testing.T) {
	s := newSession(t)

	tests := []struct {
		name       string
		base, size uint64
	}{
		{"zero size", base, 0},
		{"unaligned base", base + 1, size},
		{"unaligned end", base, size + 1},
		{"wraps", ^uint64(0) &^ (arch.PageSize - 1), 2 * arch.PageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.MapMemory(tt.base, tt.size, engine.ProtAll), ErrInvalidRange)
		})
	}

	require.NoError(t, s.MapMemory(base, size, engine.ProtAll))
	assert.ErrorIs(t, s.MapMemory(base+size-arch.PageSize, 2*arch.PageSize, engine.ProtAll), ErrInvalidRange)
	require.NoError(t, s.MapMemory(base+size, arch.PageSize, engine.ProtRead))

	regions := s.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, engine.Region{Addr: base, Size: size, Prot: engine.ProtAll}, regions[0])
	assert.Equal(t, engine.ProtRead, regions[1].Prot)
}

func TestMemory(t *testing.T) {
	s := mapped(t)

	zero, err := s.ReadMemory(base, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, zero)

	code := []byte{0x10, 0xb5, 0x4f, 0xf0}
	require.NoError(t, s.WriteMemory(base+4, code))
	got, err := s.ReadMemory(base+4, uint64(len(code)))
	require.NoError(t, err)
	assert.Equal(t, code, got)

	assert.ErrorIs(t, s.WriteMemory(0x10, code), ErrUnmappedAddress)
	assert.ErrorIs(t, s.WriteMemory(base+size-2, code), ErrUnmappedAddress)
	_, err = s.ReadMemory(base+size, 1)
	assert.ErrorIs(t, err, ErrUnmappedAddress)
}

func TestRegisters(t *testing.T) {
	s := newSession(t)
	r4 := reg(t, s, "r4")

	require.NoError(t, s.WriteRegister(r4, 0x1234))
	v, err := s.ReadRegister(r4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), v)

	alias := reg(t, s, "R13")
	assert.Equal(t, s.Arch().SP, alias)

	_, err = s.Reg("x0")
	assert.ErrorIs(t, err, ErrInvalidRegister)
	_, err = s.ReadRegister(arch.Reg(999))
	assert.ErrorIs(t, err, ErrInvalidRegister)
	assert.ErrorIs(t, s.WriteRegister(arch.Reg(-1), 0), ErrInvalidRegister)

	regs, err := s.Registers()
	require.NoError(t, err)
	require.Len(t, regs, len(s.Arch().Regs))
	assert.Equal(t, "r4", regs[r4].Name)
	assert.Equal(t, uint64(0x1234), regs[r4].Value)
}

func TestClose(t *testing.T) {
	s := mapped(t)
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())

	assert.ErrorIs(t, s.Close(), ErrClosed)
	assert.ErrorIs(t, s.MapMemory(base+size, arch.PageSize, engine.ProtAll), ErrClosed)
	assert.ErrorIs(t, s.WriteMemory(base, []byte{1}), ErrClosed)
	_, err := s.ReadMemory(base, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.ReadRegister(s.Arch().PC)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.AddHook(engine.HookCode, AnyAddress(), func(*Session, uint64, uint32, any) {}, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Run(RunRequest{Start: base, End: base + 4}), ErrClosed)
	_, err = s.Checkpoint()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, s.Regions())
}

func TestCloseFromHookIsBusy(t *testing.T) {
	s := mapped(t)
	var closeErr error
	_, err := s.AddHook(engine.HookCode, Span(base, base+2), func(s *Session, _ uint64, _ uint32, _ any) {
		closeErr = s.Close()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Run(RunRequest{Start: base, End: base + 4, Thumb: true}))
	assert.ErrorIs(t, closeErr, ErrBusy)
	assert.False(t, s.Closed())
}
