package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zboralski/reentry/internal/engine"
	glog "github.com/zboralski/reentry/internal/log"
)

// HookFunc runs synchronously inside the engine's dispatch loop. It may read
// and write memory and registers and may call Run on the same session.
type HookFunc func(s *Session, addr uint64, size uint32, data any)

// Hook is a registered binding.
type Hook struct {
	Kind  engine.HookKind
	Range engine.Range

	cb     HookFunc
	data   any
	handle engine.Hook
	fired  int
}

// Fired returns how many times the callback has run.
func (h *Hook) Fired() int {
	return h.fired
}

// AnyAddress is the range that matches every address.
func AnyAddress() engine.Range {
	return engine.AnyAddress()
}

// Span returns the half-open range [lo, hi).
func Span(lo, hi uint64) engine.Range {
	return engine.Range{Begin: lo, End: hi}
}

// AddHook registers cb for kind over r. Invalid ranges and kinds fail here,
// never at dispatch time.
func (s *Session) AddHook(kind engine.HookKind, r engine.Range, cb HookFunc, data any) (*Hook, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if kind != engine.HookBlock && kind != engine.HookCode {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHook, kind)
	}
	if cb == nil || !r.Valid() {
		return nil, fmt.Errorf("%w: hook range %s", ErrInvalidRange, r)
	}

	h := &Hook{Kind: kind, Range: r, cb: cb, data: data}
	handle, err := s.eng.HookAdd(kind, func(addr uint64, size uint32) {
		s.invoke(h, addr, size)
	}, r)
	if err != nil {
		return nil, fmt.Errorf("add %s hook %s: %w", kind, r, err)
	}
	h.handle = handle
	s.hooks = append(s.hooks, h)
	s.log.Debug("hook added", zap.Stringer("kind", kind), zap.Stringer("range", r))
	return h, nil
}

// RemoveHook unregisters h.
func (s *Session) RemoveHook(h *Hook) error {
	if err := s.check(); err != nil {
		return err
	}
	for i, v := range s.hooks {
		if v == h {
			if err := s.eng.HookDel(h.handle); err != nil {
				return fmt.Errorf("remove %s hook: %w", h.Kind, err)
			}
			s.hooks = append(s.hooks[:i:i], s.hooks[i+1:]...)
			return nil
		}
	}
	return engine.ErrInvalidHook
}

// invoke runs a callback. A panic must not unwind through the engine's
// dispatch loop, so it is recovered, logged, the current run is stopped and
// the panic is reported by that run.
func (s *Session) invoke(h *Hook, addr uint64, size uint32) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %s hook at %s: %v", ErrHookPanic, h.Kind, glog.Hex(addr), r)
			s.log.Error("hook panic", glog.Addr(addr), zap.Error(err))
			if n := len(s.runs); n > 0 && s.runs[n-1].hookErr == nil {
				s.runs[n-1].hookErr = err
			}
			if serr := s.eng.Stop(); serr != nil {
				s.log.Warn("stop after hook panic", glog.Addr(addr), zap.Error(serr))
			}
		}
	}()
	h.fired++
	h.cb(s, addr, size, h.data)
}
