package sim

import (
	"fmt"

	"github.com/zboralski/reentry/internal/engine"
)

type hook struct {
	kind engine.HookKind
	cb   engine.HookFunc
	r    engine.Range
}

type hooks struct {
	list []*hook
}

func (h *hooks) add(kind engine.HookKind, cb engine.HookFunc, r engine.Range) (engine.Hook, error) {
	if kind != engine.HookBlock && kind != engine.HookCode {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupportedHook, kind)
	}
	if cb == nil || !r.Valid() {
		return nil, fmt.Errorf("%w: hook %s", engine.ErrInvalidRange, r)
	}
	hh := &hook{kind: kind, cb: cb, r: r}
	h.list = append(h.list, hh)
	return hh, nil
}

func (h *hooks) del(handle engine.Hook) error {
	hh, ok := handle.(*hook)
	if !ok {
		return engine.ErrInvalidHook
	}
	for i, v := range h.list {
		if v == hh {
			h.list = append(h.list[:i:i], h.list[i+1:]...)
			return nil
		}
	}
	return engine.ErrInvalidHook
}

// dispatch calls every hook of kind covering addr. The list is copied first
// so callbacks may add or remove hooks.
func (h *hooks) dispatch(kind engine.HookKind, addr uint64, size uint32) {
	list := append([]*hook(nil), h.list...)
	for _, v := range list {
		if v.kind == kind && v.r.Contains(addr) {
			v.cb(addr, size)
		}
	}
}
