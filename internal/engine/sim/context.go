package sim

import (
	"fmt"

	"github.com/zboralski/reentry/internal/engine"
)

// regContext is a deep copy of the register file. It never aliases the live
// registers.
type regContext struct {
	e      *Engine
	vals   []uint64
	saved  bool
	closed bool
}

func (c *regContext) Save() error {
	if c.closed {
		return fmt.Errorf("%w: closed", engine.ErrInvalidContext)
	}
	if c.e.closed {
		return engine.ErrEngineClosed
	}
	c.vals = c.e.regs.save(c.vals)
	c.saved = true
	return nil
}

func (c *regContext) Restore() error {
	if c.closed {
		return fmt.Errorf("%w: closed", engine.ErrInvalidContext)
	}
	if !c.saved {
		return fmt.Errorf("%w: nothing saved", engine.ErrInvalidContext)
	}
	if c.e.closed {
		return engine.ErrEngineClosed
	}
	c.e.regs.restore(c.vals)
	return nil
}

func (c *regContext) Close() error {
	if c.closed {
		return fmt.Errorf("%w: already closed", engine.ErrInvalidContext)
	}
	c.closed = true
	c.vals = nil
	c.e.contexts--
	return nil
}
