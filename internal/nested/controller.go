// Package nested implements the reentrant run controller: an instruction
// hook that, on a trigger address, checkpoints the session's registers,
// runs a different code range on the same session, restores the checkpoint
// and lets the outer run resume at the trigger instruction.
//
// Only registers are checkpointed. Memory written by the inner run stays
// written after the outer run resumes.
package nested

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zboralski/reentry/internal/engine"
	glog "github.com/zboralski/reentry/internal/log"
	"github.com/zboralski/reentry/internal/session"
	"github.com/zboralski/reentry/internal/trace"
)

var (
	ErrDepthExceeded    = errors.New("nesting depth exceeded")
	ErrDuplicateTrigger = errors.New("trigger already registered")
)

// State is the controller's position in the nested-run sequence.
type State int

const (
	OuterRunning State = iota
	Checkpointed
	InnerRunning
	Restored
)

func (s State) String() string {
	switch s {
	case OuterRunning:
		return "outer-running"
	case Checkpointed:
		return "checkpointed"
	case InnerRunning:
		return "inner-running"
	case Restored:
		return "restored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transition records one state change of one nesting level.
type Transition struct {
	Depth    int
	Trigger  uint64
	From, To State
}

// Stats counts trigger outcomes.
type Stats struct {
	Triggered int
	Completed int
	Failed    int
	Skipped   int
	// Deepest is the highest nesting level entered.
	Deepest int
}

// Controller owns the nested-run targets of one session.
type Controller struct {
	s        *session.Session
	log      *glog.Logger
	sink     trace.Sink
	targets  map[uint64]*target
	maxDepth int
	frames   []State
	stats    Stats

	onTransition func(Transition)
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxDepth bounds recursion. Zero means unbounded.
func WithMaxDepth(n int) Option {
	return func(c *Controller) {
		c.maxDepth = n
	}
}

// WithSink sets where trace events go.
func WithSink(sink trace.Sink) Option {
	return func(c *Controller) {
		c.sink = sink
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *glog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// OnTransition registers an observer for every state change.
func OnTransition(fn func(Transition)) Option {
	return func(c *Controller) {
		c.onTransition = fn
	}
}

// New creates a controller for s.
func New(s *session.Session, opts ...Option) *Controller {
	c := &Controller{
		s:       s,
		log:     s.Logger(),
		sink:    trace.Discard,
		targets: make(map[uint64]*target),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("nested")
	return c
}

// Add registers a target. Each trigger address may have one target.
func (c *Controller) Add(t Target) error {
	if _, ok := c.targets[t.Trigger]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTrigger, glog.Hex(t.Trigger))
	}
	compiled, err := compileTarget(c.s, t)
	if err != nil {
		return err
	}
	c.targets[t.Trigger] = compiled
	return nil
}

// Install registers the controller as a code hook over r.
func (c *Controller) Install(r engine.Range) (*session.Hook, error) {
	return c.s.AddHook(engine.HookCode, r, c.Hook(), nil)
}

// Hook returns the code-hook callback that activates targets.
func (c *Controller) Hook() session.HookFunc {
	return func(_ *session.Session, addr uint64, _ uint32, _ any) {
		if _, ok := c.targets[addr]; ok {
			// Trigger logs and emits its own failures.
			_ = c.Trigger(addr)
		}
	}
}

// State returns the state of the innermost active nesting level, or
// OuterRunning when no nested sequence is in progress.
func (c *Controller) State() State {
	if n := len(c.frames); n > 0 {
		return c.frames[n-1]
	}
	return OuterRunning
}

// Depth returns how many nested sequences are in progress.
func (c *Controller) Depth() int {
	return len(c.frames)
}

// Stats returns the trigger counters.
func (c *Controller) Stats() Stats {
	return c.stats
}

func (c *Controller) move(trigger uint64, to State) {
	n := len(c.frames)
	from := c.frames[n-1]
	c.frames[n-1] = to
	t := Transition{Depth: n, Trigger: trigger, From: from, To: to}

	ev := trace.New(trace.State, trigger, n)
	ev.From, ev.To = from.String(), to.String()
	c.sink.Emit(ev)
	if c.onTransition != nil {
		c.onTransition(t)
	}
}

// Trigger runs the nested sequence registered for addr. It is normally
// called from the code hook; every failure is also logged and emitted so
// the hook itself can ignore the result.
func (c *Controller) Trigger(addr uint64) error {
	t, ok := c.targets[addr]
	if !ok {
		return nil
	}
	depth := len(c.frames) + 1
	c.stats.Triggered++

	c.diagnose(t, depth)

	if fire, err := t.allow(c.s, addr, depth); err != nil || !fire {
		c.stats.Skipped++
		c.skip(addr, depth, err)
		return err
	}
	if c.maxDepth > 0 && depth > c.maxDepth {
		c.stats.Skipped++
		err := fmt.Errorf("%w: %d > %d at %s", ErrDepthExceeded, depth, c.maxDepth, glog.Hex(addr))
		c.skip(addr, depth, err)
		return err
	}

	c.frames = append(c.frames, OuterRunning)
	defer func() {
		c.frames = c.frames[:len(c.frames)-1]
	}()
	if depth > c.stats.Deepest {
		c.stats.Deepest = depth
	}

	var runErr error
	err := c.s.WithSnapshot(func(snap *session.Snapshot) error {
		c.move(addr, Checkpointed)
		c.log.Debug("checkpoint", glog.Addr(addr), glog.Depth(depth), glog.Ptr("pc", snap.PC()))

		c.move(addr, InnerRunning)
		ev := trace.New(trace.NestBegin, addr, depth).AddTag(trace.Nested).AddTag(trace.Checkpoint)
		ev.Start, ev.End = t.Run.Begin(c.s.Arch()), t.Run.End
		c.sink.Emit(ev)

		runErr = c.s.Run(t.Run)
		return runErr
	})
	if c.State() != OuterRunning {
		c.move(addr, Restored)
		c.move(addr, OuterRunning)
	}

	end := trace.New(trace.NestEnd, addr, depth).AddTag(trace.Nested).AddTag(trace.Restore)
	end.Start, end.End = t.Run.Begin(c.s.Arch()), t.Run.End
	end.Err = err
	if err != nil {
		end.AddTag(trace.Failure)
		c.stats.Failed++
		if runErr != nil {
			c.log.Warn("inner run failed", glog.Addr(addr), glog.Depth(depth), zap.Error(runErr))
		} else {
			c.log.Error("nested sequence failed", glog.Addr(addr), glog.Depth(depth), zap.Error(err))
		}
	} else {
		c.stats.Completed++
	}
	c.sink.Emit(end)
	return err
}

func (c *Controller) diagnose(t *target, depth int) {
	for _, reg := range t.diag {
		val, err := c.s.ReadRegister(reg)
		name := c.s.Arch().RegName(reg)
		if err != nil {
			c.log.Warn("diagnostic read failed", zap.String("reg", name), zap.Error(err))
			continue
		}
		ev := trace.New(trace.Diag, t.Trigger, depth).AddTag(trace.Trigger)
		ev.Reg, ev.Value = name, val
		c.sink.Emit(ev)
		c.log.Debug("diagnostic", glog.Addr(t.Trigger), glog.Reg(name, val))
	}
}

func (c *Controller) skip(addr uint64, depth int, err error) {
	ev := trace.New(trace.Skip, addr, depth).AddTag(trace.Nested)
	ev.Err = err
	c.sink.Emit(ev)
	if err != nil {
		c.log.Warn("nested run skipped", glog.Addr(addr), glog.Depth(depth), zap.Error(err))
	} else {
		c.log.Debug("guard declined", glog.Addr(addr), glog.Depth(depth))
	}
}
