package scenario

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/disasm"
	"github.com/zboralski/reentry/internal/engine"
	glog "github.com/zboralski/reentry/internal/log"
	"github.com/zboralski/reentry/internal/nested"
	"github.com/zboralski/reentry/internal/session"
	"github.com/zboralski/reentry/internal/trace"
)

// Result summarizes one scenario run.
type Result struct {
	Session string
	Arch    *arch.Arch

	// InitialSP is the stack pointer before the outer run. CheckpointSP and
	// ResumedSP are taken at the first checkpoint and right after its
	// restore; they are equal when the nested run left no register trace.
	InitialSP    uint64
	CheckpointSP uint64
	ResumedSP    uint64
	FinalSP      uint64

	Final []session.RegValue

	// OuterErr is the outer run's failure. Setup failures are returned
	// from Run instead.
	OuterErr  error
	Cancelled bool

	Nested    nested.Stats
	Snapshots session.SnapshotStats
	Blocks    int
	Insns     int
}

// Option configures Run.
type Option func(*runner)

type runner struct {
	ctx      context.Context
	sink     trace.Sink
	log      *glog.Logger
	maxDepth int
	disasm   bool
}

// WithSink sends trace events to sink.
func WithSink(sink trace.Sink) Option {
	return func(r *runner) {
		r.sink = sink
	}
}

// WithLogger sets the logger for the session and controller.
func WithLogger(l *glog.Logger) Option {
	return func(r *runner) {
		r.log = l
	}
}

// WithMaxDepth bounds nested recursion; zero leaves it unbounded.
func WithMaxDepth(n int) Option {
	return func(r *runner) {
		r.maxDepth = n
	}
}

// WithDisasm toggles disassembly of traced instructions.
func WithDisasm(on bool) Option {
	return func(r *runner) {
		r.disasm = on
	}
}

// Run executes sc on an engine produced by open. The session is closed
// before Run returns on every path.
func Run(ctx context.Context, open engine.Opener, sc *Scenario, opts ...Option) (res *Result, err error) {
	r := &runner{ctx: ctx, sink: trace.Discard, log: glog.Get(), disasm: true}
	for _, opt := range opts {
		opt(r)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	a, err := arch.Parse(sc.Arch, sc.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	s, err := session.OpenArch(open, a, session.WithLogger(r.log))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	res = &Result{Session: s.ID(), Arch: a}
	defer func() {
		res.Snapshots = s.SnapshotStats()
		if cerr := s.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close session: %w", cerr))
		}
	}()

	if err := r.setup(s, sc); err != nil {
		return res, err
	}

	ctl, err := r.controller(s, sc, res)
	if err != nil {
		return res, err
	}
	if err := r.install(s, sc, ctl, res); err != nil {
		return res, err
	}

	res.InitialSP = r.readSP(s, "initial")

	stop := r.watch(ctx, s)
	outerErr := s.Run(sc.Outer.Request(uint64(sc.Base)))
	stop()
	res.Cancelled = ctx.Err() != nil

	if outerErr != nil {
		res.OuterErr = outerErr
		ev := trace.New(trace.RunError, uint64(sc.Base)+uint64(sc.Outer.Start), 0).AddTag(trace.Failure)
		ev.Err = outerErr
		r.sink.Emit(ev)
	}

	res.Nested = ctl.Stats()
	regs, err := s.Registers()
	if err != nil {
		return res, fmt.Errorf("read final registers: %w", err)
	}
	res.Final = regs
	final := trace.New(trace.Final, 0, 0)
	for _, v := range regs {
		final.Regs = append(final.Regs, trace.RegValue{Name: v.Name, Value: v.Value})
		if v.Reg == a.SP {
			res.FinalSP = v.Value
		}
		if v.Reg == a.PC {
			final.Addr = v.Value
		}
	}
	r.sink.Emit(final)
	return res, nil
}

func (r *runner) setup(s *session.Session, sc *Scenario) error {
	base, size := uint64(sc.Base), uint64(sc.Size)
	prot, err := ParseProt(sc.Prot)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if err := s.MapMemory(base, size, prot); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if len(sc.Marker) > 0 {
		if err := s.WriteMemory(base, sc.Marker); err != nil {
			return fmt.Errorf("%w: marker: %w", ErrMemoryAccess, err)
		}
	}
	code, err := sc.LoadCode(s.Arch())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	for _, off := range sc.Placements {
		if err := s.WriteMemory(base+uint64(off), code); err != nil {
			return fmt.Errorf("%w: code at +0x%x: %w", ErrMemoryAccess, uint64(off), err)
		}
	}
	if err := s.WriteRegister(s.Arch().SP, sc.StackTop()); err != nil {
		return fmt.Errorf("%w: stack pointer: %w", ErrSetup, err)
	}
	return nil
}

func (r *runner) controller(s *session.Session, sc *Scenario, res *Result) (*nested.Controller, error) {
	var seen bool
	ctl := nested.New(s,
		nested.WithSink(r.sink),
		nested.WithLogger(r.log),
		nested.WithMaxDepth(r.maxDepth),
		nested.OnTransition(func(t nested.Transition) {
			if seen || t.Depth != 1 {
				return
			}
			switch t.To {
			case nested.Checkpointed:
				res.CheckpointSP = r.readSP(s, "checkpoint")
			case nested.OuterRunning:
				res.ResumedSP = r.readSP(s, "resumed")
				seen = true
			}
		}),
	)
	for _, t := range sc.Nested {
		if err := ctl.Add(t.Target(uint64(sc.Base))); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}
	}
	return ctl, nil
}

func (r *runner) install(s *session.Session, sc *Scenario, ctl *nested.Controller, res *Result) error {
	base := uint64(sc.Base)
	if sc.Hooks.Block != nil {
		_, err := s.AddHook(engine.HookBlock, sc.Hooks.Block.Range(base), func(s *session.Session, addr uint64, size uint32, _ any) {
			res.Blocks++
			ev := trace.New(trace.Block, addr, s.Depth()-1)
			ev.Size = size
			r.sink.Emit(ev)
		}, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSetup, err)
		}
	}

	code := engine.AnyAddress()
	if sc.Hooks.Code != nil {
		code = sc.Hooks.Code.Range(base)
	}
	var dec disasm.Decoder
	if r.disasm {
		dec = disasm.For(s.Arch())
	}
	trigger := ctl.Hook()
	_, err := s.AddHook(engine.HookCode, code, func(s *session.Session, addr uint64, size uint32, data any) {
		if r.ctx.Err() != nil {
			r.stop(s)
			return
		}
		res.Insns++
		ev := trace.New(trace.Insn, addr, s.Depth()-1)
		ev.Size = size
		if b, err := s.ReadMemory(addr, uint64(size)); err == nil {
			ev.Bytes = b
			if dec != nil {
				ev.Disasm = dec(b, addr)
			}
		} else {
			r.log.Warn("instruction bytes unreadable", glog.Addr(addr), zap.Error(err))
		}
		r.sink.Emit(ev)
		r.log.Debug("insn", glog.Addr(addr), glog.Depth(ev.Depth), zap.String("bytes", hex.EncodeToString(ev.Bytes)))
		trigger(s, addr, size, data)
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	return nil
}

// watch stops the session's innermost run when ctx is cancelled; the code
// hook stops any enclosing run as control returns to it. The returned func
// ends the watch.
func (r *runner) watch(ctx context.Context, s *session.Session) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			r.stop(s)
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// readSP reads the stack pointer for the result. A failed read leaves zero
// in the field and is logged.
func (r *runner) readSP(s *session.Session, what string) uint64 {
	v, err := s.ReadRegister(s.Arch().SP)
	if err != nil {
		r.log.Warn("stack pointer unreadable", zap.String("at", what), zap.Error(err))
	}
	return v
}

func (r *runner) stop(s *session.Session) {
	if err := s.Stop(); err != nil {
		r.log.Warn("stop on cancel failed", zap.Error(err))
	}
}
