package session

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
	glog "github.com/zboralski/reentry/internal/log"
)

// RunRequest is one bounded start/stop cycle.
type RunRequest struct {
	Start uint64
	End   uint64
	// Thumb sets the low bit of the start address to select the alternate
	// encoding on architectures that support it.
	Thumb bool
	// Timeout and Count bound the run; reaching either is not an error.
	Timeout time.Duration
	Count   uint64
}

// Begin returns the start address handed to the engine.
func (r RunRequest) Begin(a *arch.Arch) uint64 {
	if r.Thumb && a.ModeBit {
		return r.Start | 1
	}
	return r.Start
}

func (r RunRequest) String() string {
	s := fmt.Sprintf("%s..%s", glog.Hex(r.Start), glog.Hex(r.End))
	if r.Thumb {
		s += " thumb"
	}
	return s
}

type runFrame struct {
	req     RunRequest
	hookErr error
}

// Depth returns how many runs are active; 0 outside any run, 2 inside a
// nested run issued from a hook.
func (s *Session) Depth() int {
	return len(s.runs)
}

// Run executes req on the session. It may be called from a hook while an
// outer run is active; the nested run shares memory, registers and hooks.
func (s *Session) Run(req RunRequest) error {
	if err := s.check(); err != nil {
		return err
	}
	if req.Thumb && !s.arch.ModeBit {
		return fmt.Errorf("%w: %s has no alternate encoding", ErrInvalidRequest, s.arch)
	}

	f := &runFrame{req: req}
	s.runs = append(s.runs, f)
	depth := len(s.runs)
	defer func() {
		s.runs = s.runs[:len(s.runs)-1]
	}()

	begin := req.Begin(s.arch)
	s.log.RunStart(depth, begin, req.End)
	err := s.eng.Start(begin, req.End, engine.Options{Timeout: req.Timeout, Count: req.Count})
	err = multierr.Append(err, f.hookErr)
	s.log.RunEnd(depth, begin, req.End, err)
	if err != nil {
		return fmt.Errorf("run %s: %w", req, err)
	}
	return nil
}

// Stop asks the engine to end the innermost active run.
func (s *Session) Stop() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.eng.Stop()
}
