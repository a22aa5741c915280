package session

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zboralski/reentry/internal/engine"
)

// SnapshotStats counts snapshot allocations and releases.
type SnapshotStats struct {
	Allocated int
	Released  int
}

// Outstanding returns allocations not yet released.
func (st SnapshotStats) Outstanding() int {
	return st.Allocated - st.Released
}

// SnapshotStats returns the session's snapshot counters.
func (s *Session) SnapshotStats() SnapshotStats {
	return s.stats
}

// Snapshot is a register-state capture owned by the caller that took it.
// Memory is never part of a snapshot.
type Snapshot struct {
	s        *Session
	ctx      engine.Context
	pc       uint64
	released bool
}

// Checkpoint allocates a snapshot and captures the current register state
// into it. The caller owns the snapshot and must Release it.
func (s *Session) Checkpoint() (*Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ctx, err := s.eng.ContextAlloc()
	if err != nil {
		return nil, fmt.Errorf("allocate snapshot: %w", err)
	}
	s.stats.Allocated++

	snap := &Snapshot{s: s, ctx: ctx}
	if err := ctx.Save(); err != nil {
		return nil, multierr.Append(fmt.Errorf("capture snapshot: %w", err), snap.Release())
	}
	pc, err := s.eng.RegRead(s.arch.PC)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("capture snapshot pc: %w", err), snap.Release())
	}
	snap.pc = pc
	return snap, nil
}

// PC returns the program counter at capture time.
func (snap *Snapshot) PC() uint64 {
	return snap.pc
}

// Released reports whether Release has been called.
func (snap *Snapshot) Released() bool {
	return snap.released
}

// Restore writes the captured register state back into the session.
func (snap *Snapshot) Restore() error {
	if snap.released {
		return ErrSnapshotReleased
	}
	if err := snap.s.check(); err != nil {
		return err
	}
	if err := snap.ctx.Restore(); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}

// Restore writes snap back into s. snap must have been taken from s.
func (s *Session) Restore(snap *Snapshot) error {
	if snap.s != s {
		return ErrForeignSnapshot
	}
	return snap.Restore()
}

// Release frees the snapshot. Only the first call has any effect.
func (snap *Snapshot) Release() error {
	if snap.released {
		return ErrSnapshotReleased
	}
	snap.released = true
	snap.s.stats.Released++
	if err := snap.ctx.Close(); err != nil {
		return fmt.Errorf("release snapshot: %w", err)
	}
	return nil
}

// WithSnapshot checkpoints the session, runs fn, then restores and releases
// the snapshot on every exit path, including a panic in fn.
func (s *Session) WithSnapshot(fn func(snap *Snapshot) error) (err error) {
	snap, err := s.Checkpoint()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if cerr := multierr.Combine(snap.Restore(), snap.Release()); cerr != nil {
				s.log.Error("snapshot cleanup after panic", zap.Error(cerr))
			}
			panic(r)
		}
		err = multierr.Combine(err, snap.Restore(), snap.Release())
	}()
	return fn(snap)
}
