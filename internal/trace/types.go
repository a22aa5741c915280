// Package trace provides types for trace event collection and rendering.
package trace

import (
	"sync"
	"time"
)

// Kind identifies what an event records.
type Kind int

const (
	Block Kind = iota + 1
	Insn
	Diag
	NestBegin
	NestEnd
	State
	Skip
	RunError
	Final
)

func (k Kind) String() string {
	switch k {
	case Block:
		return "block"
	case Insn:
		return "insn"
	case Diag:
		return "diag"
	case NestBegin:
		return "nest-begin"
	case NestEnd:
		return "nest-end"
	case State:
		return "state"
	case Skip:
		return "skip"
	case RunError:
		return "run-error"
	case Final:
		return "final"
	}
	return "unknown"
}

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events.
const (
	Nested     Tag = "nested"
	Checkpoint Tag = "checkpoint"
	Restore    Tag = "restore"
	Trigger    Tag = "trigger"
	Failure    Tag = "error"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Event is one observation made during a scenario.
//
// Depth is the nesting level. Block and Insn events carry the level of the
// run executing them, 0 for the outer run. Nested-run events carry the level
// of the nested run they concern, starting at 1.
type Event struct {
	Kind  Kind
	Addr  uint64
	Size  uint32
	Depth int

	// Insn
	Bytes  []byte
	Disasm string

	// Diag and Final
	Reg   string
	Value uint64
	Regs  []RegValue

	// State
	From, To string

	// NestBegin / NestEnd
	Start, End uint64

	Err       error
	Tags      Tags
	Timestamp time.Time
}

// RegValue is a named register value carried by Final events.
type RegValue struct {
	Name  string
	Value uint64
}

// New creates an event stamped with the current time.
func New(kind Kind, addr uint64, depth int) *Event {
	return &Event{Kind: kind, Addr: addr, Depth: depth, Timestamp: time.Now()}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) *Event {
	e.Tags.Add(tag)
	return e
}

// Sink receives events synchronously, in emission order.
type Sink interface {
	Emit(e *Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e *Event)

func (f SinkFunc) Emit(e *Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(*Event) {})

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Emit(e *Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *Recorder) Emit(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event{}, r.events...)
}

// Filter returns recorded events of kind, in order.
func (r *Recorder) Filter(kind Kind) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Addrs returns the addresses of recorded events of kind, in order.
func (r *Recorder) Addrs(kind Kind) []uint64 {
	var out []uint64
	for _, e := range r.Filter(kind) {
		out = append(out, e.Addr)
	}
	return out
}
