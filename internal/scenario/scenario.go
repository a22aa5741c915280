// Package scenario loads and runs nested-run scenarios: one memory region,
// code placed at fixed offsets, an outer run and the nested targets that
// fire from inside it.
package scenario

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zboralski/reentry/internal/arch"
	"github.com/zboralski/reentry/internal/engine"
	"github.com/zboralski/reentry/internal/nested"
	"github.com/zboralski/reentry/internal/session"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	// ErrSetup wraps failures that happen before the outer run starts.
	ErrSetup = errors.New("scenario setup")
	// ErrMemoryAccess wraps failures to place the marker or code.
	ErrMemoryAccess = errors.New("scenario memory access")
	// ErrInvalid reports a scenario document that cannot describe a run.
	ErrInvalid = errors.New("invalid scenario")
)

// Hex is a number that may be written as 0x-prefixed hex in YAML.
type Hex uint64

func (h *Hex) UnmarshalYAML(node *yaml.Node) error {
	v, err := strconv.ParseUint(strings.ReplaceAll(node.Value, "_", ""), 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	*h = Hex(v)
	return nil
}

func (h Hex) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("0x%x", uint64(h))}, nil
}

// Bytes is a byte string written as hex digits; whitespace is ignored.
type Bytes []byte

func (b *Bytes) UnmarshalYAML(node *yaml.Node) error {
	s := strings.Join(strings.Fields(node.Value), "")
	v, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*b = v
	return nil
}

func (b Bytes) MarshalYAML() (any, error) {
	return hex.EncodeToString(b), nil
}

// Span is a half-open offset range. Begin and End both empty, or the
// literal "any", means every address.
type Span struct {
	Any   bool
	Begin Hex
	End   Hex
}

func (s *Span) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Value != "any" {
			return fmt.Errorf("line %d: span must be \"any\" or {begin, end}", node.Line)
		}
		s.Any = true
		return nil
	}
	var raw struct {
		Begin Hex `yaml:"begin"`
		End   Hex `yaml:"end"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.Begin, s.End = raw.Begin, raw.End
	return nil
}

func (s Span) MarshalYAML() (any, error) {
	if s.Any {
		return "any", nil
	}
	return map[string]Hex{"begin": s.Begin, "end": s.End}, nil
}

// Range returns the absolute engine range for the span.
func (s Span) Range(base uint64) engine.Range {
	if s.Any {
		return engine.AnyAddress()
	}
	return session.Span(base+uint64(s.Begin), base+uint64(s.End))
}

// RunSpec is one bounded run, by offset.
type RunSpec struct {
	Start   Hex           `yaml:"start"`
	End     Hex           `yaml:"end"`
	Thumb   bool          `yaml:"thumb,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Count   uint64        `yaml:"count,omitempty"`
}

// Request returns the run request at base.
func (r RunSpec) Request(base uint64) session.RunRequest {
	return session.RunRequest{
		Start:   base + uint64(r.Start),
		End:     base + uint64(r.End),
		Thumb:   r.Thumb,
		Timeout: r.Timeout,
		Count:   r.Count,
	}
}

// Target is a nested run and the trigger offset that fires it.
type Target struct {
	Trigger Hex      `yaml:"trigger"`
	Diag    []string `yaml:"diag,omitempty"`
	Run     RunSpec  `yaml:"run"`
	Guard   string   `yaml:"guard,omitempty"`
}

// Target returns the controller target at base.
func (t Target) Target(base uint64) nested.Target {
	return nested.Target{
		Trigger: base + uint64(t.Trigger),
		Diag:    t.Diag,
		Run:     t.Run.Request(base),
		Guard:   t.Guard,
	}
}

// Hooks selects where block and instruction hooks are installed.
type Hooks struct {
	Block *Span `yaml:"block,omitempty"`
	Code  *Span `yaml:"code,omitempty"`
}

// Scenario is the document loaded from YAML.
type Scenario struct {
	Arch string `yaml:"arch"`
	Mode string `yaml:"mode,omitempty"`

	Base Hex    `yaml:"base"`
	Size Hex    `yaml:"size"`
	Prot string `yaml:"prot,omitempty"`

	Marker     Bytes  `yaml:"marker,omitempty"`
	Code       Bytes  `yaml:"code,omitempty"`
	Image      *Image `yaml:"image,omitempty"`
	Placements []Hex  `yaml:"placements"`
	// Stack is the initial stack pointer offset; zero means base+size.
	Stack Hex `yaml:"stack,omitempty"`

	Hooks  Hooks    `yaml:"hooks"`
	Outer  RunSpec  `yaml:"outer"`
	Nested []Target `yaml:"nested,omitempty"`
}

// Default returns the built-in scenario.
func Default() *Scenario {
	sc, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("default scenario: %v", err))
	}
	return sc
}

// DefaultYAML returns the source of the built-in scenario.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Image != nil {
		sc.Image.resolve(filepath.Dir(path))
	}
	return sc, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the offsets against the region. Page alignment is left to
// the session so the same error surfaces from every entry point.
func (sc *Scenario) Validate() error {
	if sc.Arch == "" {
		return fmt.Errorf("%w: arch is required", ErrInvalid)
	}
	if sc.Size == 0 {
		return fmt.Errorf("%w: size is required", ErrInvalid)
	}
	switch {
	case len(sc.Code) == 0 && sc.Image == nil:
		return fmt.Errorf("%w: code or image is required", ErrInvalid)
	case len(sc.Code) != 0 && sc.Image != nil:
		return fmt.Errorf("%w: code and image are exclusive", ErrInvalid)
	case sc.Image != nil && (sc.Image.Path == "" || sc.Image.Symbol == ""):
		return fmt.Errorf("%w: image needs path and symbol", ErrInvalid)
	}
	if _, err := ParseProt(sc.Prot); err != nil {
		return err
	}
	size := uint64(sc.Size)
	if uint64(len(sc.Marker)) > size {
		return fmt.Errorf("%w: marker larger than region", ErrInvalid)
	}
	for _, off := range sc.Placements {
		if uint64(off)+uint64(len(sc.Code)) > size {
			return fmt.Errorf("%w: code at 0x%x runs past region", ErrInvalid, uint64(off))
		}
	}
	if uint64(sc.Stack) > size {
		return fmt.Errorf("%w: stack 0x%x outside region", ErrInvalid, uint64(sc.Stack))
	}
	seen := make(map[Hex]bool, len(sc.Nested))
	for _, t := range sc.Nested {
		if seen[t.Trigger] {
			return fmt.Errorf("%w: duplicate trigger 0x%x", ErrInvalid, uint64(t.Trigger))
		}
		seen[t.Trigger] = true
	}
	return nil
}

// LoadCode returns the code to place, reading it from the image when the
// scenario names one.
func (sc *Scenario) LoadCode(a *arch.Arch) ([]byte, error) {
	if sc.Image == nil {
		return sc.Code, nil
	}
	return sc.Image.Load(a)
}

// StackTop returns the absolute initial stack pointer.
func (sc *Scenario) StackTop() uint64 {
	if sc.Stack != 0 {
		return uint64(sc.Base) + uint64(sc.Stack)
	}
	return uint64(sc.Base) + uint64(sc.Size)
}

// Marshal encodes the scenario as YAML.
func (sc *Scenario) Marshal() ([]byte, error) {
	return yaml.Marshal(sc)
}

// ParseProt parses "rwx"-style protections. Empty means rwx.
func ParseProt(s string) (engine.Prot, error) {
	if s == "" {
		return engine.ProtAll, nil
	}
	var p engine.Prot
	for _, c := range strings.ToLower(s) {
		switch c {
		case 'r':
			p |= engine.ProtRead
		case 'w':
			p |= engine.ProtWrite
		case 'x':
			p |= engine.ProtExec
		case '-':
		default:
			return 0, fmt.Errorf("%w: protection %q", ErrInvalid, s)
		}
	}
	return p, nil
}
