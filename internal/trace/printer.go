package trace

import (
	"fmt"
	"strings"

	"github.com/zboralski/reentry/internal/ui/colorize"
)

// Printer renders events as trace lines.
type Printer struct {
	// Line receives each rendered line without a trailing newline.
	Line func(string)
	// States includes controller state transitions.
	States bool
	// Bits is the register width used by the final table.
	Bits uint
}

func (p *Printer) Emit(e *Event) {
	switch e.Kind {
	case State:
		if p.States {
			p.write(e.Depth-1, colorize.Detail(fmt.Sprintf("   state %s -> %s", e.From, e.To)))
		}
	case Final:
		rows := make([]colorize.Row, len(e.Regs))
		for i, r := range e.Regs {
			rows[i] = colorize.Row{Name: r.Name, Value: r.Value}
		}
		for _, l := range strings.Split(colorize.RegisterTable(rows, p.Bits), "\n") {
			p.Line(l)
		}
	default:
		p.write(indent(e), Format(e))
	}
}

func (p *Printer) write(depth int, line string) {
	if depth < 0 {
		depth = 0
	}
	p.Line(strings.Repeat(colorize.Border("│ "), depth) + line)
}

func indent(e *Event) int {
	switch e.Kind {
	case Block, Insn, RunError:
		return e.Depth
	}
	return e.Depth - 1
}

// Format renders e as a single line without nesting indentation.
func Format(e *Event) string {
	var b strings.Builder
	b.Grow(128)

	switch e.Kind {
	case Block:
		b.WriteString(colorize.Header(">>> block "))
		b.WriteString(colorize.Address(e.Addr))
		b.WriteString(colorize.Detail(fmt.Sprintf(" size=%d", e.Size)))

	case Insn:
		b.WriteString(colorize.Address(e.Addr))
		b.WriteString("  ")
		hexBytes := fmt.Sprintf("%-10x", e.Bytes)
		b.WriteString(colorize.HexBytes(hexBytes))
		b.WriteString("  ")
		if e.Disasm != "" {
			b.WriteString(colorize.Instruction(e.Disasm))
		} else {
			b.WriteString(colorize.Detail(fmt.Sprintf("size=%d", e.Size)))
		}

	case Diag:
		b.WriteString(colorize.Address(e.Addr))
		b.WriteString(colorize.Detail(fmt.Sprintf("  %s = %d (0x%x)", e.Reg, e.Value, e.Value)))

	case NestBegin:
		b.WriteString(colorize.Header("┌ nested "))
		b.WriteString(colorize.Address(e.Start))
		b.WriteString(colorize.Detail(".."))
		b.WriteString(colorize.Address(e.End))
		b.WriteString(colorize.Detail(" from "))
		b.WriteString(colorize.Address(e.Addr))

	case NestEnd:
		b.WriteString(colorize.Header("└ resume "))
		b.WriteString(colorize.Address(e.Addr))
		if e.Err != nil {
			b.WriteString(" ")
			b.WriteString(colorize.Error(e.Err.Error()))
		}

	case Skip:
		b.WriteString(colorize.Detail("  skip "))
		b.WriteString(colorize.Address(e.Addr))
		if e.Err != nil {
			b.WriteString(" ")
			b.WriteString(colorize.Error(e.Err.Error()))
		}

	case RunError:
		b.WriteString(colorize.Error("run failed: "))
		if e.Err != nil {
			b.WriteString(colorize.Error(e.Err.Error()))
		}

	default:
		b.WriteString(e.Kind.String())
	}

	if len(e.Tags) > 0 {
		b.WriteString("  ")
		for i, t := range e.Tags.Strings() {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(colorize.Tag(t))
		}
	}
	return b.String()
}
