package trace

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/reentry/internal/ui/colorize"
)

func TestTags(t *testing.T) {
	e := New(NestBegin, 0x10, 1).AddTag(Nested).AddTag(Checkpoint).AddTag(Nested)
	assert.Equal(t, Tags{Nested, Checkpoint}, e.Tags)
	assert.True(t, e.Tags.Has(Checkpoint))
	assert.False(t, e.Tags.Has(Restore))
	assert.Equal(t, []string{"#nested", "#checkpoint"}, e.Tags.Strings())
	assert.False(t, e.Timestamp.IsZero())
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	var seen []Kind
	sink := Multi{rec, SinkFunc(func(e *Event) { seen = append(seen, e.Kind) }), Discard}

	sink.Emit(New(Block, 0x100, 0))
	sink.Emit(New(Insn, 0x100, 0))
	sink.Emit(New(Insn, 0x102, 0))

	assert.Len(t, rec.Events(), 3)
	assert.Equal(t, []uint64{0x100, 0x102}, rec.Addrs(Insn))
	assert.Len(t, rec.Filter(Block), 1)
	assert.Empty(t, rec.Filter(Final))
	assert.Equal(t, []Kind{Block, Insn, Insn}, seen)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "nest-begin", NestBegin.String())
	assert.Equal(t, "run-error", RunError.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestPrinter(t *testing.T) {
	colorize.SetEnabled(false)
	t.Cleanup(colorize.Reset)

	var lines []string
	p := &Printer{Line: func(s string) { lines = append(lines, s) }, Bits: 32}

	insn := New(Insn, 0x1000004, 0)
	insn.Bytes, insn.Disasm = []byte{0x10, 0xb5}, ".inst.n 0xb510"
	p.Emit(insn)

	nestedInsn := New(Insn, 0x1000010, 1)
	nestedInsn.Bytes, nestedInsn.Size = []byte{0x10, 0xb5}, 2
	p.Emit(nestedInsn)

	diag := New(Diag, 0x1000006, 1)
	diag.Reg, diag.Value = "r4", 0
	p.Emit(diag)

	begin := New(NestBegin, 0x1000006, 1).AddTag(Nested)
	begin.Start, begin.End = 0x1000011, 0x1000018
	p.Emit(begin)

	end := New(NestEnd, 0x1000006, 1)
	end.Err = errors.New("fetch failed")
	p.Emit(end)

	p.Emit(New(State, 0x1000006, 1))

	final := New(Final, 0x100000c, 0)
	final.Regs = []RegValue{{"r4", 0}, {"sp", 0x11ffff8}}
	p.Emit(final)

	require.Greater(t, len(lines), 5)
	assert.Equal(t, "01000004  10b5        .inst.n 0xb510", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "│ 01000010"), lines[1])
	assert.Contains(t, lines[1], "size=2")
	assert.Equal(t, "01000006  r4 = 0 (0x0)", lines[2])
	assert.Equal(t, "┌ nested 01000011..01000018 from 01000006  #nested", lines[3])
	assert.Equal(t, "└ resume 01000006 fetch failed", lines[4])

	table := strings.Join(lines[5:], "\n")
	assert.NotContains(t, table, "state")
	assert.Contains(t, table, "0x011ffff8")
}
