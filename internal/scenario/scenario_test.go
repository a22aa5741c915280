package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zboralski/reentry/internal/engine"
)

func TestDefault(t *testing.T) {
	sc := Default()
	assert.Equal(t, "arm", sc.Arch)
	assert.Equal(t, "thumb", sc.Mode)
	assert.Equal(t, Hex(0x1000000), sc.Base)
	assert.Equal(t, Hex(0x200000), sc.Size)
	assert.Equal(t, Bytes{0, 0, 0, 0}, sc.Marker)
	assert.Equal(t, Bytes{0x10, 0xb5, 0x4f, 0xf0, 0x00, 0x04, 0x00, 0x46, 0x10, 0xbd}, sc.Code)
	assert.Equal(t, []Hex{4, 16}, sc.Placements)
	assert.Equal(t, uint64(0x1200000), sc.StackTop())

	require.NotNil(t, sc.Hooks.Block)
	assert.True(t, sc.Hooks.Block.Any)
	require.NotNil(t, sc.Hooks.Code)
	assert.Equal(t, engine.Range{Begin: 0x1000004, End: 0x1001004}, sc.Hooks.Code.Range(uint64(sc.Base)))

	req := sc.Outer.Request(uint64(sc.Base))
	assert.Equal(t, uint64(0x1000004), req.Start)
	assert.Equal(t, uint64(0x100000c), req.End)
	assert.True(t, req.Thumb)

	require.Len(t, sc.Nested, 1)
	tgt := sc.Nested[0].Target(uint64(sc.Base))
	assert.Equal(t, uint64(0x1000006), tgt.Trigger)
	assert.Equal(t, []string{"r4"}, tgt.Diag)
	assert.Equal(t, uint64(0x1000010), tgt.Run.Start)
	assert.Equal(t, uint64(0x1000018), tgt.Run.End)
}

func TestRunSpecRequest(t *testing.T) {
	spec := RunSpec{Start: 0x10, End: 0x18, Thumb: true, Timeout: time.Second, Count: 7}
	req := spec.Request(0x1000000)
	assert.Equal(t, uint64(0x1000010), req.Start)
	assert.Equal(t, uint64(0x1000018), req.End)
	assert.True(t, req.Thumb)
	assert.Equal(t, time.Second, req.Timeout)
	assert.Equal(t, uint64(7), req.Count)

	var sc Scenario
	require.NoError(t, yaml.Unmarshal([]byte("outer: {start: 0x4, end: 0xc, thumb: true}\n"), &sc))
	assert.Equal(t, RunSpec{Start: 4, End: 0xc, Thumb: true}, sc.Outer)
}

func TestParseNumbers(t *testing.T) {
	var v struct {
		A Hex `yaml:"a"`
		B Hex `yaml:"b"`
		C Hex `yaml:"c"`
		D Hex `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 0x10\nb: \"0x20\"\nc: 48\nd: 0x1_000\n"), &v))
	assert.Equal(t, Hex(0x10), v.A)
	assert.Equal(t, Hex(0x20), v.B)
	assert.Equal(t, Hex(48), v.C)
	assert.Equal(t, Hex(0x1000), v.D)

	assert.Error(t, yaml.Unmarshal([]byte("a: zz\n"), &v))
}

func TestRoundTrip(t *testing.T) {
	sc := Default()
	sc.Outer.Timeout = time.Second
	out, err := sc.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "base: 0x1000000")
	assert.Contains(t, string(out), "block: any")

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, sc, back)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no arch", "size: 0x1000\ncode: \"00\"\n"},
		{"no size", "arch: arm\ncode: \"00\"\n"},
		{"no code", "arch: arm\nsize: 0x1000\n"},
		{"bad prot", "arch: arm\nsize: 0x1000\ncode: \"00\"\nprot: rwz\n"},
		{"code past end", "arch: arm\nsize: 0x1000\ncode: \"0000\"\nplacements: [0xfff]\n"},
		{"stack outside", "arch: arm\nsize: 0x1000\ncode: \"00\"\nstack: 0x2000\n"},
		{"bad hex", "arch: arm\nsize: 0x1000\ncode: \"0g\"\n"},
		{"bad span", "arch: arm\nsize: 0x1000\ncode: \"00\"\nhooks: {block: all}\n"},
		{"code and image", "arch: arm\nsize: 0x1000\ncode: \"00\"\nimage: {path: a.so, symbol: f}\n"},
		{"image without symbol", "arch: arm\nsize: 0x1000\nimage: {path: a.so}\n"},
		{"duplicate trigger", "arch: arm\nsize: 0x1000\ncode: \"00\"\nnested: [{trigger: 4}, {trigger: 0x4}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0o644))
	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), sc)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseProt(t *testing.T) {
	p, err := ParseProt("r-x")
	require.NoError(t, err)
	assert.Equal(t, engine.ProtRead|engine.ProtExec, p)

	p, err = ParseProt("")
	require.NoError(t, err)
	assert.Equal(t, engine.ProtAll, p)
}

func TestScript(t *testing.T) {
	sc := Default()
	prog, err := Script(sc)
	require.NoError(t, err)
	assert.Len(t, prog, 8)
	for _, off := range []uint64{4, 6, 10, 12, 16, 18, 22, 24} {
		assert.Contains(t, prog, uint64(sc.Base)+off)
	}
	assert.Equal(t, uint32(4), prog[uint64(sc.Base)+6].Size)
	assert.True(t, prog[uint64(sc.Base)+12].Branch)

	sc.Code = Bytes{0xde, 0xad}
	_, err = Script(sc)
	assert.ErrorIs(t, err, ErrUnscripted)

	sc = Default()
	sc.Mode = "arm"
	_, err = Script(sc)
	assert.ErrorIs(t, err, ErrUnscripted)
}
