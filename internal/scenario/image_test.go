package scenario

import (
	"debug/elf"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/reentry/internal/arch"
)

// hostImage returns the running test binary and its architecture.
func hostImage(t *testing.T) (string, *arch.Arch) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("ELF images only on linux")
	}
	var a *arch.Arch
	var err error
	switch runtime.GOARCH {
	case "amd64":
		a, err = arch.Lookup(arch.X86, arch.Mode64)
	case "arm64":
		a, err = arch.Lookup(arch.ARM64, arch.ModeARM)
	default:
		t.Skipf("no arch for %s", runtime.GOARCH)
	}
	require.NoError(t, err)
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe, a
}

func TestImageLoad(t *testing.T) {
	exe, a := hostImage(t)

	f, err := elf.Open(exe)
	require.NoError(t, err)
	syms, err := f.Symbols()
	f.Close()
	if err != nil {
		t.Skipf("stripped binary: %v", err)
	}
	var want elf.Symbol
	for _, s := range syms {
		if s.Name == "runtime.main" {
			want = s
		}
	}
	if want.Size == 0 {
		t.Skip("runtime.main not in symbol table")
	}

	img := &Image{Path: exe, Symbol: "runtime.main"}
	code, err := img.Load(a)
	require.NoError(t, err)
	assert.Len(t, code, int(want.Size))

	img.Size = 16
	code, err = img.Load(a)
	require.NoError(t, err)
	assert.Len(t, code, 16)
}

func TestImageErrors(t *testing.T) {
	exe, a := hostImage(t)

	_, err := (&Image{Path: exe, Symbol: "no.such.symbol"}).Load(a)
	assert.ErrorIs(t, err, ErrSymbol)

	other, err := arch.Lookup(arch.ARM, arch.ModeThumb)
	require.NoError(t, err)
	if other.ID != a.ID {
		_, err = (&Image{Path: exe, Symbol: "runtime.main"}).Load(other)
		assert.ErrorIs(t, err, ErrSymbol)
	}

	_, err = (&Image{Path: filepath.Join(t.TempDir(), "missing"), Symbol: "f"}).Load(a)
	assert.Error(t, err)
}

func TestImageResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	doc := "arch: arm\nsize: 0x1000\nimage: {path: lib/a.so, symbol: f}\nplacements: [0]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, sc.Image)
	assert.Equal(t, filepath.Join(dir, "lib", "a.so"), sc.Image.Path)

	abs := &Image{Path: "/opt/a.so"}
	abs.resolve(dir)
	assert.Equal(t, "/opt/a.so", abs.Path)
}
