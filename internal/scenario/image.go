package scenario

import (
	"debug/elf"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zboralski/reentry/internal/arch"
)

// ErrSymbol reports an image symbol that cannot be used as code.
var ErrSymbol = errors.New("image symbol")

// Image takes the scenario code from a function in an ELF file instead of
// inline hex.
type Image struct {
	Path   string `yaml:"path"`
	Symbol string `yaml:"symbol"`
	// Size overrides the symbol size from the symbol table.
	Size Hex `yaml:"size,omitempty"`
}

var machines = map[elf.Machine]arch.ID{
	elf.EM_ARM:     arch.ARM,
	elf.EM_AARCH64: arch.ARM64,
	elf.EM_386:     arch.X86,
	elf.EM_X86_64:  arch.X86,
}

// Load reads the symbol's bytes. The file's machine must match a.
func (img *Image) Load(a *arch.Arch) ([]byte, error) {
	f, err := elf.Open(img.Path)
	if err != nil {
		return nil, fmt.Errorf("open ELF: %w", err)
	}
	defer f.Close()

	if id, ok := machines[f.Machine]; !ok || id != a.ID {
		return nil, fmt.Errorf("%w: %s is %v, scenario is %s", ErrSymbol, img.Path, f.Machine, a)
	}

	sym, err := lookup(f, img.Symbol)
	if err != nil {
		return nil, err
	}

	addr := sym.Value
	if a.ModeBit {
		// Thumb functions carry the mode in bit 0.
		addr &^= 1
	}
	size := sym.Size
	if img.Size != 0 {
		size = uint64(img.Size)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: %s has no size", ErrSymbol, img.Symbol)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if addr < prog.Vaddr || addr+size > prog.Vaddr+prog.Filesz {
			continue
		}
		buf := make([]byte, size)
		if _, err := prog.ReadAt(buf, int64(addr-prog.Vaddr)); err != nil {
			return nil, fmt.Errorf("read %s at 0x%x: %w", img.Symbol, addr, err)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %s at 0x%x is not in a loaded segment", ErrSymbol, img.Symbol, addr)
}

// lookup searches .symtab then .dynsym. Version suffixes (@@VERSION or
// @VERSION) are ignored when comparing names.
func lookup(f *elf.File, name string) (elf.Symbol, error) {
	for _, load := range []func() ([]elf.Symbol, error){f.Symbols, f.DynamicSymbols} {
		syms, err := load()
		if err != nil {
			continue
		}
		for _, sym := range syms {
			if sym.Value == 0 || sym.Name == "" {
				continue
			}
			n := sym.Name
			if i := strings.Index(n, "@"); i != -1 {
				n = n[:i]
			}
			if n == name {
				return sym, nil
			}
		}
	}
	return elf.Symbol{}, fmt.Errorf("%w: %s not found", ErrSymbol, name)
}

// resolve makes a relative image path relative to dir.
func (img *Image) resolve(dir string) {
	if img.Path != "" && !filepath.IsAbs(img.Path) {
		img.Path = filepath.Join(dir, img.Path)
	}
}
