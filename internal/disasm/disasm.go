// Package disasm annotates traced instructions with their text form.
package disasm

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/zboralski/reentry/internal/arch"
)

// Decoder turns instruction bytes at pc into text. It never fails; bytes it
// cannot decode are rendered as a data directive.
type Decoder func(code []byte, pc uint64) string

// For returns the decoder for a.
func For(a *arch.Arch) Decoder {
	switch a.ID {
	case arch.ARM:
		if a.Mode == arch.ModeThumb {
			return thumb
		}
		return arm
	case arch.ARM64:
		return arm64
	case arch.X86:
		bits := int(a.Bits)
		return func(code []byte, pc uint64) string {
			return x86(code, pc, bits)
		}
	}
	return raw
}

// Decode is For(a)(code, pc) for one-off use.
func Decode(a *arch.Arch, code []byte, pc uint64) string {
	return For(a)(code, pc)
}

func arm(code []byte, _ uint64) string {
	if len(code) < 4 {
		return raw(code, 0)
	}
	inst, err := armasm.Decode(code, armasm.ModeARM)
	if err != nil {
		return word(code)
	}
	return inst.String()
}

// thumb renders halfword or wide encodings; armasm only decodes the ARM
// instruction set.
func thumb(code []byte, _ uint64) string {
	switch {
	case len(code) >= 4 && wide(code):
		hi := binary.LittleEndian.Uint16(code)
		lo := binary.LittleEndian.Uint16(code[2:])
		return fmt.Sprintf(".inst.w 0x%04x%04x", hi, lo)
	case len(code) >= 2:
		return fmt.Sprintf(".inst.n 0x%04x", binary.LittleEndian.Uint16(code))
	}
	return raw(code, 0)
}

// wide reports whether the first halfword starts a 32-bit Thumb-2
// encoding (top five bits 0b11101, 0b11110 or 0b11111).
func wide(code []byte) bool {
	top := binary.LittleEndian.Uint16(code) >> 11
	return top == 0x1d || top == 0x1e || top == 0x1f
}

func arm64(code []byte, _ uint64) string {
	if len(code) < 4 {
		return raw(code, 0)
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return word(code)
	}
	return inst.String()
}

func x86(code []byte, pc uint64, bits int) string {
	inst, err := x86asm.Decode(code, bits)
	if err != nil {
		return raw(code, pc)
	}
	return x86asm.IntelSyntax(inst, pc, nil)
}

func word(code []byte) string {
	return fmt.Sprintf(".word 0x%08x", binary.LittleEndian.Uint32(code))
}

func raw(code []byte, _ uint64) string {
	if len(code) == 0 {
		return "???"
	}
	return fmt.Sprintf(".byte 0x%02x", code[0])
}
