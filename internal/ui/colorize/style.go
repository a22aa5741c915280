// Package colorize provides syntax highlighting for trace output.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Theme colors shared by the chroma style and the lipgloss table.
const (
	ColorAddress  = "#FFC800"
	ColorMnemonic = "#FFFFFF"
	ColorRegister = "#87CEEB"
	ColorNumber   = "#FF80C0"
	ColorHeader   = "#569CD6"
	ColorBorder   = "#505050"
	ColorDetail   = "#B4B4B4"
)

// DisasmDark is the disassembly style.
var DisasmDark = styles.Register(chroma.MustNewStyle("disasm-dark", chroma.StyleEntries{
	chroma.Text:           ColorMnemonic,
	chroma.Background:     "bg:#000000",
	chroma.Comment:        "#FF8000",
	chroma.CommentPreproc: "#FF8000",

	chroma.Keyword:       ColorMnemonic,
	chroma.KeywordPseudo: ColorMnemonic,
	chroma.Name:          ColorRegister,
	chroma.NameBuiltin:   ColorRegister,
	chroma.NameVariable:  ColorRegister,

	chroma.LiteralNumber:        ColorNumber,
	chroma.LiteralNumberHex:     ColorNumber,
	chroma.LiteralNumberBin:     ColorNumber,
	chroma.LiteralNumberOct:     ColorNumber,
	chroma.LiteralNumberInteger: ColorNumber,

	chroma.NameLabel:    ColorAddress,
	chroma.NameFunction: ColorMnemonic,
	chroma.Operator:     ColorMnemonic,
	chroma.Punctuation:  ColorMnemonic,
	chroma.String:       "#00FF00",
}))

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHeader)).Bold(true).Padding(0, 1)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRegister)).Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorNumber)).Padding(0, 1)
	plainStyle  = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder))
)
