package colorize

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Row is one line of a register table.
type Row struct {
	Name  string
	Value uint64
}

// RegisterTable renders rows as a bordered name/hex/decimal table. Width
// selects the hex digit count.
func RegisterTable(rows []Row, bits uint) string {
	digits := int(bits / 4)
	if digits == 0 {
		digits = 8
	}
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{
			r.Name,
			fmt.Sprintf("0x%0*x", digits, r.Value),
			fmt.Sprintf("%d", r.Value),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("reg", "hex", "dec").
		Rows(cells...)

	if IsDisabled() {
		t = t.StyleFunc(func(int, int) lipgloss.Style { return plainStyle })
	} else {
		t = t.BorderStyle(borderStyle).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return headerStyle
				case col == 0:
					return nameStyle
				default:
					return valueStyle
				}
			})
	}
	return t.String()
}
