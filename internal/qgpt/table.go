package qgpt

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	okStyle     = cellStyle.Foreground(lipgloss.Color("#A6E3A1"))
	failStyle   = cellStyle.Foreground(lipgloss.Color("#F38BA8"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#45475A"))
)

// statusColumn 状态列下标，-1 表示不着色。
func renderTable(headers []string, rows [][]string, statusColumn int) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != statusColumn || row < 0 || row >= len(rows) {
				return cellStyle
			}
			switch rows[row][col] {
			case statusOK, statusBuilt, statusSkip:
				return okStyle
			case statusFail, statusMissing:
				return failStyle
			}
			return cellStyle
		})
	return t.String()
}

const (
	statusOK      = "OK"
	statusSkip    = "SKIP"
	statusFail    = "FAIL"
	statusBuilt   = "built"
	statusMissing = "missing"
)
