package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func statusColor(status string) lipgloss.Color {
	switch status {
	case "COMPLETED", "SIGNED", "OPENED":
		return lipgloss.Color("2")
	case "REJECTED":
		return lipgloss.Color("1")
	case "PENDING", "NOT_SIGNED", "NOT_OPENED", "SENT":
		return lipgloss.Color("3")
	default:
		return lipgloss.Color("7")
	}
}

// renderTable writes rows as a bordered table. statusCols lists the columns whose cells are
// coloured by status when w is a terminal.
func renderTable(w io.Writer, headers []string, rows [][]string, statusCols ...int) error {
	re := lipgloss.NewRenderer(w)
	headerStyle := re.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := re.NewStyle().Padding(0, 1)

	isStatus := make(map[int]bool, len(statusCols))
	for _, c := range statusCols {
		isStatus[c] = true
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if isStatus[col] && row >= 0 && row < len(rows) && col < len(rows[row]) {
				return cellStyle.Foreground(statusColor(rows[row][col]))
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// renderHeading writes a bold label followed by value.
func renderHeading(w io.Writer, label, value string) {
	re := lipgloss.NewRenderer(w)
	fmt.Fprintf(w, "%s %s\n", re.NewStyle().Bold(true).Render(label+":"), value)
}
