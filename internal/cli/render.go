package cli

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
)

// renderTable выводит таблицу. Заголовки печатаются как есть.
func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidation("id_product", "ожидается положительное целое число")
	}
	return id, nil
}
