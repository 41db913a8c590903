package export

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/finboard/finboard/internal/dre"
)

// WriteCSV serialises the statement with one line per account. Nested
// accounts are indented with two spaces per level.
func WriteCSV(w io.Writer, report dre.Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(Header(report.Window)); err != nil {
		return err
	}
	for _, row := range Flatten(report) {
		record := make([]string, 0, len(row.Values)+2)
		record = append(record, strings.Repeat("  ", row.Depth)+row.Name)
		for _, v := range row.Values {
			record = append(record, v.StringFixed(2))
		}
		record = append(record, row.Trailing.StringFixed(2))
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
