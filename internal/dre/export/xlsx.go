package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/finboard/finboard/internal/dre"
)

const sheetName = "DRE"

// WriteXLSX writes the statement as a single-sheet workbook.
func WriteXLSX(w io.Writer, report dre.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	header := Header(report.Window)
	for i, title := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return err
	}

	for r, row := range Flatten(report) {
		rowNo := r + 2
		nameCell, _ := excelize.CoordinatesToCellName(1, rowNo)
		if err := f.SetCellValue(sheetName, nameCell, row.Name); err != nil {
			return err
		}
		if row.Depth > 0 {
			indent, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Indent: row.Depth}})
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(sheetName, nameCell, nameCell, indent); err != nil {
				return err
			}
		}
		values := append(row.Values, row.Trailing)
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+2, rowNo)
			if err := f.SetCellValue(sheetName, cell, v.InexactFloat64()); err != nil {
				return err
			}
			if err := f.SetCellStyle(sheetName, cell, cell, money); err != nil {
				return err
			}
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 40); err != nil {
		return err
	}
	return f.Write(w)
}
