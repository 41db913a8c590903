// Package export renders computed statements as CSV, XLSX and PDF.
package export

import (
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/dre"
	"github.com/finboard/finboard/internal/period"
)

// Row is one flattened statement line.
type Row struct {
	Depth    int
	Name     string
	Values   []decimal.Decimal
	Trailing decimal.Decimal
}

// Flatten walks the forest depth-first in display order. Values follow the
// report window.
func Flatten(report dre.Report) []Row {
	var rows []Row
	var walk func(nodes []*dre.ComputedAccount, depth int)
	walk = func(nodes []*dre.ComputedAccount, depth int) {
		for _, n := range nodes {
			row := Row{Depth: depth, Name: n.Name, Values: make([]decimal.Decimal, len(report.Window)), Trailing: n.TrailingTotal}
			for i, p := range report.Window {
				row.Values[i] = n.PeriodTotals[p.Key()]
			}
			rows = append(rows, row)
			walk(n.Children, depth+1)
		}
	}
	walk(report.Accounts, 0)
	return rows
}

// Header returns the column titles shared by every format.
func Header(window []period.Period) []string {
	header := make([]string, 0, len(window)+2)
	header = append(header, "Conta")
	for _, p := range window {
		header = append(header, p.Label())
	}
	return append(header, trailingLabel(window))
}

func trailingLabel(window []period.Period) string {
	if len(window) <= 1 {
		return "Total"
	}
	return "Total " + window[1].Label() + " a " + window[len(window)-1].Label()
}
