package export

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/finboard/finboard/internal/dre"
)

// HTMLRenderer converts an HTML document to PDF. *report.Client satisfies it.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ErrRendererMissing is returned when no PDF renderer is configured.
var ErrRendererMissing = errors.New("export: pdf renderer not configured")

// templates holds the printable statement layout.
//
//go:embed templates/*.html
var templates embed.FS

var statementTemplate = template.Must(template.New("statement.html").Funcs(template.FuncMap{
	"indent": func(depth int) int { return depth * 16 },
}).ParseFS(templates, "templates/statement.html"))

type cell struct {
	Text     string
	Negative bool
}

type htmlRow struct {
	Depth int
	Name  string
	Cells []cell
}

// RenderPDF renders the statement as HTML and converts it with renderer.
func RenderPDF(ctx context.Context, renderer HTMLRenderer, title string, report dre.Report) ([]byte, error) {
	if renderer == nil {
		return nil, ErrRendererMissing
	}
	html, err := RenderHTML(title, report)
	if err != nil {
		return nil, err
	}
	return renderer.RenderHTML(ctx, html)
}

// RenderHTML produces the printable statement with Brazilian number formatting.
func RenderHTML(title string, report dre.Report) (string, error) {
	printer := message.NewPrinter(language.BrazilianPortuguese)
	format := func(v decimal.Decimal) cell {
		return cell{Text: printer.Sprintf("%.2f", v.InexactFloat64()), Negative: v.IsNegative()}
	}

	flat := Flatten(report)
	rows := make([]htmlRow, len(flat))
	for i, r := range flat {
		cells := make([]cell, 0, len(r.Values)+1)
		for _, v := range r.Values {
			cells = append(cells, format(v))
		}
		cells = append(cells, format(r.Trailing))
		rows[i] = htmlRow{Depth: r.Depth, Name: r.Name, Cells: cells}
	}

	var buf bytes.Buffer
	err := statementTemplate.Execute(&buf, struct {
		Title  string
		Header []string
		Rows   []htmlRow
	}{Title: title, Header: Header(report.Window), Rows: rows})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
