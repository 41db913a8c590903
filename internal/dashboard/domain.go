// Package dashboard computes the configured visual elements of the
// dashboard, analysis and sales surfaces for one company and month.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/finboard/finboard/internal/aggregate"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/platform/httpx"
)

// Surface names a page whose slots are configured independently.
type Surface string

const (
	SurfaceDashboard Surface = "dashboard"
	SurfaceAnalysis  Surface = "analise"
	SurfaceSales     Surface = "vendas"
)

// MaxDashboardPosition bounds slot positions on the main dashboard.
const MaxDashboardPosition = 7

// ParseSurface accepts the stored names and their English aliases. Empty
// input selects the main dashboard.
func ParseSurface(raw string) (Surface, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "dashboard":
		return SurfaceDashboard, nil
	case "analise", "analysis":
		return SurfaceAnalysis, nil
	case "vendas", "sales":
		return SurfaceSales, nil
	default:
		return "", fmt.Errorf("%w: unknown surface %q", httpx.ErrValidation, raw)
	}
}

// DisplayType is the kind of visual element a config renders.
type DisplayType string

const (
	DisplayCard  DisplayType = "card"
	DisplayChart DisplayType = "chart"
	DisplayList  DisplayType = "list"
)

// ChartType is the chart subtype; it is carried to the output untouched.
type ChartType string

const (
	ChartLine ChartType = "line"
	ChartBar  ChartType = "bar"
	ChartArea ChartType = "area"
)

// Config is one visualization slot.
type Config struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Surface     Surface
	Position    int
	Title       string
	DisplayType DisplayType
	ChartType   ChartType
	ListSubject aggregate.ListSubject
	ListLimit   int
	Active      bool
	Components  []Component
}

// Component references a category, indicator or client of a config.
type Component struct {
	ID       uuid.UUID
	ConfigID uuid.UUID
	Ref      ledger.Ref
	Order    int
	Color    string
}

// Validate checks the slot constraints that do not depend on other rows.
func (c Config) Validate() error {
	switch c.DisplayType {
	case DisplayCard, DisplayChart, DisplayList:
	default:
		return fmt.Errorf("%w: config %s has unknown display type %q", httpx.ErrValidation, c.ID, c.DisplayType)
	}
	if c.Surface == SurfaceDashboard && (c.Position < 1 || c.Position > MaxDashboardPosition) {
		return fmt.Errorf("%w: dashboard position %d outside 1..%d", httpx.ErrValidation, c.Position, MaxDashboardPosition)
	}
	return nil
}

// Subject returns the list grouping, inferring it from the first component
// when the config does not state one.
func (c Config) Subject() aggregate.ListSubject {
	if c.ListSubject != "" {
		return c.ListSubject
	}
	if len(c.Components) > 0 {
		switch c.Components[0].Ref.Kind {
		case ledger.RefIndicator:
			return aggregate.ListByIndicator
		case ledger.RefClient:
			return aggregate.ListByClient
		}
	}
	return aggregate.ListByCategory
}

func (c Config) aggregateComponents() []aggregate.Component {
	out := make([]aggregate.Component, len(c.Components))
	for i, comp := range c.Components {
		out[i] = aggregate.Component{Ref: comp.Ref, Color: comp.Color}
	}
	return out
}

// parseListSubject maps the stored list subtype.
func parseListSubject(raw string) aggregate.ListSubject {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "categoria", "category":
		return aggregate.ListByCategory
	case "cliente", "client":
		return aggregate.ListByClient
	case "indicador", "indicator":
		return aggregate.ListByIndicator
	default:
		return ""
	}
}
