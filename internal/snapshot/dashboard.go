package snapshot

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"

	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"
)

const (
	DEFAULT_STATION_TITLE = "El Sebadal"
)

//go:embed dashboard.html.tmpl
var dashboardSource string

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"kw": func(v float64) string {
		return fmt.Sprintf("%.3f", v)
	},
	"pct": func(ratio float64) string {
		return fmt.Sprintf("%.2f", ratio*100)
	},
}).Parse(dashboardSource))

type Dashboard struct {
	Snapshot    domain.Snapshot
	StationName string
	// RefreshSeconds sets the browser auto refresh, 0 disables it.
	RefreshSeconds uint
}

func NewDashboard(pb domain.PowerBalance, refreshSeconds uint) Dashboard {
	name := pb.StationName
	if name == "" {
		name = DEFAULT_STATION_TITLE
	}
	return Dashboard{
		Snapshot:       pb.Snapshot(),
		StationName:    name,
		RefreshSeconds: refreshSeconds,
	}
}

func (d Dashboard) Render(w io.Writer) error {
	return dashboardTemplate.Execute(w, d)
}

func WriteDashboard(path string, d Dashboard) error {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return WriteFileAtomic(path, buf.Bytes())
}
