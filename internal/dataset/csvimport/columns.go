package csvimport

import "github.com/smallbiznis/equiplytics/internal/config"

// Columns maps the five logical fields to their header labels.
type Columns struct {
	Name        string
	Category    string
	Flowrate    string
	Pressure    string
	Temperature string
}

func ColumnsFrom(cfg config.ColumnsConfig) Columns {
	return Columns{
		Name:        cfg.Name,
		Category:    cfg.Category,
		Flowrate:    cfg.Flowrate,
		Pressure:    cfg.Pressure,
		Temperature: cfg.Temperature,
	}
}

func DefaultColumns() Columns {
	return ColumnsFrom(config.DefaultAnalyticsConfig().Columns)
}

// Labels returns the header labels in canonical order.
func (c Columns) Labels() []string {
	return []string{c.Name, c.Category, c.Flowrate, c.Pressure, c.Temperature}
}
