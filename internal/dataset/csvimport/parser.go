package csvimport

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
)

// Parse converts validated rows into typed values, in row order. A failure
// here means the validator let bad data through, so it panics.
func Parse(v *ValidatedTable) []domain.RecordValue {
	if v == nil {
		return nil
	}

	t := v.table
	out := make([]domain.RecordValue, 0, t.Len())
	for row := range t.Rows {
		out = append(out, domain.RecordValue{
			Name:        strings.TrimSpace(t.cell(row, v.cols.name)),
			Category:    strings.TrimSpace(t.cell(row, v.cols.category)),
			Flowrate:    mustReal(t.cell(row, v.cols.flowrate), row),
			Pressure:    mustReal(t.cell(row, v.cols.pressure), row),
			Temperature: mustReal(t.cell(row, v.cols.temperature), row),
		})
	}
	return out
}

func mustReal(raw string, row int) float64 {
	f, ok := parseReal(raw)
	if !ok {
		panic(fmt.Sprintf("csvimport: row %d value %q passed validation but does not parse", row+1, raw))
	}
	return f
}
