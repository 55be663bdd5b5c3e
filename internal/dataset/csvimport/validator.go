package csvimport

import (
	"math"
	"strconv"
	"strings"
)

type Validator struct {
	columns Columns
}

func NewValidator(columns Columns) *Validator {
	return &Validator{columns: columns}
}

// ValidatedTable is a table that passed every check. Only Validate creates one.
type ValidatedTable struct {
	table *Table
	cols  resolved
}

func (v *ValidatedTable) Len() int {
	return v.table.Len()
}

type resolved struct {
	name, category, flowrate, pressure, temperature int
}

// Validate checks the header first; row checks only run once every required
// column is present. Every row is checked so callers see all problems at once.
func (v *Validator) Validate(t *Table) (*ValidatedTable, error) {
	if t == nil {
		t = NewTable(nil, nil)
	}

	var missing []string
	idx := make([]int, 0, 5)
	for _, label := range v.columns.Labels() {
		i, ok := t.column(label)
		if !ok {
			missing = append(missing, label)
			continue
		}
		idx = append(idx, i)
	}
	if len(missing) > 0 {
		return nil, &StructuralError{Missing: missing}
	}

	cols := resolved{
		name:        idx[0],
		category:    idx[1],
		flowrate:    idx[2],
		pressure:    idx[3],
		temperature: idx[4],
	}

	var rowErrs RowErrors
	for row := range t.Rows {
		violations := v.checkRow(t, row, cols)
		if len(violations) == 0 {
			continue
		}
		rowErrs = append(rowErrs, RowError{
			Row:        row + 1,
			Field:      violations[0].Field,
			Reason:     violations[0].Reason,
			Violations: violations,
		})
	}
	if len(rowErrs) > 0 {
		return nil, rowErrs
	}

	return &ValidatedTable{table: t, cols: cols}, nil
}

func (v *Validator) checkRow(t *Table, row int, cols resolved) []Violation {
	var out []Violation

	if strings.TrimSpace(t.cell(row, cols.name)) == "" {
		out = append(out, Violation{Field: v.columns.Name, Reason: ReasonEmpty})
	}
	if strings.TrimSpace(t.cell(row, cols.category)) == "" {
		out = append(out, Violation{Field: v.columns.Category, Reason: ReasonEmpty})
	}
	if reason := checkPositive(t.cell(row, cols.flowrate)); reason != "" {
		out = append(out, Violation{Field: v.columns.Flowrate, Reason: reason})
	}
	if reason := checkPositive(t.cell(row, cols.pressure)); reason != "" {
		out = append(out, Violation{Field: v.columns.Pressure, Reason: reason})
	}
	if _, ok := parseReal(t.cell(row, cols.temperature)); !ok {
		out = append(out, Violation{Field: v.columns.Temperature, Reason: ReasonNotANumber})
	}

	return out
}

func checkPositive(raw string) string {
	f, ok := parseReal(raw)
	if !ok {
		return ReasonNotANumber
	}
	if f <= 0 {
		return ReasonNotPositive
	}
	return ""
}

// parseReal accepts finite decimal numbers only.
func parseReal(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if strings.IndexFunc(raw, notDecimal) >= 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// notDecimal rules out hex floats, digit separators and named values such as
// "inf" that strconv would otherwise accept.
func notDecimal(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return false
	case r == '+', r == '-', r == '.', r == 'e', r == 'E':
		return false
	}
	return true
}
