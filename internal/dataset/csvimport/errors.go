package csvimport

import (
	"fmt"
	"strings"
)

const (
	ReasonEmpty       = "empty"
	ReasonNotANumber  = "not_a_number"
	ReasonNotPositive = "not_positive"
)

// StructuralError reports input whose shape is wrong: unreadable CSV or
// missing required columns. No row was inspected.
type StructuralError struct {
	Missing []string
	Reason  string
}

func (e *StructuralError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required columns: " + strings.Join(e.Missing, ", ")
	}
	if e.Reason != "" {
		return "invalid csv: " + e.Reason
	}
	return "invalid csv"
}

type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// RowError describes one invalid data row. Row is 1-based and does not
// count the header. Field and Reason repeat the first violation.
type RowError struct {
	Row        int         `json:"row"`
	Field      string      `json:"field"`
	Reason     string      `json:"reason"`
	Violations []Violation `json:"violations"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// RowErrors holds one entry per invalid row, in row order.
type RowErrors []RowError

func (e RowErrors) Error() string {
	switch len(e) {
	case 0:
		return "no row errors"
	case 1:
		return e[0].Error()
	default:
		return fmt.Sprintf("%d invalid rows (first: %s)", len(e), e[0].Error())
	}
}
