package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is raw CSV content addressed by header label.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadTable decodes r as comma separated UTF-8. A file without any line
// yields a table with no header, which fails validation structurally.
func ReadTable(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return NewTable(nil, nil), nil
	}
	if err != nil {
		return nil, &StructuralError{Reason: err.Error()}
	}

	var rows [][]string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &StructuralError{Reason: err.Error()}
		}
		rows = append(rows, record)
	}

	return NewTable(header, rows), nil
}

// NewTable builds a table from in-memory rows. Header labels are trimmed and
// the first occurrence of a duplicated label wins.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{
		Header: make([]string, len(header)),
		Rows:   rows,
		index:  make(map[string]int, len(header)),
	}
	for i, label := range header {
		label = strings.TrimSpace(label)
		t.Header[i] = label
		if _, dup := t.index[label]; !dup {
			t.index[label] = i
		}
	}
	return t
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) column(label string) (int, bool) {
	i, ok := t.index[label]
	return i, ok
}

// cell returns the value at row/col; short rows read as empty cells.
func (t *Table) cell(row, col int) string {
	record := t.Rows[row]
	if col >= len(record) {
		return ""
	}
	return record[col]
}
