package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Distribution counts records per category. Categories keep the order in
// which they were first seen, which is also the JSON key order.
type Distribution struct {
	keys   []string
	counts map[string]int
}

type Bucket struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"`
}

func NewDistribution() *Distribution {
	return &Distribution{counts: map[string]int{}}
}

func (d *Distribution) Add(category string, n int) {
	if d.counts == nil {
		d.counts = map[string]int{}
	}
	if _, ok := d.counts[category]; !ok {
		d.keys = append(d.keys, category)
	}
	d.counts[category] += n
}

func (d *Distribution) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

func (d *Distribution) Count(category string) int {
	if d == nil {
		return 0
	}
	return d.counts[category]
}

// Categories returns the categories in first-seen order.
func (d *Distribution) Categories() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.keys...)
}

// Sorted returns the categories in lexical order, as charts and tables
// present them.
func (d *Distribution) Sorted() []string {
	out := d.Categories()
	sort.Strings(out)
	return out
}

// Percentages returns one bucket per category in lexical order. Percent is
// relative to total and zero when total is zero.
func (d *Distribution) Percentages(total int) []Bucket {
	sorted := d.Sorted()
	out := make([]Bucket, 0, len(sorted))
	for _, category := range sorted {
		count := d.counts[category]
		var pct float64
		if total > 0 {
			pct = float64(count) / float64(total) * 100
		}
		out = append(out, Bucket{Category: category, Count: count, Percent: pct})
	}
	return out
}

func (d *Distribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if d != nil {
		for i, key := range d.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			fmt.Fprintf(&buf, "%d", d.counts[key])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of category counts keeping key order.
func (d *Distribution) UnmarshalJSON(data []byte) error {
	d.keys = nil
	d.counts = map[string]int{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("distribution: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("distribution: expected key, got %v", tok)
		}
		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("distribution: count for %q: %w", key, err)
		}
		d.Add(key, count)
	}

	_, err = dec.Token()
	return err
}
