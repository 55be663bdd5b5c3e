package report

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/equiplytics/internal/clock"
	"github.com/smallbiznis/equiplytics/internal/dataset/analytics"
	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
)

const (
	Title = "Chemical Equipment Analytics Report"

	notAvailable      = "N/A"
	timestampLayout   = "2006-01-02 15:04:05"
	noDistributionMsg = "No equipment type distribution data available."
	noRecordsMsg      = "No equipment records available."
)

// Input is everything needed to lay out one report. Records may hold more
// rows than the excerpt cap; TotalRecords is the batch's full count.
type Input struct {
	BatchID        string
	Name           string
	OwnerID        string
	CreatedAt      time.Time
	Summary        analytics.Summary
	Records        []domain.RecordValue
	MaxExcerptRows int
}

type Field struct {
	Label string
	Value string
}

type DistributionRow struct {
	Type       string
	Count      string
	Percentage string
}

type DistributionSection struct {
	ChartPNG []byte
	Rows     []DistributionRow
}

type ExcerptSection struct {
	Header []string
	Rows   [][]string
	// Notice is set when the table is truncated.
	Notice string
}

// Document is the rendered report before it is turned into PDF bytes.
// Sections that do not apply are nil and their note explains why.
type Document struct {
	Title            string
	Info             []Field
	Summary          []Field
	Distribution     *DistributionSection
	DistributionNote string
	Excerpt          *ExcerptSection
	ExcerptNote      string
	Footer           string
}

type Builder struct {
	chart ChartRenderer
	clock clock.Clock
}

func NewBuilder(chart ChartRenderer, clk clock.Clock) *Builder {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Builder{chart: chart, clock: clk}
}

func (b *Builder) Build(ctx context.Context, in Input) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.MaxExcerptRows < 1 {
		return nil, fmt.Errorf("max excerpt rows must be positive, got %d", in.MaxExcerptRows)
	}

	s := in.Summary
	doc := &Document{
		Title: Title,
		Info: []Field{
			{Label: "Dataset ID", Value: in.BatchID},
			{Label: "Dataset Name", Value: in.Name},
			{Label: "Uploaded At", Value: in.CreatedAt.UTC().Format(timestampLayout)},
			{Label: "Uploaded By", Value: in.OwnerID},
		},
		Summary: []Field{
			{Label: "Total Equipment Records", Value: fmt.Sprintf("%d", s.TotalCount)},
			{Label: "Average Flowrate", Value: formatAverage(s.AvgFlowrate) + " L/min"},
			{Label: "Average Pressure", Value: formatAverage(s.AvgPressure) + " bar"},
			{Label: "Average Temperature", Value: formatAverage(s.AvgTemperature) + " °C"},
		},
		Footer: "Report generated on " + b.clock.Now().UTC().Format(timestampLayout),
	}

	if s.Distribution.Len() > 0 {
		png, err := b.chart.RenderBarChart(s.Distribution)
		if err != nil {
			return nil, generationError("chart", err)
		}
		section := &DistributionSection{ChartPNG: png}
		for _, bucket := range s.Distribution.Percentages(s.TotalCount) {
			section.Rows = append(section.Rows, DistributionRow{
				Type:       bucket.Category,
				Count:      fmt.Sprintf("%d", bucket.Count),
				Percentage: fmt.Sprintf("%.1f%%", bucket.Percent),
			})
		}
		doc.Distribution = section
	} else {
		doc.DistributionNote = noDistributionMsg
	}

	if len(in.Records) > 0 {
		doc.Excerpt = buildExcerpt(in.Records, s.TotalCount, in.MaxExcerptRows)
	} else {
		doc.ExcerptNote = noRecordsMsg
	}

	return doc, nil
}

func buildExcerpt(records []domain.RecordValue, total, limit int) *ExcerptSection {
	if total < len(records) {
		total = len(records)
	}
	shown := records
	if len(shown) > limit {
		shown = shown[:limit]
	}

	section := &ExcerptSection{
		Header: []string{"Equipment Name", "Type", "Flowrate (L/min)", "Pressure (bar)", "Temperature (°C)"},
		Rows:   make([][]string, 0, len(shown)),
	}
	for _, r := range shown {
		section.Rows = append(section.Rows, []string{
			r.Name,
			r.Category,
			fmt.Sprintf("%.2f", r.Flowrate),
			fmt.Sprintf("%.2f", r.Pressure),
			fmt.Sprintf("%.2f", r.Temperature),
		})
	}
	if total > len(shown) {
		section.Notice = fmt.Sprintf("Showing first %d of %d records", len(shown), total)
	}
	return section
}

func formatAverage(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return fmt.Sprintf("%.2f", *v)
}
