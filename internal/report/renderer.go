package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/equiplytics/internal/clock"
)

const ContentType = "application/pdf"

var (
	headerFill = &props.Color{Red: 54, Green: 96, Blue: 146}
	white      = &props.Color{Red: 255, Green: 255, Blue: 255}
	stripe     = &props.Color{Red: 240, Green: 244, Blue: 248}
)

// Renderer turns a Document into PDF bytes.
type Renderer struct {
	builder *Builder
	clock   clock.Clock
}

func NewRenderer(builder *Builder, clk clock.Clock) *Renderer {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Renderer{builder: builder, clock: clk}
}

// Render builds and composes the report. Any failure, including a panic in
// the chart or PDF backend, comes back as *GenerationError with nil bytes.
// Context cancellation is returned as is.
func (r *Renderer) Render(ctx context.Context, in Input) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &GenerationError{Stage: "render", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	doc, err := r.builder.Build(ctx, in)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, generationError("layout", err)
	}
	return r.Compose(doc)
}

func (r *Renderer) Compose(doc *Document) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &GenerationError{Stage: "compose", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		WithTitle(doc.Title, true).
		WithAuthor("equiplytics", true).
		WithCreationDate(r.clock.Now()).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(12, doc.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)

	m.AddRows(heading("Dataset Information"))
	m.AddRows(fieldRows(doc.Info)...)

	m.AddRows(heading("Summary Statistics"))
	m.AddRows(fieldRows(doc.Summary)...)

	m.AddRows(heading("Equipment Type Distribution"))
	if d := doc.Distribution; d != nil {
		m.AddRow(95,
			col.New(1),
			image.NewFromBytesCol(10, d.ChartPNG, extension.Png, props.Rect{Center: true, Percent: 100}),
			col.New(1),
		)
		m.AddRows(tableHeader([]int{6, 3, 3}, "Equipment Type", "Count", "Percentage"))
		for i, dr := range d.Rows {
			m.AddRows(tableRow(i, []int{6, 3, 3}, dr.Type, dr.Count, dr.Percentage))
		}
	} else {
		m.AddRows(note(doc.DistributionNote))
	}

	m.AddRows(heading("Equipment Records"))
	if e := doc.Excerpt; e != nil {
		if e.Notice != "" {
			m.AddRows(note(e.Notice))
		}
		sizes := []int{3, 3, 2, 2, 2}
		m.AddRows(tableHeader(sizes, e.Header...))
		for i, values := range e.Rows {
			m.AddRows(tableRow(i, sizes, values...))
		}
	} else {
		m.AddRows(note(doc.ExcerptNote))
	}

	m.AddRows(line.NewRow(6))
	m.AddRow(8,
		text.NewCol(12, doc.Footer, props.Text{
			Size:  8,
			Style: fontstyle.Italic,
			Align: align.Center,
		}),
	)

	generated, err := m.Generate()
	if err != nil {
		return nil, &GenerationError{Stage: "compose", Err: err}
	}
	return generated.GetBytes(), nil
}

func heading(title string) core.Row {
	return row.New(12).Add(
		text.NewCol(12, title, props.Text{
			Size:  13,
			Style: fontstyle.Bold,
			Top:   4,
		}),
	)
}

func fieldRows(fields []Field) []core.Row {
	rows := make([]core.Row, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, row.New(6).Add(
			text.NewCol(4, f.Label+":", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(8, f.Value, props.Text{Size: 9}),
		))
	}
	return rows
}

func note(msg string) core.Row {
	return row.New(7).Add(
		text.NewCol(12, msg, props.Text{Size: 9, Style: fontstyle.Italic}),
	)
}

func tableHeader(sizes []int, labels ...string) core.Row {
	cols := make([]core.Col, 0, len(labels))
	for i, label := range labels {
		cols = append(cols, text.NewCol(sizes[i], label, props.Text{
			Size:  9,
			Style: fontstyle.Bold,
			Align: align.Center,
			Top:   1.5,
			Color: white,
		}))
	}
	return row.New(7).Add(cols...).WithStyle(&props.Cell{BackgroundColor: headerFill})
}

func tableRow(index int, sizes []int, values ...string) core.Row {
	cols := make([]core.Col, 0, len(values))
	for i, v := range values {
		a := align.Center
		if i == 0 {
			a = align.Left
		}
		cols = append(cols, text.NewCol(sizes[i], v, props.Text{Size: 8, Align: a, Top: 1.5, Left: 1}))
	}
	r := row.New(6).Add(cols...)
	if index%2 == 1 {
		r = r.WithStyle(&props.Cell{BackgroundColor: stripe})
	}
	return r
}
