package report

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/equiplytics/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRenderer(chart ChartRenderer) *Renderer {
	clk := clock.NewFakeClock(createdAt)
	return NewRenderer(NewBuilder(chart, clk), clk)
}

func TestRenderProducesPDF(t *testing.T) {
	out, err := newRenderer(NewBarChart()).Render(context.Background(), input(sampleRecords(120), 100))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderEmptyBatch(t *testing.T) {
	out, err := newRenderer(NewBarChart()).Render(context.Background(), input(nil, 100))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderChartFailureReturnsNoBytes(t *testing.T) {
	chart := new(chartMock)
	chart.On("RenderBarChart", mock.Anything).Return(nil, errors.New("boom"))

	out, err := newRenderer(chart).Render(context.Background(), input(sampleRecords(2), 100))
	assert.Nil(t, out)

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "chart", ge.Stage)
}

func TestComposeWithoutOptionalSections(t *testing.T) {
	doc := &Document{
		Title:            Title,
		Info:             []Field{{Label: "Dataset ID", Value: "1"}},
		DistributionNote: noDistributionMsg,
		ExcerptNote:      noRecordsMsg,
		Footer:           "Report generated on 2025-02-03 04:05:06",
	}

	out, err := newRenderer(NewBarChart()).Compose(doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderChartPanicIsGenerationError(t *testing.T) {
	chart := new(chartMock)
	chart.On("RenderBarChart", mock.Anything).Panic("backend exploded")

	var (
		out []byte
		err error
	)
	require.NotPanics(t, func() {
		out, err = newRenderer(chart).Render(context.Background(), input(sampleRecords(2), 100))
	})
	assert.Nil(t, out)

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "render", ge.Stage)
	assert.Contains(t, ge.Error(), "backend exploded")
}

func TestRenderCancelledContextIsNotGenerationError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := newRenderer(new(chartMock)).Render(ctx, input(sampleRecords(2), 100))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)

	var ge *GenerationError
	assert.False(t, errors.As(err, &ge))
}
