package report

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/equiplytics/internal/clock"
	"github.com/smallbiznis/equiplytics/internal/dataset/analytics"
	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type chartMock struct {
	mock.Mock
}

func (m *chartMock) RenderBarChart(dist *analytics.Distribution) ([]byte, error) {
	args := m.Called(dist)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

var createdAt = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func sampleRecords(n int) []domain.RecordValue {
	out := make([]domain.RecordValue, 0, n)
	for i := 0; i < n; i++ {
		category := "Pump"
		if i%3 == 0 {
			category = "Reactor"
		}
		out = append(out, domain.RecordValue{
			Name:        fmt.Sprintf("EQ-%03d", i),
			Category:    category,
			Flowrate:    100 + float64(i),
			Pressure:    5.5,
			Temperature: -10 + float64(i),
		})
	}
	return out
}

func input(records []domain.RecordValue, cap int) Input {
	return Input{
		BatchID:        "1234",
		Name:           "plant.csv",
		OwnerID:        "alice",
		CreatedAt:      createdAt,
		Summary:        analytics.Aggregate(records),
		Records:        records,
		MaxExcerptRows: cap,
	}
}

func TestBuildSameInputSameSummary(t *testing.T) {
	chart := new(chartMock)
	chart.On("RenderBarChart", mock.Anything).Return([]byte("png"), nil)
	clk := clock.NewFakeClock(createdAt)
	b := NewBuilder(chart, clk)

	records := []domain.RecordValue{
		{Name: "P1", Category: "Pump", Flowrate: 150.5, Pressure: 45.2, Temperature: 85.0},
		{Name: "R1", Category: "Reactor", Flowrate: 200.0, Pressure: 120.5, Temperature: 350.0},
	}
	first, err := b.Build(context.Background(), input(records, 100))
	require.NoError(t, err)
	clk.Advance(time.Hour)
	second, err := b.Build(context.Background(), input(records, 100))
	require.NoError(t, err)

	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Distribution.Rows, second.Distribution.Rows)
	assert.NotEqual(t, first.Footer, second.Footer)

	assert.Equal(t, []Field{
		{Label: "Total Equipment Records", Value: "2"},
		{Label: "Average Flowrate", Value: "175.25 L/min"},
		{Label: "Average Pressure", Value: "82.85 bar"},
		{Label: "Average Temperature", Value: "217.50 °C"},
	}, first.Summary)
	assert.Equal(t, "2025-02-03 04:05:06", first.Info[2].Value)
	assert.Equal(t, []DistributionRow{
		{Type: "Pump", Count: "1", Percentage: "50.0%"},
		{Type: "Reactor", Count: "1", Percentage: "50.0%"},
	}, first.Distribution.Rows)
	assert.Empty(t, first.Excerpt.Notice)
}

func TestBuildEmptyBatchOmitsChartAndTable(t *testing.T) {
	chart := new(chartMock)
	b := NewBuilder(chart, clock.NewFakeClock(createdAt))

	doc, err := b.Build(context.Background(), input(nil, 100))
	require.NoError(t, err)

	assert.Nil(t, doc.Distribution)
	assert.Nil(t, doc.Excerpt)
	assert.NotEmpty(t, doc.DistributionNote)
	assert.NotEmpty(t, doc.ExcerptNote)
	assert.Equal(t, "0", doc.Summary[0].Value)
	assert.Equal(t, "N/A L/min", doc.Summary[1].Value)
	assert.Equal(t, "N/A bar", doc.Summary[2].Value)
	assert.Equal(t, "N/A °C", doc.Summary[3].Value)
	chart.AssertNotCalled(t, "RenderBarChart", mock.Anything)
}

func TestBuildCapsExcerpt(t *testing.T) {
	chart := new(chartMock)
	chart.On("RenderBarChart", mock.Anything).Return([]byte("png"), nil)
	b := NewBuilder(chart, clock.NewFakeClock(createdAt))

	doc, err := b.Build(context.Background(), input(sampleRecords(150), 100))
	require.NoError(t, err)

	require.NotNil(t, doc.Excerpt)
	assert.Len(t, doc.Excerpt.Rows, 100)
	assert.Equal(t, "Showing first 100 of 150 records", doc.Excerpt.Notice)
	assert.Equal(t, "EQ-000", doc.Excerpt.Rows[0][0])
	assert.Equal(t, "-10.00", doc.Excerpt.Rows[0][4])
}

func TestBuildNoticeUsesBatchTotal(t *testing.T) {
	chart := new(chartMock)
	chart.On("RenderBarChart", mock.Anything).Return([]byte("png"), nil)
	b := NewBuilder(chart, clock.NewFakeClock(createdAt))

	in := input(sampleRecords(250), 100)
	in.Records = in.Records[:100] // caller fetched only the excerpt

	doc, err := b.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Showing first 100 of 250 records", doc.Excerpt.Notice)
}

func TestBuildChartFailureIsGenerationError(t *testing.T) {
	cause := errors.New("backend down")
	chart := new(chartMock)
	chart.On("RenderBarChart", mock.Anything).Return(nil, cause)
	b := NewBuilder(chart, clock.NewFakeClock(createdAt))

	doc, err := b.Build(context.Background(), input(sampleRecords(3), 100))
	assert.Nil(t, doc)

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "chart", ge.Stage)
	assert.ErrorIs(t, err, cause)
}

func TestBuildRejectsNonPositiveCap(t *testing.T) {
	b := NewBuilder(new(chartMock), clock.NewFakeClock(createdAt))
	_, err := b.Build(context.Background(), input(nil, 0))
	assert.Error(t, err)
}
