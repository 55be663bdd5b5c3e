package report

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/smallbiznis/equiplytics/internal/dataset/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarChartRendersPNG(t *testing.T) {
	dist := analytics.NewDistribution()
	dist.Add("Reactor", 1)
	dist.Add("Pump", 2)

	out, err := NewBarChart().RenderBarChart(dist)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 900, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestBarChartRotatesManyCategories(t *testing.T) {
	dist := analytics.NewDistribution()
	for _, c := range []string{"Pump", "Valve", "Reactor", "Compressor", "Heat Exchanger", "Condenser", "Mixer"} {
		dist.Add(c, 3)
	}
	dist.Add("Pump", 40)

	out, err := NewBarChart().RenderBarChart(dist)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(out))
	assert.NoError(t, err)
}

func TestBarChartRejectsEmpty(t *testing.T) {
	_, err := NewBarChart().RenderBarChart(analytics.NewDistribution())
	assert.ErrorIs(t, err, ErrEmptyDistribution)
}

func TestNiceStep(t *testing.T) {
	cases := map[int]int{0: 1, 5: 1, 7: 2, 12: 5, 30: 10, 120: 50}
	for in, want := range cases {
		if got := niceStep(in); got != want {
			t.Fatalf("niceStep(%d) = %d, want %d", in, got, want)
		}
	}
}
