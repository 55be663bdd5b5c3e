package analytics

import (
	"math"

	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
)

// Summary is the cached analytics of one batch. Averages are nil when the
// batch has no records.
type Summary struct {
	TotalCount     int
	AvgFlowrate    *float64
	AvgPressure    *float64
	AvgTemperature *float64
	Distribution   *Distribution
}

// Aggregate computes counts, arithmetic means and the category distribution.
// Values are not rounded.
func Aggregate(records []domain.RecordValue) Summary {
	dist := NewDistribution()
	summary := Summary{
		TotalCount:   len(records),
		Distribution: dist,
	}
	if len(records) == 0 {
		return summary
	}

	flow := make([]float64, len(records))
	pressure := make([]float64, len(records))
	temp := make([]float64, len(records))
	for i, r := range records {
		flow[i] = r.Flowrate
		pressure[i] = r.Pressure
		temp[i] = r.Temperature
		dist.Add(r.Category, 1)
	}

	summary.AvgFlowrate = ptr(mean(flow))
	summary.AvgPressure = ptr(mean(pressure))
	summary.AvgTemperature = ptr(mean(temp))
	return summary
}

// mean stays finite for any finite input. When the plain sum overflows it
// falls back to summing pre-scaled values.
func mean(values []float64) float64 {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	if !math.IsInf(sum, 0) {
		return sum / n
	}
	var scaled float64
	for _, v := range values {
		scaled += v / n
	}
	return scaled
}

func ptr(v float64) *float64 { return &v }
