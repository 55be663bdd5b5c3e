package analytics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/smallbiznis/equiplytics/internal/dataset/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEmptyHasNilAverages(t *testing.T) {
	s := Aggregate(nil)

	assert.Equal(t, 0, s.TotalCount)
	assert.Nil(t, s.AvgFlowrate)
	assert.Nil(t, s.AvgPressure)
	assert.Nil(t, s.AvgTemperature)
	assert.Equal(t, 0, s.Distribution.Len())

	b, err := json.Marshal(s.Distribution)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestAggregateAverages(t *testing.T) {
	s := Aggregate([]domain.RecordValue{
		{Name: "P1", Category: "Pump", Flowrate: 150.5, Pressure: 45.2, Temperature: 85.0},
		{Name: "R1", Category: "Reactor", Flowrate: 200.0, Pressure: 120.5, Temperature: 350.0},
	})

	assert.Equal(t, 2, s.TotalCount)
	require.NotNil(t, s.AvgFlowrate)
	assert.InDelta(t, 175.25, *s.AvgFlowrate, 1e-9)
	assert.InDelta(t, 82.85, *s.AvgPressure, 1e-9)
	assert.InDelta(t, 217.5, *s.AvgTemperature, 1e-9)
}

func TestAggregateAveragesNearFloatLimit(t *testing.T) {
	s := Aggregate([]domain.RecordValue{
		{Name: "A", Category: "P", Flowrate: 1e308, Pressure: 1e308, Temperature: -1e308},
		{Name: "B", Category: "P", Flowrate: 1e308, Pressure: 1e308, Temperature: -1e308},
	})

	require.NotNil(t, s.AvgFlowrate)
	assert.Equal(t, 1e308, *s.AvgFlowrate)
	assert.Equal(t, 1e308, *s.AvgPressure)
	assert.Equal(t, -1e308, *s.AvgTemperature)

	_, err := json.Marshal(s.AvgFlowrate)
	require.NoError(t, err)
}

func TestAggregateMixedSignsNearFloatLimit(t *testing.T) {
	s := Aggregate([]domain.RecordValue{
		{Name: "A", Category: "P", Flowrate: 1, Pressure: 1, Temperature: math.MaxFloat64},
		{Name: "B", Category: "P", Flowrate: 1, Pressure: 1, Temperature: math.MaxFloat64},
		{Name: "C", Category: "P", Flowrate: 1, Pressure: 1, Temperature: -math.MaxFloat64},
	})

	require.NotNil(t, s.AvgTemperature)
	assert.False(t, math.IsInf(*s.AvgTemperature, 0))
	assert.InEpsilon(t, math.MaxFloat64/3, *s.AvgTemperature, 1e-9)
}

func TestAggregateAverageOfZeroIsNotNil(t *testing.T) {
	s := Aggregate([]domain.RecordValue{
		{Category: "X", Flowrate: 1, Pressure: 1, Temperature: -5},
		{Category: "X", Flowrate: 1, Pressure: 1, Temperature: 5},
	})
	require.NotNil(t, s.AvgTemperature)
	assert.Equal(t, 0.0, *s.AvgTemperature)
}

func TestAggregateDistribution(t *testing.T) {
	s := Aggregate([]domain.RecordValue{
		{Category: "Pump", Flowrate: 1, Pressure: 1},
		{Category: "Reactor", Flowrate: 1, Pressure: 1},
		{Category: "Pump", Flowrate: 1, Pressure: 1},
		{Category: "pump", Flowrate: 1, Pressure: 1},
	})

	assert.Equal(t, []string{"Pump", "Reactor", "pump"}, s.Distribution.Categories())
	assert.Equal(t, 2, s.Distribution.Count("Pump"))
	assert.Equal(t, 1, s.Distribution.Count("Reactor"))
	assert.Equal(t, 1, s.Distribution.Count("pump"))

	b, err := json.Marshal(s.Distribution)
	require.NoError(t, err)
	assert.Equal(t, `{"Pump":2,"Reactor":1,"pump":1}`, string(b))
}

func TestDistributionJSONKeepsOrder(t *testing.T) {
	var d Distribution
	require.NoError(t, json.Unmarshal([]byte(`{"Valve":3,"Compressor":1,"Pump":2}`), &d))

	assert.Equal(t, []string{"Valve", "Compressor", "Pump"}, d.Categories())
	assert.Equal(t, []string{"Compressor", "Pump", "Valve"}, d.Sorted())

	b, err := json.Marshal(&d)
	require.NoError(t, err)
	assert.Equal(t, `{"Valve":3,"Compressor":1,"Pump":2}`, string(b))
}

func TestDistributionUnmarshalRejectsNonObject(t *testing.T) {
	var d Distribution
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
	assert.Error(t, json.Unmarshal([]byte(`{"Pump":"two"}`), &d))
}

func TestDistributionPercentages(t *testing.T) {
	d := NewDistribution()
	d.Add("Reactor", 1)
	d.Add("Pump", 3)

	buckets := d.Percentages(4)
	require.Len(t, buckets, 2)
	assert.Equal(t, "Pump", buckets[0].Category)
	assert.InDelta(t, 75.0, buckets[0].Percent, 1e-9)
	assert.InDelta(t, 25.0, buckets[1].Percent, 1e-9)

	assert.Equal(t, 0.0, d.Percentages(0)[0].Percent)
}
