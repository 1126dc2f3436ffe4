package analysis

import (
	"math"
	"testing"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/request"
	"github.com/stretchr/testify/assert"
)

func TestSummarizeEmpty(t *testing.T) {
	_, err := Summarize(nil)
	assert.Error(t, err)
}

func TestSummarizeBasicStats(t *testing.T) {
	pairs := []Pair{
		{Measured: 1.0, Estimated: 1.1},
		{Measured: 2.0, Estimated: 1.9},
	}
	summary, err := Summarize(pairs)
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.N)
	assert.InDelta(t, 0.1, summary.RMSE, 1e-9)
	assert.InDelta(t, 0.1, summary.MeanAbsDev, 1e-9)
	assert.InDelta(t, 0.0, summary.Bias, 1e-9)
	assert.InDelta(t, 1.0, summary.Correlation, 1e-9)
}

func TestSummarizeCoverage(t *testing.T) {
	pairs := []Pair{
		// deviation 0.1, combined uncertainty 0.1 -> covered
		{Measured: 1.0, MeasuredUncertainty: 0.1, Estimated: 1.1},
		// deviation 0.5, combined uncertainty 0.1 -> not covered
		{Measured: 1.0, MeasuredUncertainty: 0.1, Estimated: 1.5},
		// no uncertainty at all -> not coverable
		{Measured: 1.0, Estimated: 1.0},
	}
	summary, err := Summarize(pairs)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, summary.Coverage, 1e-9)
}

func TestFromBatch(t *testing.T) {
	unc := 0.02
	batch := &request.ResultBatch{
		Estimated: []request.EstimatedProperty{
			{
				PhysicalProperty: dataset.PhysicalProperty{
					ID: "A", Value: 0.78, Uncertainty: &unc,
				},
				EstimatedValue:       0.79,
				EstimatedUncertainty: 0.001,
			},
		},
	}
	pairs := FromBatch(batch)
	assert.Len(t, pairs, 1)
	assert.Equal(t, 0.78, pairs[0].Measured)
	assert.Equal(t, 0.02, pairs[0].MeasuredUncertainty)
	assert.Equal(t, 0.79, pairs[0].Estimated)
	assert.False(t, math.IsNaN(pairs[0].EstimatedUncertainty))
}
