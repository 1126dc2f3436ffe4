// Copyright 2025 The propeval authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package analysis compares estimated property values against their
// measured references.
package analysis

import (
	"fmt"
	"math"

	"github.com/faranak1991/propeval/archive"
	"github.com/faranak1991/propeval/request"
	"gonum.org/v1/gonum/stat"
)

// Pair couples a measured reference value with its estimate.
// Uncertainties may be zero when not reported.
type Pair struct {
	Measured             float64
	MeasuredUncertainty  float64
	Estimated            float64
	EstimatedUncertainty float64
}

// Summary aggregates estimation quality over a set of pairs.
// Coverage is the fraction of pairs whose deviation lies within
// twice the combined uncertainty; pairs without any uncertainty
// are excluded from it.
type Summary struct {
	N           int     `json:"n"`
	RMSE        float64 `json:"rmse"`
	MeanAbsDev  float64 `json:"meanAbsDev"`
	Bias        float64 `json:"bias"`
	Correlation float64 `json:"correlation"`
	Coverage    float64 `json:"coverage"`
}

func Summarize(pairs []Pair) (Summary, error) {
	if len(pairs) == 0 {
		return Summary{}, fmt.Errorf("failed to summarize: no estimated properties")
	}
	measured := make([]float64, len(pairs))
	estimated := make([]float64, len(pairs))
	var sqSum, absSum, biasSum float64
	var covered, coverable int
	for i, p := range pairs {
		measured[i] = p.Measured
		estimated[i] = p.Estimated
		dev := p.Estimated - p.Measured
		sqSum += dev * dev
		absSum += math.Abs(dev)
		biasSum += dev
		combined := math.Hypot(p.MeasuredUncertainty, p.EstimatedUncertainty)
		if combined > 0 {
			coverable++
			if math.Abs(dev) <= 2*combined {
				covered++
			}
		}
	}
	n := float64(len(pairs))
	ans := Summary{
		N:          len(pairs),
		RMSE:       math.Sqrt(sqSum / n),
		MeanAbsDev: absSum / n,
		Bias:       biasSum / n,
	}
	if len(pairs) > 1 {
		ans.Correlation = stat.Correlation(measured, estimated, nil)
	}
	if coverable > 0 {
		ans.Coverage = float64(covered) / float64(coverable)
	}
	return ans, nil
}

// FromBatch extracts comparison pairs from the estimated properties
// of a result batch.
func FromBatch(batch *request.ResultBatch) []Pair {
	ans := make([]Pair, len(batch.Estimated))
	for i, p := range batch.Estimated {
		pair := Pair{
			Measured:             p.Value,
			Estimated:            p.EstimatedValue,
			EstimatedUncertainty: p.EstimatedUncertainty,
		}
		if p.Uncertainty != nil {
			pair.MeasuredUncertainty = *p.Uncertainty
		}
		ans[i] = pair
	}
	return ans
}

// FromEstimations extracts comparison pairs from archived estimations.
func FromEstimations(recs []archive.Estimation) []Pair {
	ans := make([]Pair, len(recs))
	for i, rec := range recs {
		pair := Pair{
			Measured:             rec.MeasuredValue,
			Estimated:            rec.EstimatedValue,
			EstimatedUncertainty: rec.EstimatedUncertainty,
		}
		if rec.MeasuredUncertainty != nil {
			pair.MeasuredUncertainty = *rec.MeasuredUncertainty
		}
		ans[i] = pair
	}
	return ans
}
