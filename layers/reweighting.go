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

package layers

import (
	"context"
	"fmt"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
)

const dfltTemperatureToleranceK = 5.0

// ReweightingSchema configures the cached-data layer. A property can
// be answered from an earlier estimation of the same substance and
// property type if its temperature lies within TemperatureToleranceK
// of the cached state.
type ReweightingSchema struct {
	TemperatureToleranceK float64 `json:"temperatureToleranceK"`
}

func (s *ReweightingSchema) LayerName() string {
	return LayerReweighting
}

func (s *ReweightingSchema) AppliesTo(pt dataset.PropertyType) bool {
	return pt != ""
}

func (s *ReweightingSchema) Validate() error {
	if s.TemperatureToleranceK < 0 {
		return fmt.Errorf("reweighting schema: negative temperature tolerance")
	}
	return nil
}

// CachedEstimation is a previously finished estimation usable as
// reweighting source data.
type CachedEstimation struct {
	Value        float64
	Uncertainty  float64
	TemperatureK float64
}

// EstimationCache provides access to previously finished estimations.
// It is implemented by the archive database.
type EstimationCache interface {
	FindEstimations(
		substanceID string,
		propertyType dataset.PropertyType,
		forceField string,
	) ([]CachedEstimation, error)
}

// ReweightingEstimator answers properties from cached estimations
// instead of launching new simulations. It never produces fresh
// data - when no cached estimation is close enough it reports
// ErrNotApplicable so the backend can fall through to the next layer.
type ReweightingEstimator struct {
	Cache EstimationCache
}

func (e *ReweightingEstimator) Estimate(
	ctx context.Context,
	prop dataset.PhysicalProperty,
	ffSource *forcefield.Source,
	schema Schema,
) (Estimate, error) {
	if e.Cache == nil {
		return Estimate{}, ErrNotApplicable
	}
	rwSchema, ok := schema.(*ReweightingSchema)
	if !ok {
		return Estimate{}, fmt.Errorf("reweighting layer received a foreign schema type")
	}
	tolerance := rwSchema.TemperatureToleranceK
	if tolerance == 0 {
		tolerance = dfltTemperatureToleranceK
	}
	cached, err := e.Cache.FindEstimations(
		prop.Substance.Identifier(), prop.PropertyType, ffSource.Label())
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to search estimation cache: %w", err)
	}
	best := -1
	var bestDist float64
	for i, c := range cached {
		dist := prop.State.TemperatureK - c.TemperatureK
		if dist < 0 {
			dist = -dist
		}
		if dist > tolerance {
			continue
		}
		if best == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	if best == -1 {
		return Estimate{}, ErrNotApplicable
	}
	return Estimate{
		Value:       cached[best].Value,
		Uncertainty: cached[best].Uncertainty,
	}, nil
}
