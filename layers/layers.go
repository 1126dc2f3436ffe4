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

// Package layers defines the calculation approaches a property
// estimation request may select from, and the schema objects
// configuring how a specific property type is computed by each
// approach. The actual numerical work is always delegated to an
// external engine via the Estimator interface.
package layers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
)

const (
	LayerSimulation  = "SimulationLayer"
	LayerReweighting = "ReweightingLayer"
)

// ErrNotApplicable signals that a layer cannot estimate a given
// property (e.g. no cached data to reweight from). The caller is
// expected to fall through to the next layer in preference order.
var ErrNotApplicable = errors.New("layer not applicable to property")

// Schema is a configuration blueprint describing how a property
// type is computed by a concrete layer.
type Schema interface {
	LayerName() string
	AppliesTo(pt dataset.PropertyType) bool
	Validate() error
}

// Estimate is the outcome of a successful per-property calculation.
type Estimate struct {
	Value       float64 `json:"value"`
	Uncertainty float64 `json:"uncertainty"`
}

// Estimator resolves a single property into an estimate. Implementations
// must be safe for concurrent use - the backend calls them from multiple
// workers.
type Estimator interface {
	Estimate(
		ctx context.Context,
		prop dataset.PhysicalProperty,
		ffSource *forcefield.Source,
		schema Schema,
	) (Estimate, error)
}

var knownLayers = map[string]func() Schema{
	LayerSimulation:  func() Schema { return &SimulationSchema{} },
	LayerReweighting: func() Schema { return &ReweightingSchema{} },
}

func IsKnown(name string) bool {
	_, ok := knownLayers[name]
	return ok
}

func KnownLayers() []string {
	ans := make([]string, 0, len(knownLayers))
	for name := range knownLayers {
		ans = append(ans, name)
	}
	sort.Strings(ans)
	return ans
}

// DecodeSchema decodes a schema JSON payload into the concrete type
// registered for the given layer.
func DecodeSchema(layer string, data []byte) (Schema, error) {
	factory, ok := knownLayers[layer]
	if !ok {
		return nil, fmt.Errorf("failed to decode schema: unknown layer %s", layer)
	}
	schema := factory()
	if err := json.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("failed to decode %s schema: %w", layer, err)
	}
	return schema, nil
}
