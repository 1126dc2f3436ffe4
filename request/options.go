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

// Package request defines the estimation request protocol types
// shared by the client and the server: calculation options, the
// result batch partition and the protocol error taxonomy.
package request

import (
	"encoding/json"
	"fmt"

	"github.com/agnivade/levenshtein"
	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/layers"
)

// maxLayerSuggestionDistance limits how far a mistyped layer name may
// be from a known one to still produce a "did you mean" hint.
const maxLayerSuggestionDistance = 5

// Options describes which calculation layers a request may use and
// how individual property types are computed by each of them.
// CalculationLayers is ordered - the first listed layer is attempted
// first.
type Options struct {
	CalculationLayers []string
	Schemas           map[string]map[dataset.PropertyType]layers.Schema
}

// DefaultOptions produces options attempting cached-data reweighting
// first and falling back to direct simulation, with default schemas
// for the given property types.
func DefaultOptions(types ...dataset.PropertyType) Options {
	ans := Options{
		CalculationLayers: []string{layers.LayerReweighting, layers.LayerSimulation},
		Schemas:           make(map[string]map[dataset.PropertyType]layers.Schema),
	}
	for _, pt := range types {
		ans.AddSchema(layers.LayerReweighting, pt, &layers.ReweightingSchema{})
		ans.AddSchema(layers.LayerSimulation, pt, &layers.SimulationSchema{})
	}
	return ans
}

// AddSchema registers a calculation schema for a property type under
// a layer. An existing registration is replaced.
func (opts *Options) AddSchema(layer string, pt dataset.PropertyType, schema layers.Schema) {
	if opts.Schemas == nil {
		opts.Schemas = make(map[string]map[dataset.PropertyType]layers.Schema)
	}
	if opts.Schemas[layer] == nil {
		opts.Schemas[layer] = make(map[dataset.PropertyType]layers.Schema)
	}
	opts.Schemas[layer][pt] = schema
}

// SchemaFor returns the schema registered for the layer/property type
// pair (nil when none is registered).
func (opts *Options) SchemaFor(layer string, pt dataset.PropertyType) layers.Schema {
	return opts.Schemas[layer][pt]
}

func suggestLayer(name string) string {
	best := ""
	bestDist := maxLayerSuggestionDistance + 1
	for _, known := range layers.KnownLayers() {
		if dist := levenshtein.ComputeDistance(name, known); dist < bestDist {
			best = known
			bestDist = dist
		}
	}
	return best
}

// Validate checks the options against the layer registry. It rejects
// an empty layer list, unknown layer names (suggesting a close known
// name where one exists), schema entries keyed by a layer that is not
// listed and schemas that are invalid or registered for a property
// type they cannot compute.
func (opts Options) Validate() error {
	if len(opts.CalculationLayers) == 0 {
		return &ConfigurationError{Reason: "no calculation layers specified"}
	}
	listed := make(map[string]bool, len(opts.CalculationLayers))
	for _, name := range opts.CalculationLayers {
		if !layers.IsKnown(name) {
			ans := &ConfigurationError{
				Reason: fmt.Sprintf("unknown calculation layer: %s", name),
			}
			if sugg := suggestLayer(name); sugg != "" {
				ans.Suggestion = fmt.Sprintf("did you mean %s?", sugg)
			}
			return ans
		}
		if listed[name] {
			return &ConfigurationError{
				Reason: fmt.Sprintf("calculation layer listed twice: %s", name),
			}
		}
		listed[name] = true
	}
	for layerName, byType := range opts.Schemas {
		if !listed[layerName] {
			return &ConfigurationError{
				Reason: fmt.Sprintf(
					"schema registered for a layer not listed in calculationLayers: %s",
					layerName,
				),
			}
		}
		for pt, schema := range byType {
			if schema.LayerName() != layerName {
				return &ConfigurationError{
					Reason: fmt.Sprintf(
						"schema for %s/%s belongs to layer %s",
						layerName, pt, schema.LayerName(),
					),
				}
			}
			if !schema.AppliesTo(pt) {
				return &ConfigurationError{
					Reason: fmt.Sprintf(
						"schema under %s cannot compute property type %s", layerName, pt),
				}
			}
			if err := schema.Validate(); err != nil {
				return &ConfigurationError{Reason: err.Error()}
			}
		}
	}
	return nil
}

// optionsJSON is the wire form of Options. Schema objects are carried
// as raw JSON and decoded via the layer registry, so an unknown layer
// key fails loudly instead of being silently dropped.
type optionsJSON struct {
	CalculationLayers []string                                             `json:"calculationLayers"`
	Schemas           map[string]map[dataset.PropertyType]json.RawMessage `json:"schemas,omitempty"`
}

func (opts Options) MarshalJSON() ([]byte, error) {
	tmp := optionsJSON{CalculationLayers: opts.CalculationLayers}
	if len(opts.Schemas) > 0 {
		tmp.Schemas = make(map[string]map[dataset.PropertyType]json.RawMessage)
		for layerName, byType := range opts.Schemas {
			tmp.Schemas[layerName] = make(map[dataset.PropertyType]json.RawMessage)
			for pt, schema := range byType {
				raw, err := json.Marshal(schema)
				if err != nil {
					return nil, fmt.Errorf("failed to encode options: %w", err)
				}
				tmp.Schemas[layerName][pt] = raw
			}
		}
	}
	return json.Marshal(tmp)
}

func (opts *Options) UnmarshalJSON(data []byte) error {
	var tmp optionsJSON
	if err := json.Unmarshal(data, &tmp); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	opts.CalculationLayers = tmp.CalculationLayers
	opts.Schemas = nil
	for layerName, byType := range tmp.Schemas {
		for pt, raw := range byType {
			schema, err := layers.DecodeSchema(layerName, raw)
			if err != nil {
				return fmt.Errorf("failed to decode options: %w", err)
			}
			opts.AddSchema(layerName, pt, schema)
		}
	}
	return nil
}
