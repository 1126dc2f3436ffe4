package request

import (
	"encoding/json"
	"testing"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/layers"
	"github.com/stretchr/testify/assert"
)

func TestValidateEmptyLayers(t *testing.T) {
	opts := Options{}
	err := opts.Validate()
	var confErr *ConfigurationError
	assert.ErrorAs(t, err, &confErr)
}

func TestValidateUnknownLayerSuggestsClosest(t *testing.T) {
	opts := Options{CalculationLayers: []string{"SimulatonLayer"}}
	err := opts.Validate()
	var confErr *ConfigurationError
	assert.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Suggestion, layers.LayerSimulation)
}

func TestValidateUnknownLayerNoSuggestionWhenFar(t *testing.T) {
	opts := Options{CalculationLayers: []string{"QuantumChemistry"}}
	err := opts.Validate()
	var confErr *ConfigurationError
	assert.ErrorAs(t, err, &confErr)
	assert.Equal(t, "", confErr.Suggestion)
}

func TestValidateDuplicateLayer(t *testing.T) {
	opts := Options{CalculationLayers: []string{
		layers.LayerSimulation, layers.LayerSimulation,
	}}
	assert.Error(t, opts.Validate())
}

func TestValidateSchemaForUnlistedLayer(t *testing.T) {
	opts := Options{CalculationLayers: []string{layers.LayerSimulation}}
	opts.AddSchema(layers.LayerReweighting, dataset.PropertyDensity, &layers.ReweightingSchema{})
	assert.Error(t, opts.Validate())
}

func TestValidateSchemaLayerMismatch(t *testing.T) {
	opts := Options{CalculationLayers: []string{layers.LayerSimulation}}
	opts.AddSchema(layers.LayerSimulation, dataset.PropertyDensity, &layers.ReweightingSchema{})
	assert.Error(t, opts.Validate())
}

func TestValidateInvalidSchema(t *testing.T) {
	opts := Options{CalculationLayers: []string{layers.LayerSimulation}}
	opts.AddSchema(
		layers.LayerSimulation,
		dataset.PropertyDensity,
		&layers.SimulationSchema{NumProductionSteps: -1},
	)
	assert.Error(t, opts.Validate())
}

func TestDefaultOptionsValid(t *testing.T) {
	opts := DefaultOptions(dataset.PropertyDensity, dataset.PropertyEnthalpyOfMixing)
	assert.NoError(t, opts.Validate())
	assert.Equal(
		t, []string{layers.LayerReweighting, layers.LayerSimulation}, opts.CalculationLayers)
	assert.NotNil(t, opts.SchemaFor(layers.LayerSimulation, dataset.PropertyDensity))
}

func TestOptionsJSONRoundTrip(t *testing.T) {
	opts := Options{CalculationLayers: []string{layers.LayerSimulation}}
	opts.AddSchema(
		layers.LayerSimulation,
		dataset.PropertyDensity,
		&layers.SimulationSchema{NumProductionSteps: 2000},
	)
	data, err := json.Marshal(opts)
	assert.NoError(t, err)

	var opts2 Options
	assert.NoError(t, json.Unmarshal(data, &opts2))
	assert.Equal(t, opts.CalculationLayers, opts2.CalculationLayers)
	schema := opts2.SchemaFor(layers.LayerSimulation, dataset.PropertyDensity)
	simSchema, ok := schema.(*layers.SimulationSchema)
	assert.True(t, ok)
	assert.Equal(t, 2000, simSchema.NumProductionSteps)
}

func TestOptionsJSONRejectsUnknownLayerKey(t *testing.T) {
	raw := `{
		"calculationLayers": ["SimulationLayer"],
		"schemas": {"QuantumLayer": {"Density": {}}}
	}`
	var opts Options
	assert.Error(t, json.Unmarshal([]byte(raw), &opts))
}
