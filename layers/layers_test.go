package layers

import (
	"context"
	"testing"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
	"github.com/stretchr/testify/assert"
)

const testFFXML = `<SMIRNOFF version="0.3"></SMIRNOFF>`

func testProp(tempK float64) dataset.PhysicalProperty {
	return dataset.PhysicalProperty{
		ID:           "p1",
		PropertyType: dataset.PropertyDensity,
		Phase:        dataset.PhaseLiquid,
		State:        dataset.ThermodynamicState{TemperatureK: tempK},
		Value:        0.78,
		Substance: dataset.Substance{Components: []dataset.Component{
			{SMILES: "CCO", MoleFraction: 1},
		}},
	}
}

func TestKnownLayers(t *testing.T) {
	assert.True(t, IsKnown(LayerSimulation))
	assert.True(t, IsKnown(LayerReweighting))
	assert.False(t, IsKnown("QuantumLayer"))
	assert.Equal(t, []string{LayerReweighting, LayerSimulation}, KnownLayers())
}

func TestDecodeSchema(t *testing.T) {
	schema, err := DecodeSchema(LayerSimulation, []byte(`{"numProductionSteps": 500}`))
	assert.NoError(t, err)
	simSchema, ok := schema.(*SimulationSchema)
	assert.True(t, ok)
	assert.Equal(t, 500, simSchema.NumProductionSteps)
}

func TestDecodeSchemaUnknownLayer(t *testing.T) {
	_, err := DecodeSchema("QuantumLayer", []byte(`{}`))
	assert.Error(t, err)
}

type fakeCache struct {
	items []CachedEstimation
}

func (c *fakeCache) FindEstimations(
	substanceID string,
	propertyType dataset.PropertyType,
	forceField string,
) ([]CachedEstimation, error) {
	return c.items, nil
}

func TestReweightingPicksClosestTemperature(t *testing.T) {
	ff, err := forcefield.FromXML("ff", []byte(testFFXML))
	assert.NoError(t, err)
	est := &ReweightingEstimator{Cache: &fakeCache{items: []CachedEstimation{
		{Value: 0.80, Uncertainty: 0.02, TemperatureK: 300.0},
		{Value: 0.79, Uncertainty: 0.01, TemperatureK: 298.0},
	}}}
	ans, err := est.Estimate(
		context.Background(), testProp(298.15), ff, &ReweightingSchema{})
	assert.NoError(t, err)
	assert.Equal(t, 0.79, ans.Value)
}

func TestReweightingNotApplicableOutsideTolerance(t *testing.T) {
	ff, err := forcefield.FromXML("ff", []byte(testFFXML))
	assert.NoError(t, err)
	est := &ReweightingEstimator{Cache: &fakeCache{items: []CachedEstimation{
		{Value: 0.80, Uncertainty: 0.02, TemperatureK: 350.0},
	}}}
	_, err = est.Estimate(
		context.Background(), testProp(298.15), ff, &ReweightingSchema{TemperatureToleranceK: 5})
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestSimulationEstimatorRequiresCommand(t *testing.T) {
	ff, err := forcefield.FromXML("ff", []byte(testFFXML))
	assert.NoError(t, err)
	est := &SimulationEstimator{}
	_, err = est.Estimate(context.Background(), testProp(298.15), ff, &SimulationSchema{})
	assert.Error(t, err)
}
