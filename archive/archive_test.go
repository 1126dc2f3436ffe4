package archive

import (
	"path/filepath"
	"testing"

	"github.com/faranak1991/propeval/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "archive.sqlite"))
	require.NoError(t, err)
	require.NoError(t, db.Init())
	t.Cleanup(func() { db.Close() })
	return db
}

func testEstimation(propID string, substance string, tempK float64) Estimation {
	return Estimation{
		RequestID:            "req1",
		PropertyID:           propID,
		PropertyType:         dataset.PropertyDensity,
		SubstanceID:          substance,
		ForceField:           "openff-2.1.0",
		TemperatureK:         tempK,
		PressureKPa:          101.325,
		MeasuredValue:        0.78,
		EstimatedValue:       0.79,
		EstimatedUncertainty: 0.002,
		Layer:                "SimulationLayer",
	}
}

func TestInitIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Init())
}

func TestAddAndGetAll(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AddEstimation(testEstimation("A", "CCO{1}", 298.15)))
	require.NoError(t, db.AddEstimation(testEstimation("B", "O{1}", 300.0)))

	recs, err := db.GetAllEstimations(ListFilter{})
	assert.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestGetAllFilterByPropertyType(t *testing.T) {
	db := openTestDB(t)
	rec := testEstimation("A", "CCO{1}", 298.15)
	require.NoError(t, db.AddEstimation(rec))
	rec2 := testEstimation("B", "CCO{0.5}|O{0.5}", 298.15)
	rec2.PropertyType = dataset.PropertyEnthalpyOfMixing
	require.NoError(t, db.AddEstimation(rec2))

	recs, err := db.GetAllEstimations(ListFilter{PropertyType: dataset.PropertyDensity})
	assert.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, "A", recs[0].PropertyID)
}

func TestUndefinedMeasuredUncertaintySurvives(t *testing.T) {
	db := openTestDB(t)
	rec := testEstimation("A", "CCO{1}", 298.15)
	rec.MeasuredUncertainty = nil
	require.NoError(t, db.AddEstimation(rec))

	recs, err := db.GetAllEstimations(ListFilter{})
	assert.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].MeasuredUncertainty)
}

func TestFindEstimationsMatchesSubstanceAndFF(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AddEstimation(testEstimation("A", "CCO{1}", 298.15)))
	require.NoError(t, db.AddEstimation(testEstimation("B", "O{1}", 298.15)))
	other := testEstimation("C", "CCO{1}", 298.15)
	other.ForceField = "openff-1.0.0"
	require.NoError(t, db.AddEstimation(other))

	found, err := db.FindEstimations("CCO{1}", dataset.PropertyDensity, "openff-2.1.0")
	assert.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 298.15, found[0].TemperatureK)
	assert.Equal(t, 0.79, found[0].Value)
}
