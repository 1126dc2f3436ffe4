package store

import (
	"sort"
	"testing"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProperty(id string) dataset.PhysicalProperty {
	return dataset.PhysicalProperty{
		ID:           id,
		PropertyType: dataset.PropertyDensity,
		Phase:        dataset.PhaseLiquid,
		State:        dataset.ThermodynamicState{TemperatureK: 298.15},
		Value:        0.78,
		Substance: dataset.Substance{Components: []dataset.Component{
			{SMILES: "CCO", MoleFraction: 1},
		}},
	}
}

func openTestDB(t *testing.T) *DB {
	db, err := OpenInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func registerTestRequest(t *testing.T, db *DB, requestID string, propIDs ...string) {
	props := make([]dataset.PhysicalProperty, len(propIDs))
	for i, id := range propIDs {
		props[i] = testProperty(id)
	}
	require.NoError(t, db.RegisterRequest(RequestRecord{
		RequestID:      requestID,
		Properties:     props,
		ForceFieldJSON: []byte(`{}`),
		OptionsJSON:    []byte(`{"calculationLayers": ["SimulationLayer"]}`),
	}))
}

func TestInitialSnapshotAllQueued(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A", "B")

	batch, err := db.Snapshot("req1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, batch.QueuedIDs())
	assert.Empty(t, batch.Estimated)
	assert.Empty(t, batch.Unsuccessful)
	assert.Empty(t, batch.Exceptions)
}

func TestSnapshotUnknownRequest(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Snapshot("no-such-request")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestSnapshotPartitionsAllProperties(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A", "B", "C")
	require.NoError(t, db.ResolveEstimated("req1", "B", 0.79, 0.002, "SimulationLayer"))
	require.NoError(t, db.ResolveUnsuccessful("req1", "C", request.EvaluatorException{
		PropertyID: "C",
		Layer:      "SimulationLayer",
		Message:    "engine crashed",
	}))

	batch, err := db.Snapshot("req1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"A"}, batch.QueuedIDs())
	assert.Equal(t, []string{"B"}, batch.EstimatedIDs())
	assert.Equal(t, []string{"C"}, batch.UnsuccessfulIDs())

	allIDs := batch.AllIDs()
	sort.Strings(allIDs)
	assert.Equal(t, []string{"A", "B", "C"}, allIDs)
}

func TestResolveKeepsEstimateData(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A")
	require.NoError(t, db.ResolveEstimated("req1", "A", 0.79, 0.002, "ReweightingLayer"))

	batch, err := db.Snapshot("req1")
	assert.NoError(t, err)
	require.Len(t, batch.Estimated, 1)
	assert.Equal(t, 0.79, batch.Estimated[0].EstimatedValue)
	assert.Equal(t, 0.002, batch.Estimated[0].EstimatedUncertainty)
	assert.Equal(t, "ReweightingLayer", batch.Estimated[0].Layer)
	// the originally submitted measurement stays untouched
	assert.Equal(t, 0.78, batch.Estimated[0].Value)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A")
	require.NoError(t, db.ResolveEstimated("req1", "A", 0.79, 0.002, "SimulationLayer"))

	err := db.ResolveUnsuccessful("req1", "A", request.EvaluatorException{
		PropertyID: "A", Message: "late failure",
	})
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	err = db.ResolveEstimated("req1", "A", 0.81, 0.003, "SimulationLayer")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	batch, err := db.Snapshot("req1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"A"}, batch.EstimatedIDs())
	assert.Equal(t, 0.79, batch.Estimated[0].EstimatedValue)
	assert.Empty(t, batch.Exceptions)
}

func TestSnapshotIdempotent(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A", "B")
	require.NoError(t, db.ResolveEstimated("req1", "A", 0.79, 0.002, "SimulationLayer"))

	batch1, err := db.Snapshot("req1")
	assert.NoError(t, err)
	batch2, err := db.Snapshot("req1")
	assert.NoError(t, err)
	assert.Equal(t, batch1, batch2)
}

func TestExceptionRecordedForUnsuccessful(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A", "B")
	require.NoError(t, db.ResolveEstimated("req1", "A", 0.79, 0.002, "SimulationLayer"))
	require.NoError(t, db.ResolveUnsuccessful("req1", "B", request.EvaluatorException{
		PropertyID: "B",
		Layer:      "SimulationLayer",
		Message:    "engine crashed",
	}))

	batch, err := db.Snapshot("req1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"A"}, batch.EstimatedIDs())
	assert.Equal(t, []string{"B"}, batch.UnsuccessfulIDs())
	require.Len(t, batch.Exceptions, 1)
	assert.Equal(t, "B", batch.Exceptions[0].PropertyID)
}

func TestPendingProperties(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A", "B")
	require.NoError(t, db.ResolveEstimated("req1", "A", 0.79, 0.002, "SimulationLayer"))

	pending, err := db.PendingProperties("req1")
	assert.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "B", pending[0].ID)
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A", "B")

	meta, err := db.Meta("req1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, meta.PropertyOrder)
	assert.Equal(t, []byte(`{}`), meta.ForceFieldJSON)
}

func TestRequestsAreIsolated(t *testing.T) {
	db := openTestDB(t)
	registerTestRequest(t, db, "req1", "A")
	registerTestRequest(t, db, "req2", "A")
	require.NoError(t, db.ResolveEstimated("req1", "A", 0.79, 0.002, "SimulationLayer"))

	batch, err := db.Snapshot("req2")
	assert.NoError(t, err)
	assert.Equal(t, []string{"A"}, batch.QueuedIDs())
}
