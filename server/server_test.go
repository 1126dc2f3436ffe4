package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faranak1991/propeval/backend"
	"github.com/faranak1991/propeval/cnf"
	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
	"github.com/faranak1991/propeval/layers"
	"github.com/faranak1991/propeval/request"
	"github.com/faranak1991/propeval/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFFXML = `<SMIRNOFF version="0.3"></SMIRNOFF>`

// stubEstimator resolves properties without any external engine:
// properties whose id starts with "fail" raise an error.
type stubEstimator struct{}

func (e stubEstimator) Estimate(
	ctx context.Context,
	prop dataset.PhysicalProperty,
	ffSource *forcefield.Source,
	schema layers.Schema,
) (layers.Estimate, error) {
	if len(prop.ID) >= 4 && prop.ID[:4] == "fail" {
		return layers.Estimate{}, fmt.Errorf("engine crashed")
	}
	return layers.Estimate{Value: prop.Value + 0.01, Uncertainty: 0.002}, nil
}

type testEnv struct {
	api    *apiServer
	engine *gin.Engine
}

func newTestEnv(t *testing.T, startBackend bool) *testEnv {
	db, err := store.OpenInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bConf := cnf.BackendConf{NumWorkers: 1, EnqueueBufferSize: 8}
	computeBackend := backend.New(bConf, db, nil, func(workerEnv []string) backend.EstimatorSet {
		return backend.EstimatorSet{layers.LayerSimulation: stubEstimator{}}
	})
	if startBackend {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		computeBackend.Start(ctx)
	}

	api := &apiServer{
		conf:    &cnf.Conf{},
		version: map[string]string{"version": "test"},
		db:      db,
		backend: computeBackend,
	}
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/requests", api.handleSubmit)
	engine.GET("/requests/:requestId", api.handleStatus)
	return &testEnv{api: api, engine: engine}
}

func testSubmission(t *testing.T, propIDs ...string) []byte {
	ds := &dataset.DataSet{}
	for _, id := range propIDs {
		ds.Properties = append(ds.Properties, dataset.PhysicalProperty{
			ID:           id,
			PropertyType: dataset.PropertyDensity,
			Phase:        dataset.PhaseLiquid,
			State:        dataset.ThermodynamicState{TemperatureK: 298.15},
			Value:        0.78,
			Substance: dataset.Substance{Components: []dataset.Component{
				{SMILES: "CCO", MoleFraction: 1},
			}},
		})
	}
	ff, err := forcefield.FromXML("openff-2.1.0", []byte(testFFXML))
	require.NoError(t, err)
	opts := request.Options{CalculationLayers: []string{layers.LayerSimulation}}
	opts.AddSchema(layers.LayerSimulation, dataset.PropertyDensity, &layers.SimulationSchema{})
	body, err := json.Marshal(submission{Dataset: ds, ForceField: ff, Options: opts})
	require.NoError(t, err)
	return body
}

func (env *testEnv) submit(t *testing.T, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) status(t *testing.T, requestID string) (*request.ResultBatch, int) {
	req := httptest.NewRequest(http.MethodGet, "/requests/"+requestID, nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		return nil, rec.Code
	}
	var batch request.ResultBatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	return &batch, rec.Code
}

func TestSubmitRegistersAllPropertiesQueued(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.submit(t, testSubmission(t, "A", "B"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 2, resp.NumProperties)

	batch, code := env.status(t, resp.RequestID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"A", "B"}, batch.QueuedIDs())
	assert.Empty(t, batch.EstimatedIDs())
	assert.Empty(t, batch.UnsuccessfulIDs())
	assert.Empty(t, batch.Exceptions)
}

func TestSubmitRejectsEmptyDataset(t *testing.T) {
	env := newTestEnv(t, false)
	ff, err := forcefield.FromXML("ff", []byte(testFFXML))
	require.NoError(t, err)
	body, err := json.Marshal(submission{
		Dataset:    &dataset.DataSet{},
		ForceField: ff,
		Options:    request.Options{CalculationLayers: []string{layers.LayerSimulation}},
	})
	require.NoError(t, err)
	rec := env.submit(t, body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitRejectsEmptyLayerList(t *testing.T) {
	env := newTestEnv(t, false)
	body := testSubmission(t, "A")
	var req submission
	require.NoError(t, json.Unmarshal(body, &req))
	req.Options = request.Options{}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rec := env.submit(t, body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatusUnknownRequest(t *testing.T) {
	env := newTestEnv(t, false)
	_, code := env.status(t, "no-such-request")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBackendResolvesProperties(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.submit(t, testSubmission(t, "A", "failB"))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Eventually(t, func() bool {
		batch, code := env.status(t, resp.RequestID)
		return code == http.StatusOK && batch.Done()
	}, 5*time.Second, 10*time.Millisecond)

	batch, code := env.status(t, resp.RequestID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"A"}, batch.EstimatedIDs())
	assert.Equal(t, []string{"failB"}, batch.UnsuccessfulIDs())
	require.Len(t, batch.Exceptions, 1)
	assert.Equal(t, "failB", batch.Exceptions[0].PropertyID)
	assert.InDelta(t, 0.79, batch.Estimated[0].EstimatedValue, 1e-9)
}

func TestStatusIdempotentWithoutProgress(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.submit(t, testSubmission(t, "A", "B"))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	batch1, _ := env.status(t, resp.RequestID)
	batch2, _ := env.status(t, resp.RequestID)
	assert.Equal(t, batch1, batch2)
}
