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

// Package backend runs the local compute backend - a worker pool
// resolving queued properties of submitted requests via the
// configured calculation layers. It intentionally implements no
// scheduling policy beyond FIFO per request and no retries; a failed
// property is reported, not re-run.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/faranak1991/propeval/archive"
	"github.com/faranak1991/propeval/cnf"
	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
	"github.com/faranak1991/propeval/layers"
	"github.com/faranak1991/propeval/request"
	"github.com/faranak1991/propeval/store"
	"github.com/rs/zerolog/log"
)

// ErrQueueFull is returned by Enqueue when the backend cannot accept
// more work without blocking the submitter.
var ErrQueueFull = errors.New("backend queue is full")

// EstimatorSet maps calculation layer names to their estimators.
// A worker receives its own set so that per-worker resources (GPU
// pinning) do not leak between workers.
type EstimatorSet map[string]layers.Estimator

// EstimatorFactory builds the estimator set of a single worker.
// workerEnv carries worker-specific environment entries (e.g.
// CUDA_VISIBLE_DEVICES) for estimators launching external processes.
type EstimatorFactory func(workerEnv []string) EstimatorSet

// DefaultEstimatorFactory wires the built-in layers: reweighting from
// the archive of finished estimations and direct simulation via the
// configured external engine command.
func DefaultEstimatorFactory(conf cnf.BackendConf, cache layers.EstimationCache) EstimatorFactory {
	return func(workerEnv []string) EstimatorSet {
		return EstimatorSet{
			layers.LayerReweighting: &layers.ReweightingEstimator{Cache: cache},
			layers.LayerSimulation: &layers.SimulationEstimator{
				Command:  conf.SimulationCommand,
				ExtraEnv: workerEnv,
			},
		}
	}
}

// Local is an in-process compute backend.
type Local struct {
	conf      cnf.BackendConf
	db        *store.DB
	archiveDB *archive.Database
	factory   EstimatorFactory
	queue     chan string
	wg        sync.WaitGroup
}

func New(
	conf cnf.BackendConf,
	db *store.DB,
	archiveDB *archive.Database,
	factory EstimatorFactory,
) *Local {
	return &Local{
		conf:      conf,
		db:        db,
		archiveDB: archiveDB,
		factory:   factory,
		queue:     make(chan string, conf.EnqueueBufferSize),
	}
}

// Enqueue hands a registered request over to the worker pool. It
// never blocks; when the queue is saturated, ErrQueueFull is returned
// and the request stays queued in the store untouched.
func (b *Local) Enqueue(requestID string) error {
	select {
	case b.queue <- requestID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *Local) workerEnv(workerIdx int) []string {
	if len(b.conf.GPUDevices) == 0 {
		return nil
	}
	device := b.conf.GPUDevices[workerIdx%len(b.conf.GPUDevices)]
	return []string{fmt.Sprintf("CUDA_VISIBLE_DEVICES=%d", device)}
}

func (b *Local) Start(ctx context.Context) {
	log.Info().
		Int("numWorkers", b.conf.NumWorkers).
		Ints("gpuDevices", b.conf.GPUDevices).
		Msg("starting compute backend")
	for i := 0; i < b.conf.NumWorkers; i++ {
		estimators := b.factory(b.workerEnv(i))
		b.wg.Add(1)
		go func(workerIdx int, estimators EstimatorSet) {
			defer b.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case requestID := <-b.queue:
					if err := b.processRequest(ctx, requestID, estimators); err != nil {
						log.Error().
							Err(err).
							Str("requestId", requestID).
							Int("worker", workerIdx).
							Msg("failed to process request")
					}
				}
			}
		}(i, estimators)
	}
}

func (b *Local) Stop(ctx context.Context) error {
	log.Warn().Msg("shutting down compute backend")
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop backend: %w", ctx.Err())
	}
}

func (b *Local) processRequest(
	ctx context.Context,
	requestID string,
	estimators EstimatorSet,
) error {
	meta, err := b.db.Meta(requestID)
	if err != nil {
		return fmt.Errorf("failed to load request meta: %w", err)
	}
	var ffSource forcefield.Source
	if err := json.Unmarshal(meta.ForceFieldJSON, &ffSource); err != nil {
		return fmt.Errorf("failed to decode request force field: %w", err)
	}
	var opts request.Options
	if err := json.Unmarshal(meta.OptionsJSON, &opts); err != nil {
		return fmt.Errorf("failed to decode request options: %w", err)
	}
	pending, err := b.db.PendingProperties(requestID)
	if err != nil {
		return fmt.Errorf("failed to list pending properties: %w", err)
	}
	for _, prop := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.resolveProperty(ctx, requestID, prop, &ffSource, opts, estimators)
	}
	return nil
}

// resolveProperty walks the calculation layers in preference order
// until one produces an estimate. Failures are isolated per property;
// a property no layer could estimate ends up unsuccessful with an
// exception attached.
func (b *Local) resolveProperty(
	ctx context.Context,
	requestID string,
	prop dataset.PhysicalProperty,
	ffSource *forcefield.Source,
	opts request.Options,
	estimators EstimatorSet,
) {
	var lastExc *request.EvaluatorException
	for _, layerName := range opts.CalculationLayers {
		estimator, ok := estimators[layerName]
		if !ok {
			continue
		}
		schema := opts.SchemaFor(layerName, prop.PropertyType)
		if schema == nil {
			continue
		}
		ans, err := estimator.Estimate(ctx, prop, ffSource, schema)
		if errors.Is(err, layers.ErrNotApplicable) {
			continue

		} else if err != nil {
			log.Warn().
				Err(err).
				Str("requestId", requestID).
				Str("propertyId", prop.ID).
				Str("layer", layerName).
				Msg("layer failed to estimate property")
			lastExc = &request.EvaluatorException{
				PropertyID: prop.ID,
				Layer:      layerName,
				Message:    err.Error(),
			}
			continue
		}

		if err := b.db.ResolveEstimated(
			requestID, prop.ID, ans.Value, ans.Uncertainty, layerName,
		); err != nil {
			log.Error().
				Err(err).
				Str("requestId", requestID).
				Str("propertyId", prop.ID).
				Msg("failed to store estimate")
			return
		}
		b.archiveEstimation(requestID, prop, ffSource, ans, layerName)
		return
	}

	exc := request.EvaluatorException{
		PropertyID: prop.ID,
		Message:    "no calculation layer was able to estimate the property",
	}
	if lastExc != nil {
		exc = *lastExc
	}
	if err := b.db.ResolveUnsuccessful(requestID, prop.ID, exc); err != nil {
		log.Error().
			Err(err).
			Str("requestId", requestID).
			Str("propertyId", prop.ID).
			Msg("failed to store failure")
	}
}

func (b *Local) archiveEstimation(
	requestID string,
	prop dataset.PhysicalProperty,
	ffSource *forcefield.Source,
	ans layers.Estimate,
	layerName string,
) {
	if b.archiveDB == nil {
		return
	}
	err := b.archiveDB.AddEstimation(archive.Estimation{
		RequestID:            requestID,
		PropertyID:           prop.ID,
		PropertyType:         prop.PropertyType,
		SubstanceID:          prop.Substance.Identifier(),
		ForceField:           ffSource.Label(),
		TemperatureK:         prop.State.TemperatureK,
		PressureKPa:          prop.State.PressureKPa,
		MeasuredValue:        prop.Value,
		MeasuredUncertainty:  prop.Uncertainty,
		EstimatedValue:       ans.Value,
		EstimatedUncertainty: ans.Uncertainty,
		Layer:                layerName,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("propertyId", prop.ID).
			Msg("failed to archive estimation")
	}
}
