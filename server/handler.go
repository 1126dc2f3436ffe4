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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/faranak1991/propeval/backend"
	"github.com/faranak1991/propeval/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (api *apiServer) handleVersion(ctx *gin.Context) {
	uniresp.WriteJSONResponse(ctx.Writer, api.version)
}

// handleSubmit validates a submission, registers its properties in
// the queued state and hands the request over to the compute backend.
// It answers as soon as the request is registered - never waits for
// any estimation work.
func (api *apiServer) handleSubmit(ctx *gin.Context) {
	var req submission
	if err := ctx.BindJSON(&req); err != nil {
		uniresp.RespondWithErrorJSON(
			ctx, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}
	if req.Dataset == nil || req.Dataset.Len() == 0 {
		uniresp.RespondWithErrorJSON(
			ctx, fmt.Errorf("invalid request: empty dataset"), http.StatusUnprocessableEntity)
		return
	}
	if err := req.Dataset.Validate(); err != nil {
		uniresp.RespondWithErrorJSON(
			ctx, fmt.Errorf("invalid request: %w", err), http.StatusUnprocessableEntity)
		return
	}
	if req.ForceField == nil {
		uniresp.RespondWithErrorJSON(
			ctx, fmt.Errorf("invalid request: missing force field"), http.StatusUnprocessableEntity)
		return
	}
	if err := req.Options.Validate(); err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusUnprocessableEntity)
		return
	}

	ffJSON, err := json.Marshal(req.ForceField)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	optsJSON, err := json.Marshal(req.Options)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}

	requestID := uuid.New().String()
	err = api.db.RegisterRequest(store.RequestRecord{
		RequestID:      requestID,
		Properties:     req.Dataset.Properties,
		ForceFieldJSON: ffJSON,
		OptionsJSON:    optsJSON,
	})
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	if err := api.backend.Enqueue(requestID); err != nil {
		if errors.Is(err, backend.ErrQueueFull) {
			uniresp.RespondWithErrorJSON(ctx, err, http.StatusServiceUnavailable)
			return
		}
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	log.Info().
		Str("requestId", requestID).
		Int("numProperties", req.Dataset.Len()).
		Str("forceField", req.ForceField.Label()).
		Strs("layers", req.Options.CalculationLayers).
		Msg("accepted estimation request")
	uniresp.WriteJSONResponse(ctx.Writer, submissionResponse{
		RequestID:     requestID,
		NumProperties: req.Dataset.Len(),
	})
}

// handleStatus answers the current result batch of a request. The
// operation is read-only - polling it repeatedly with no intervening
// progress returns identical snapshots.
func (api *apiServer) handleStatus(ctx *gin.Context) {
	batch, err := api.db.Snapshot(ctx.Param("requestId"))
	if err == store.ErrRequestNotFound {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusNotFound)
		return

	} else if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, batch)
}
