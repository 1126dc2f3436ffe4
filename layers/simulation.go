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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
)

const (
	dfltNumEquilibrationSteps = 100000
	dfltNumProductionSteps    = 1000000
	dfltTimestepFs            = 2.0
)

// SimulationSchema configures the direct-simulation layer. Zero
// values are replaced by defaults suited for liquid-phase density
// estimation.
type SimulationSchema struct {
	NumMolecules          int     `json:"numMolecules"`
	NumEquilibrationSteps int     `json:"numEquilibrationSteps"`
	NumProductionSteps    int     `json:"numProductionSteps"`
	TimestepFs            float64 `json:"timestepFs"`
}

func (s *SimulationSchema) LayerName() string {
	return LayerSimulation
}

func (s *SimulationSchema) AppliesTo(pt dataset.PropertyType) bool {
	// direct simulation can target any supported property type
	return pt != ""
}

func (s *SimulationSchema) Validate() error {
	if s.NumEquilibrationSteps < 0 || s.NumProductionSteps < 0 {
		return fmt.Errorf("simulation schema: negative step count")
	}
	if s.TimestepFs < 0 {
		return fmt.Errorf("simulation schema: negative timestep")
	}
	return nil
}

func (s *SimulationSchema) withDefaults() *SimulationSchema {
	ans := *s
	if ans.NumMolecules == 0 {
		ans.NumMolecules = 1000
	}
	if ans.NumEquilibrationSteps == 0 {
		ans.NumEquilibrationSteps = dfltNumEquilibrationSteps
	}
	if ans.NumProductionSteps == 0 {
		ans.NumProductionSteps = dfltNumProductionSteps
	}
	if ans.TimestepFs == 0 {
		ans.TimestepFs = dfltTimestepFs
	}
	return &ans
}

// engineRequest is the JSON document piped to the external
// simulation engine's stdin.
type engineRequest struct {
	Property   dataset.PhysicalProperty `json:"property"`
	ForceField json.RawMessage          `json:"forceField"`
	Schema     *SimulationSchema        `json:"schema"`
}

// SimulationEstimator bridges the simulation layer to an external
// engine process. The engine receives the property, force field and
// schema as JSON on stdin and must answer with an Estimate JSON
// document on stdout.
type SimulationEstimator struct {
	Command string

	// ExtraEnv is appended to the engine process environment.
	// The backend uses it to pin workers to GPU devices.
	ExtraEnv []string
}

func (e *SimulationEstimator) Estimate(
	ctx context.Context,
	prop dataset.PhysicalProperty,
	ffSource *forcefield.Source,
	schema Schema,
) (Estimate, error) {
	if e.Command == "" {
		return Estimate{}, fmt.Errorf("no simulation engine configured")
	}
	simSchema, ok := schema.(*SimulationSchema)
	if !ok {
		return Estimate{}, fmt.Errorf("simulation layer received a foreign schema type")
	}
	ffJSON, err := json.Marshal(ffSource)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to run simulation engine: %w", err)
	}
	input, err := json.Marshal(engineRequest{
		Property:   prop,
		ForceField: ffJSON,
		Schema:     simSchema.withDefaults(),
	})
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to run simulation engine: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Command)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), e.ExtraEnv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Estimate{}, fmt.Errorf(
			"simulation engine failed for property %s: %w (%s)",
			prop.ID, err, stderr.String())
	}
	var ans Estimate
	if err := json.Unmarshal(stdout.Bytes(), &ans); err != nil {
		return Estimate{}, fmt.Errorf(
			"failed to decode simulation engine answer for property %s: %w", prop.ID, err)
	}
	return ans, nil
}
