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

package dataset

import (
	"fmt"
	"sort"
	"strings"
)

type PropertyType string

const (
	PropertyDensity            PropertyType = "Density"
	PropertyEnthalpyOfMixing   PropertyType = "EnthalpyOfMixing"
	PropertyExcessMolarVolume  PropertyType = "ExcessMolarVolume"
	PropertyDielectricConstant PropertyType = "DielectricConstant"
)

type Phase string

const (
	PhaseLiquid Phase = "Liquid"
	PhaseGas    Phase = "Gas"
)

type ComponentRole string

const (
	RoleSolvent ComponentRole = "Solvent"
	RoleSolute  ComponentRole = "Solute"
)

// Component is a single chemical species within a substance,
// identified by its SMILES pattern.
type Component struct {
	SMILES       string        `json:"smiles" msgpack:"smiles"`
	MoleFraction float64       `json:"moleFraction" msgpack:"moleFraction"`
	Role         ComponentRole `json:"role,omitempty" msgpack:"role"`
}

// Substance references one or more molecular components with their
// amounts. The zero value is not a valid substance.
type Substance struct {
	Components []Component `json:"components" msgpack:"components"`
}

// Identifier produces a stable textual identity of the substance,
// independent of the order in which components were added.
func (s Substance) Identifier() string {
	chunks := make([]string, len(s.Components))
	for i, c := range s.Components {
		chunks[i] = fmt.Sprintf("%s{%g}", c.SMILES, c.MoleFraction)
	}
	sort.Strings(chunks)
	return strings.Join(chunks, "|")
}

func (s Substance) NumComponents() int {
	return len(s.Components)
}

func (s Substance) Validate() error {
	if len(s.Components) == 0 {
		return fmt.Errorf("substance has no components")
	}
	var total float64
	for _, c := range s.Components {
		if c.SMILES == "" {
			return fmt.Errorf("substance component without a SMILES pattern")
		}
		if c.MoleFraction <= 0 || c.MoleFraction > 1 {
			return fmt.Errorf(
				"component %s: mole fraction %g out of range (0, 1]", c.SMILES, c.MoleFraction)
		}
		total += c.MoleFraction
	}
	if total < 0.999 || total > 1.001 {
		return fmt.Errorf("substance mole fractions sum to %g, expected 1", total)
	}
	return nil
}

// ThermodynamicState captures the conditions a property was
// measured (or is to be estimated) at. Pressure may be zero
// for properties where it does not apply.
type ThermodynamicState struct {
	TemperatureK float64 `json:"temperatureK" msgpack:"temperatureK"`
	PressureKPa  float64 `json:"pressureKPa,omitempty" msgpack:"pressureKPa"`
}

// PhysicalProperty is a single measured data point of a dataset.
// Uncertainty is optional - a nil value means the source did not
// report one.
type PhysicalProperty struct {
	ID           string             `json:"id" msgpack:"id"`
	PropertyType PropertyType       `json:"propertyType" msgpack:"propertyType"`
	Phase        Phase              `json:"phase" msgpack:"phase"`
	State        ThermodynamicState `json:"state" msgpack:"state"`
	Value        float64            `json:"value" msgpack:"value"`
	Uncertainty  *float64           `json:"uncertainty,omitempty" msgpack:"uncertainty"`
	Substance    Substance          `json:"substance" msgpack:"substance"`
	Source       string             `json:"source,omitempty" msgpack:"source"`
}

func (p PhysicalProperty) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("property without an id")
	}
	if p.PropertyType == "" {
		return fmt.Errorf("property %s: missing property type", p.ID)
	}
	if p.State.TemperatureK <= 0 {
		return fmt.Errorf("property %s: non-positive temperature", p.ID)
	}
	if err := p.Substance.Validate(); err != nil {
		return fmt.Errorf("property %s: %w", p.ID, err)
	}
	return nil
}
