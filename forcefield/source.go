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

package forcefield

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Format string

const (
	// FormatSMIRNOFF is a SMIRKS-native tagged XML parameter set
	FormatSMIRNOFF Format = "SMIRNOFF"
)

// Source identifies a force-field parameter set. Instances are
// immutable once constructed; the parameter payload itself is
// carried opaquely and interpreted only by the external
// parametrization engine.
type Source struct {
	label  string
	format Format
	data   []byte
}

func (src *Source) Label() string {
	return src.label
}

func (src *Source) Format() Format {
	return src.format
}

// Data returns a copy of the raw parameter payload.
func (src *Source) Data() []byte {
	ans := make([]byte, len(src.data))
	copy(ans, src.data)
	return ans
}

type sourceJSON struct {
	Label  string `json:"label"`
	Format Format `json:"format"`
	Data   []byte `json:"data"`
}

func (src *Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(sourceJSON{
		Label:  src.label,
		Format: src.format,
		Data:   src.data,
	})
}

func (src *Source) UnmarshalJSON(data []byte) error {
	var tmp sourceJSON
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	src.label = tmp.Label
	src.format = tmp.Format
	src.data = tmp.Data
	return nil
}

func sniffSMIRNOFF(data []byte) bool {
	return bytes.Contains(data, []byte("<SMIRNOFF"))
}

// FromXML constructs a source from an in-memory SMIRNOFF XML document.
func FromXML(label string, data []byte) (*Source, error) {
	if !sniffSMIRNOFF(data) {
		return nil, fmt.Errorf("force field %s: not a SMIRNOFF document", label)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return &Source{label: label, format: FormatSMIRNOFF, data: payload}, nil
}

// FromFile loads a SMIRNOFF ".offxml" file. The file's base name
// (without suffix) becomes the source label.
func FromFile(path string) (*Source, error) {
	rawData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load force field: %w", err)
	}
	label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ans, err := FromXML(label, rawData)
	if err != nil {
		return nil, fmt.Errorf("failed to load force field: %w", err)
	}
	return ans, nil
}
