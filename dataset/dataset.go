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
	"encoding/json"
	"fmt"
	"os"
)

// DataSet is an ordered collection of physical properties.
// Property ids must be unique within a dataset (see Validate).
type DataSet struct {
	Properties []PhysicalProperty `json:"properties"`
}

func (ds *DataSet) Len() int {
	return len(ds.Properties)
}

func (ds *DataSet) PropertyIDs() []string {
	ans := make([]string, len(ds.Properties))
	for i, p := range ds.Properties {
		ans[i] = p.ID
	}
	return ans
}

func (ds *DataSet) Validate() error {
	known := make(map[string]bool, len(ds.Properties))
	for _, p := range ds.Properties {
		if err := p.Validate(); err != nil {
			return err
		}
		if known[p.ID] {
			return fmt.Errorf("duplicate property id: %s", p.ID)
		}
		known[p.ID] = true
	}
	return nil
}

// FilterByPropertyType produces a new dataset containing only
// properties of the listed types. Property order is preserved.
func (ds *DataSet) FilterByPropertyType(types ...PropertyType) *DataSet {
	wanted := make(map[PropertyType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	ans := &DataSet{Properties: make([]PhysicalProperty, 0, len(ds.Properties))}
	for _, p := range ds.Properties {
		if wanted[p.PropertyType] {
			ans.Properties = append(ans.Properties, p)
		}
	}
	return ans
}

// FilterByNComponents produces a new dataset containing only
// properties whose substance has one of the listed component counts
// (e.g. 1 for pure substances, 2 for binary mixtures).
func (ds *DataSet) FilterByNComponents(counts ...int) *DataSet {
	wanted := make(map[int]bool, len(counts))
	for _, c := range counts {
		wanted[c] = true
	}
	ans := &DataSet{Properties: make([]PhysicalProperty, 0, len(ds.Properties))}
	for _, p := range ds.Properties {
		if wanted[p.Substance.NumComponents()] {
			ans.Properties = append(ans.Properties, p)
		}
	}
	return ans
}

func FromJSON(data []byte) (*DataSet, error) {
	var ds DataSet
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return &ds, nil
}

func (ds *DataSet) ToJSON() ([]byte, error) {
	ans, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	return ans, nil
}

// LoadFromJSONFile loads and validates a dataset from a JSON file
func LoadFromJSONFile(path string) (*DataSet, error) {
	rawData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	ans, err := FromJSON(rawData)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return ans, nil
}

// SaveToJSONFile saves the dataset to a JSON file
func (ds *DataSet) SaveToJSONFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ds); err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}
