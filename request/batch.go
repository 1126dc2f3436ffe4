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

package request

import "github.com/faranak1991/propeval/dataset"

// EstimatedProperty is a resolved property carrying the estimate next
// to the originally submitted measurement.
type EstimatedProperty struct {
	dataset.PhysicalProperty
	EstimatedValue       float64 `json:"estimatedValue" msgpack:"estimatedValue"`
	EstimatedUncertainty float64 `json:"estimatedUncertainty" msgpack:"estimatedUncertainty"`
	Layer                string  `json:"layer" msgpack:"layer"`
}

// ResultBatch is a snapshot of a request's progress. The three
// property sequences are disjoint and together cover exactly the
// submitted property ids; Exceptions lists per-property failures
// recorded so far.
type ResultBatch struct {
	RequestID    string                     `json:"requestId"`
	Queued       []dataset.PhysicalProperty `json:"queuedProperties"`
	Estimated    []EstimatedProperty        `json:"estimatedProperties"`
	Unsuccessful []dataset.PhysicalProperty `json:"unsuccessfulProperties"`
	Exceptions   []EvaluatorException       `json:"exceptions"`
}

// Done reports whether every property has reached a terminal state.
func (batch *ResultBatch) Done() bool {
	return len(batch.Queued) == 0
}

func (batch *ResultBatch) QueuedIDs() []string {
	ans := make([]string, len(batch.Queued))
	for i, p := range batch.Queued {
		ans[i] = p.ID
	}
	return ans
}

func (batch *ResultBatch) EstimatedIDs() []string {
	ans := make([]string, len(batch.Estimated))
	for i, p := range batch.Estimated {
		ans[i] = p.ID
	}
	return ans
}

func (batch *ResultBatch) UnsuccessfulIDs() []string {
	ans := make([]string, len(batch.Unsuccessful))
	for i, p := range batch.Unsuccessful {
		ans[i] = p.ID
	}
	return ans
}

// AllIDs returns the ids of all properties in the snapshot regardless
// of state.
func (batch *ResultBatch) AllIDs() []string {
	ans := make([]string, 0, len(batch.Queued)+len(batch.Estimated)+len(batch.Unsuccessful))
	ans = append(ans, batch.QueuedIDs()...)
	ans = append(ans, batch.EstimatedIDs()...)
	ans = append(ans, batch.UnsuccessfulIDs()...)
	return ans
}
