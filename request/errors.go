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

import "fmt"

// ConfigurationError reports invalid or unsupported request options
// detected before any estimation work starts. It is never retried.
type ConfigurationError struct {
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (err *ConfigurationError) Error() string {
	if err.Suggestion != "" {
		return fmt.Sprintf("invalid request options: %s (%s)", err.Reason, err.Suggestion)
	}
	return fmt.Sprintf("invalid request options: %s", err.Reason)
}

// ConnectionError reports a transport failure reaching the server.
// It is surfaced immediately at submit or poll time without retrying.
type ConnectionError struct {
	Address string
	Err     error
}

func (err *ConnectionError) Error() string {
	return fmt.Sprintf("failed to reach evaluation server at %s: %s", err.Address, err.Err)
}

func (err *ConnectionError) Unwrap() error {
	return err.Err
}

// EvaluatorException records a framework-level failure raised while
// estimating a single property. The affected property moves to the
// unsuccessful bucket; its siblings are not affected.
type EvaluatorException struct {
	PropertyID string `json:"propertyId" msgpack:"propertyId"`
	Layer      string `json:"layer,omitempty" msgpack:"layer"`
	Message    string `json:"message" msgpack:"message"`
}

func (exc EvaluatorException) Error() string {
	return fmt.Sprintf("property %s: %s", exc.PropertyID, exc.Message)
}
