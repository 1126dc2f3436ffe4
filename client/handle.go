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

package client

import (
	"context"
	"time"

	"github.com/faranak1991/propeval/request"
)

const dfltPollingInterval = 5 * time.Second

// Handle represents a submitted, in-flight estimation request. It is
// immutable; all progress is observed through Results. There is no
// cancellation primitive - cancelling the polling context abandons
// the wait, not the server-side work.
type Handle struct {
	RequestID     string
	ServerAddress string
	client        *Client
}

// Results fetches the current result batch of the request. With
// synchronous set to false it returns the snapshot immediately, which
// may still contain queued properties. With synchronous set to true
// it re-queries the server every pollingInterval until no property
// remains queued, returning the final batch. The wait is bounded only
// by ctx - attach a deadline to it if one is needed.
func (h *Handle) Results(
	ctx context.Context,
	synchronous bool,
	pollingInterval time.Duration,
) (*request.ResultBatch, error) {
	batch, err := h.client.fetchStatus(ctx, h.RequestID)
	if err != nil {
		return nil, err
	}
	if !synchronous || batch.Done() {
		return batch, nil
	}
	if pollingInterval <= 0 {
		pollingInterval = dfltPollingInterval
	}
	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			batch, err = h.client.fetchStatus(ctx, h.RequestID)
			if err != nil {
				return nil, err
			}
			if batch.Done() {
				return batch, nil
			}
		}
	}
}
