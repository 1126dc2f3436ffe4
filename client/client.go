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

// Package client submits property estimation requests to a running
// propeval server and polls their progress. Submission-time problems
// (invalid options, unreachable server) surface immediately; a request
// accepted by the server is afterwards observed only through result
// batch snapshots.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/czcorpus/cnc-gokit/httpclient"
	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
	"github.com/faranak1991/propeval/request"
)

const (
	idleConnTimeoutSecs = 60
	requestTimeoutSecs  = 60
)

type submission struct {
	Dataset    *dataset.DataSet   `json:"dataset"`
	ForceField *forcefield.Source `json:"forceField"`
	Options    request.Options    `json:"options"`
}

type submissionResponse struct {
	RequestID     string `json:"requestId"`
	NumProperties int    `json:"numProperties"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Client struct {
	serverAddress string
	hc            *http.Client
}

// New creates a client for a server address of the form
// "http://host:port".
func New(serverAddress string) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = httpclient.TransportMaxIdleConns
	transport.MaxConnsPerHost = httpclient.TransportMaxConnsPerHost
	transport.MaxIdleConnsPerHost = httpclient.TransportMaxIdleConnsPerHost
	transport.IdleConnTimeout = time.Duration(idleConnTimeoutSecs) * time.Second
	return &Client{
		serverAddress: serverAddress,
		hc: &http.Client{
			Timeout:   time.Duration(requestTimeoutSecs) * time.Second,
			Transport: transport,
		},
	}
}

// Submit sends a dataset, a force field source and calculation
// options to the server. Options and dataset are validated locally
// first - an unsupported layer name or an empty dataset never reaches
// the server. Transport failures are reported immediately as
// *request.ConnectionError without retrying.
func (c *Client) Submit(
	ctx context.Context,
	ds *dataset.DataSet,
	ffSource *forcefield.Source,
	opts request.Options,
) (*Handle, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, &request.ConfigurationError{Reason: "cannot submit an empty dataset"}
	}
	if err := ds.Validate(); err != nil {
		return nil, &request.ConfigurationError{Reason: err.Error()}
	}
	if ffSource == nil {
		return nil, &request.ConfigurationError{Reason: "missing force field source"}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(submission{
		Dataset:    ds,
		ForceField: ffSource,
		Options:    opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit request: %w", err)
	}
	fullURL, err := url.JoinPath(c.serverAddress, "/requests")
	if err != nil {
		return nil, fmt.Errorf("failed to submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &request.ConnectionError{Address: c.serverAddress, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeServerError(resp)
	}
	var ans submissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return nil, fmt.Errorf("failed to decode server answer: %w", err)
	}
	return &Handle{
		RequestID:     ans.RequestID,
		ServerAddress: c.serverAddress,
		client:        c,
	}, nil
}

// Handle reattaches to a previously submitted request by its id
// (e.g. one printed by an earlier CLI invocation).
func (c *Client) Handle(requestID string) *Handle {
	return &Handle{
		RequestID:     requestID,
		ServerAddress: c.serverAddress,
		client:        c,
	}
}

func (c *Client) fetchStatus(ctx context.Context, requestID string) (*request.ResultBatch, error) {
	fullURL, err := url.JoinPath(c.serverAddress, "/requests", requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch request status: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch request status: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &request.ConnectionError{Address: c.serverAddress, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeServerError(resp)
	}
	var batch request.ResultBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode result batch: %w", err)
	}
	return &batch, nil
}

func decodeServerError(resp *http.Response) error {
	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server answered with status %d", resp.StatusCode)
	}
	var ans errorResponse
	if err := json.Unmarshal(rawBody, &ans); err != nil || ans.Error == "" {
		return fmt.Errorf("server answered with status %d: %s", resp.StatusCode, rawBody)
	}
	return fmt.Errorf("server answered with status %d: %s", resp.StatusCode, ans.Error)
}
