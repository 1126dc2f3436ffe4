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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/faranak1991/propeval/analysis"
	"github.com/faranak1991/propeval/client"
	"github.com/faranak1991/propeval/cnf"
	"github.com/faranak1991/propeval/dataset"
	"github.com/faranak1991/propeval/forcefield"
	"github.com/faranak1991/propeval/request"
	"github.com/faranak1991/propeval/server"
)

const errColor = color.FgHiRed

func runActionServer(conf *cnf.Conf, version VersionInfo) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	server.Run(ctx, conf, version)
}

func runActionSubmit(serverURL, layersArg, datasetPath, ffPath string) {
	ds, err := dataset.LoadFromJSONFile(datasetPath)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorInvalidInput)
	}
	ffSource, err := forcefield.FromFile(ffPath)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorInvalidInput)
	}

	presentTypes := make(map[dataset.PropertyType]bool)
	types := make([]dataset.PropertyType, 0, 4)
	for _, p := range ds.Properties {
		if !presentTypes[p.PropertyType] {
			presentTypes[p.PropertyType] = true
			types = append(types, p.PropertyType)
		}
	}
	opts := request.DefaultOptions(types...)
	if layersArg != "" {
		requested := strings.Split(layersArg, ",")
		opts.CalculationLayers = requested
		for layerName := range opts.Schemas {
			keep := false
			for _, r := range requested {
				if r == layerName {
					keep = true
					break
				}
			}
			if !keep {
				delete(opts.Schemas, layerName)
			}
		}
	}

	c := client.New(serverURL)
	handle, err := c.Submit(context.Background(), ds, ffSource, opts)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorSubmitFailed)
	}
	fmt.Printf("submitted %d properties\n", ds.Len())
	fmt.Println("request ID: ", handle.RequestID)
}

func printBatch(batch *request.ResultBatch) {
	color.New(color.FgHiYellow).Printf("queued: %d\n", len(batch.Queued))
	for _, p := range batch.Queued {
		fmt.Printf("\t%s (%s)\n", p.ID, p.PropertyType)
	}
	color.New(color.FgHiGreen).Printf("estimated: %d\n", len(batch.Estimated))
	for _, p := range batch.Estimated {
		fmt.Printf(
			"\t%s (%s): %g +/- %g via %s\n",
			p.ID, p.PropertyType, p.EstimatedValue, p.EstimatedUncertainty, p.Layer)
	}
	color.New(errColor).Printf("unsuccessful: %d\n", len(batch.Unsuccessful))
	for _, p := range batch.Unsuccessful {
		fmt.Printf("\t%s (%s)\n", p.ID, p.PropertyType)
	}
	for _, exc := range batch.Exceptions {
		color.New(errColor).Fprintf(os.Stderr, "exception: %s\n", exc.Error())
	}
	if batch.Done() && len(batch.Estimated) > 0 {
		summary, err := analysis.Summarize(analysis.FromBatch(batch))
		if err != nil {
			return
		}
		fmt.Printf(
			"\nestimated vs. measured: RMSE %g, mean abs. deviation %g, coverage %01.2f\n",
			summary.RMSE, summary.MeanAbsDev, summary.Coverage)
	}
}

func runActionStatus(serverURL, requestID string) {
	if requestID == "" {
		color.New(errColor).Fprintln(os.Stderr, "missing REQUEST_ID argument")
		os.Exit(exitErrorInvalidInput)
	}
	handle := client.New(serverURL).Handle(requestID)
	batch, err := handle.Results(context.Background(), false, 0)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorPollFailed)
	}
	printBatch(batch)
}

func runActionWait(serverURL, requestID string, interval time.Duration) {
	if requestID == "" {
		color.New(errColor).Fprintln(os.Stderr, "missing REQUEST_ID argument")
		os.Exit(exitErrorInvalidInput)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	handle := client.New(serverURL).Handle(requestID)

	batch, err := handle.Results(ctx, false, 0)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorPollFailed)
	}
	total := len(batch.AllIDs())
	bar := progressbar.Default(int64(total), "estimating")
	bar.Set(total - len(batch.Queued))
	for !batch.Done() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\ninterrupted - the request keeps running server-side")
			os.Exit(exitErrorPollFailed)
		case <-time.After(interval):
		}
		batch, err = handle.Results(ctx, false, 0)
		if err != nil {
			color.New(errColor).Fprintln(os.Stderr, err)
			os.Exit(exitErrorPollFailed)
		}
		bar.Set(total - len(batch.Queued))
	}
	fmt.Println()
	printBatch(batch)
}
