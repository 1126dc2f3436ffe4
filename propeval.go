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
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/faranak1991/propeval/cnf"
)

const (
	actionServer  = "server"
	actionSubmit  = "submit"
	actionStatus  = "status"
	actionWait    = "wait"
	actionVersion = "version"
	actionHelp    = "help"

	exitErrorGeneralFailure = iota
	exitErrorInvalidInput
	exitErrorSubmitFailed
	exitErrorPollFailed
)

var (
	version   string
	buildDate string
	gitCommit string
)

// VersionInfo provides a detailed information about the actual build
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

func topLevelUsage() {
	fmt.Fprintf(os.Stderr, "PROPEVAL - a physical property estimation service\n")
	fmt.Fprintf(os.Stderr, "-----------------------------\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tshow version info\n", actionVersion)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\trun the estimation server\n", actionServer)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tsubmit a dataset for estimation\n", actionSubmit)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tshow the current state of a request\n", actionStatus)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\twait until a request is finished\n", actionWait)
	fmt.Fprintf(os.Stderr, "\nUse `propeval help ACTION` for information about a specific action\n\n")
}

func setup(confPath string) *cnf.Conf {
	conf := cnf.LoadConfig(confPath)
	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	logging.SetupLogging(conf.Logging)
	cnf.ValidateAndDefaults(conf)
	return conf
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

func runActionVersion(ver VersionInfo) {
	fmt.Fprintln(os.Stderr, "PropEval version: ", ver)
}

func main() {
	version := VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}

	cmdServer := flag.NewFlagSet(actionServer, flag.ExitOnError)
	cmdServer.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] config.json\n",
			filepath.Base(os.Args[0]), actionServer)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdServer.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nRun the estimation HTTP server with its compute backend\n")
	}

	cmdSubmit := flag.NewFlagSet(actionSubmit, flag.ExitOnError)
	submitServerURL := cmdSubmit.String(
		"server", "http://localhost:8080", "address of a running propeval server")
	submitLayers := cmdSubmit.String(
		"layers", "", "comma-separated calculation layers in preference order "+
			"(default: ReweightingLayer,SimulationLayer)")
	cmdSubmit.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] dataset.json forcefield.offxml\n",
			filepath.Base(os.Args[0]), actionSubmit)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdSubmit.PrintDefaults()
	}

	cmdStatus := flag.NewFlagSet(actionStatus, flag.ExitOnError)
	statusServerURL := cmdStatus.String(
		"server", "http://localhost:8080", "address of a running propeval server")
	cmdStatus.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] REQUEST_ID\n",
			filepath.Base(os.Args[0]), actionStatus)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdStatus.PrintDefaults()
	}

	cmdWait := flag.NewFlagSet(actionWait, flag.ExitOnError)
	waitServerURL := cmdWait.String(
		"server", "http://localhost:8080", "address of a running propeval server")
	waitInterval := cmdWait.Duration(
		"interval", 5*time.Second, "polling interval")
	cmdWait.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] REQUEST_ID\n",
			filepath.Base(os.Args[0]), actionWait)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdWait.PrintDefaults()
	}

	cmdVersion := flag.NewFlagSet(actionVersion, flag.ExitOnError)
	cmdVersion.Usage = func() {
		cmdVersion.PrintDefaults()
	}

	cmdHelp := flag.NewFlagSet(actionHelp, flag.ExitOnError)
	cmdHelp.Usage = func() {
		cmdHelp.PrintDefaults()
	}

	action := actionHelp
	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	switch action {
	case actionHelp:
		var subj string
		if len(os.Args) > 2 {
			cmdHelp.Parse(os.Args[2:])
			subj = cmdHelp.Arg(0)
		}
		if subj == "" {
			topLevelUsage()
			return
		}
		switch subj {
		case actionServer:
			cmdServer.Usage()
		case actionSubmit:
			cmdSubmit.Usage()
		case actionStatus:
			cmdStatus.Usage()
		case actionWait:
			cmdWait.Usage()
		}
	case actionVersion:
		cmdVersion.Parse(os.Args[2:])
		runActionVersion(version)
	case actionServer:
		cmdServer.Parse(os.Args[2:])
		conf := setup(cmdServer.Arg(0))
		runActionServer(conf, version)
	case actionSubmit:
		cmdSubmit.Parse(os.Args[2:])
		runActionSubmit(*submitServerURL, *submitLayers, cmdSubmit.Arg(0), cmdSubmit.Arg(1))
	case actionStatus:
		cmdStatus.Parse(os.Args[2:])
		runActionStatus(*statusServerURL, cmdStatus.Arg(0))
	case actionWait:
		cmdWait.Parse(os.Args[2:])
		runActionWait(*waitServerURL, cmdWait.Arg(0), *waitInterval)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action, please use 'help' to get more information")
	}
}
