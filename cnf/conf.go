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

package cnf

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

const (
	dfltServerWriteTimeoutSecs = 30
	dfltNumWorkers             = 2
	dfltEnqueueBufferSize      = 64
	dfltTimeZone               = "Europe/Prague"
)

// BackendConf configures the local compute backend, i.e. the worker
// pool resolving submitted properties. GPUDevices lists physical GPU
// indices; workers are pinned to them in round-robin order (an empty
// list means CPU-only workers).
type BackendConf struct {
	NumWorkers        int    `json:"numWorkers"`
	GPUDevices        []int  `json:"gpuDevices"`
	EnqueueBufferSize int    `json:"enqueueBufferSize"`
	SimulationCommand string `json:"simulationCommand"`
}

type Conf struct {
	srcPath                string
	Logging                logging.LoggingConf `json:"logging"`
	ListenAddress          string              `json:"listenAddress"`
	PublicURL              string              `json:"publicUrl"`
	ListenPort             int                 `json:"listenPort"`
	ServerReadTimeoutSecs  int                 `json:"serverReadTimeoutSecs"`
	ServerWriteTimeoutSecs int                 `json:"serverWriteTimeoutSecs"`
	CorsAllowedOrigins     []string            `json:"corsAllowedOrigins"`
	TimeZone               string              `json:"timeZone"`

	// StateDataPath is a directory for the embedded request-state database
	StateDataPath string `json:"stateDataPath"`

	// ArchiveDBPath is a path to an sqlite3 database storing finished estimations
	ArchiveDBPath string `json:"archiveDbPath"`

	Backend BackendConf `json:"backend"`
}

func (conf *Conf) GetSourcePath() string {
	return conf.srcPath
}

func LoadConfig(path string) *Conf {
	if path == "" {
		log.Fatal().Msg("Cannot load config - path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	var conf Conf
	conf.srcPath = path
	err = json.Unmarshal(rawData, &conf)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	return &conf
}

func ValidateAndDefaults(conf *Conf) {
	if conf.ServerWriteTimeoutSecs == 0 {
		conf.ServerWriteTimeoutSecs = dfltServerWriteTimeoutSecs
		log.Warn().Msgf(
			"serverWriteTimeoutSecs not specified, using default: %d",
			dfltServerWriteTimeoutSecs,
		)
	}
	if conf.PublicURL == "" {
		conf.PublicURL = fmt.Sprintf("http://%s", conf.ListenAddress)
		log.Warn().Str("address", conf.PublicURL).Msg("publicUrl not set, using listenAddress")
	}
	if conf.TimeZone == "" {
		conf.TimeZone = dfltTimeZone
		log.Warn().
			Str("timeZone", dfltTimeZone).
			Msg("time zone not specified, using default")
	}
	if _, err := time.LoadLocation(conf.TimeZone); err != nil {
		log.Fatal().Err(err).Msg("invalid time zone")
	}
	if conf.StateDataPath == "" {
		log.Fatal().Msg("stateDataPath not specified")
	}
	if conf.Backend.NumWorkers == 0 {
		conf.Backend.NumWorkers = dfltNumWorkers
		log.Warn().Msgf(
			"backend.numWorkers not specified, using default: %d",
			dfltNumWorkers,
		)
	}
	if conf.Backend.EnqueueBufferSize == 0 {
		conf.Backend.EnqueueBufferSize = dfltEnqueueBufferSize
	}
}
