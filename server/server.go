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

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/faranak1991/propeval/archive"
	"github.com/faranak1991/propeval/backend"
	"github.com/faranak1991/propeval/cnf"
	"github.com/faranak1991/propeval/layers"
	"github.com/faranak1991/propeval/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// -----

type apiServer struct {
	conf    *cnf.Conf
	version any
	server  *http.Server
	db      *store.DB
	backend *backend.Local
}

func (api *apiServer) Start(ctx context.Context) {
	if !api.conf.Logging.Level.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinMiddleware())
	engine.Use(uniresp.AlwaysJSONContentType())
	engine.Use(corsMiddleware(api.conf))
	engine.NoMethod(uniresp.NoMethodHandler)
	engine.NoRoute(uniresp.NotFoundHandler)

	engine.GET("/version", api.handleVersion)
	engine.POST("/requests", api.handleSubmit)
	engine.GET("/requests/:requestId", api.handleStatus)

	log.Info().Msgf("starting to listen at %s:%d", api.conf.ListenAddress, api.conf.ListenPort)
	api.server = &http.Server{
		Handler:      engine,
		Addr:         fmt.Sprintf("%s:%d", api.conf.ListenAddress, api.conf.ListenPort),
		WriteTimeout: time.Duration(api.conf.ServerWriteTimeoutSecs) * time.Second,
		ReadTimeout:  time.Duration(api.conf.ServerReadTimeoutSecs) * time.Second,
	}
	go func() {
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()
}

func (api *apiServer) Stop(ctx context.Context) error {
	log.Warn().Msg("shutting down propeval HTTP API server")
	return api.server.Shutdown(ctx)
}

// -------------------------

// Run starts the estimation server with all its resources - the
// request state database, the optional estimation archive and the
// local compute backend - and blocks until ctx is cancelled. All
// services are shut down on every exit path, bounded by a timeout.
func Run(
	ctx context.Context,
	conf *cnf.Conf,
	version any,
) {
	db, err := store.OpenDB(conf.StateDataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open request state database")
		return
	}
	defer db.Close()

	var archiveDB *archive.Database
	var cache layers.EstimationCache
	if conf.ArchiveDBPath != "" {
		archiveDB, err = archive.NewDatabase(conf.ArchiveDBPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open archive database")
			return
		}
		defer archiveDB.Close()
		if err := archiveDB.Init(); err != nil {
			log.Fatal().Err(err).Msg("failed to init archive database")
			return
		}
		cache = archiveDB

	} else {
		log.Warn().Msg("archiveDbPath not set - the reweighting layer will have no source data")
	}

	computeBackend := backend.New(
		conf.Backend,
		db,
		archiveDB,
		backend.DefaultEstimatorFactory(conf.Backend, cache),
	)
	server := &apiServer{
		conf:    conf,
		version: version,
		db:      db,
		backend: computeBackend,
	}

	services := []service{computeBackend, server}
	for _, m := range services {
		m.Start(ctx)
	}
	<-ctx.Done()
	log.Warn().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range services {
		wg.Add(1)
		go func(srv service) {
			defer wg.Done()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Error().Err(err).Type("service", srv).Msg("Error shutting down service")
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timed out")
	}
}
