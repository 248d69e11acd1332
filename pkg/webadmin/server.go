/*
Copyright 2023 The Functions Framework Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package webadmin exposes an operational endpoint next to the function:
// prometheus metrics, live statistics and the framework's status.
package webadmin

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/funcframework/funcframework/pkg/functionconfig"
	"github.com/funcframework/funcframework/pkg/status"
	"github.com/funcframework/funcframework/pkg/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const gatherInterval = 10 * time.Second

type Server struct {
	logger          logger.Logger
	enabled         bool
	listenAddress   string
	instanceName    string
	router          chi.Router
	statusProvider  status.Provider
	workerAllocator worker.Allocator
	metricRegistry  *prometheus.Registry
	gatherers       []gatherer
	stopGatherChan  chan struct{}
}

func NewServer(parentLogger logger.Logger,
	instanceName string,
	statusProvider status.Provider,
	workerAllocator worker.Allocator,
	configuration *functionconfig.WebServer) (*Server, error) {
	if configuration.Enabled == nil {
		return nil, errors.New("Enabled must carry a value")
	}

	newServer := &Server{
		logger:          parentLogger.GetChild("webadmin"),
		enabled:         *configuration.Enabled,
		listenAddress:   configuration.ListenAddress,
		instanceName:    instanceName,
		statusProvider:  statusProvider,
		workerAllocator: workerAllocator,
		metricRegistry:  prometheus.NewRegistry(),
		stopGatherChan:  make(chan struct{}),
	}

	if !newServer.enabled {
		return newServer, nil
	}

	if err := newServer.createGatherers(); err != nil {
		return nil, errors.Wrap(err, "Failed to create gatherers")
	}

	newServer.router = newServer.createRouter()

	return newServer, nil
}

func (s *Server) Start() error {

	// if we're not enabled, we're done here
	if !s.enabled {
		s.logger.Debug("Disabled, not listening")

		return nil
	}

	go s.gatherLoop()
	go http.ListenAndServe(s.listenAddress, s.router) // nolint: errcheck

	s.logger.InfoWith("Listening", "listenAddress", s.listenAddress)

	return nil
}

func (s *Server) Stop() {
	if !s.enabled {
		return
	}

	close(s.stopGatherChan)
}

func (s *Server) createRouter() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)

	router.Handle("/metrics", promhttp.HandlerFor(s.metricRegistry, promhttp.HandlerOpts{}))
	router.Get("/statistics", s.handleStatistics)
	router.Get("/status", s.handleStatus)

	return router
}

func (s *Server) createGatherers() error {
	allocatorGathererInstance, err := newAllocatorGatherer(s.instanceName,
		s.workerAllocator,
		s.metricRegistry)
	if err != nil {
		return errors.Wrap(err, "Failed to create allocator gatherer")
	}

	s.gatherers = append(s.gatherers, allocatorGathererInstance)

	for _, workerInstance := range s.workerAllocator.GetWorkers() {
		workerGathererInstance, err := newWorkerGatherer(s.instanceName,
			workerInstance,
			s.metricRegistry)
		if err != nil {
			return errors.Wrap(err, "Failed to create worker gatherer")
		}

		s.gatherers = append(s.gatherers, workerGathererInstance)
	}

	return nil
}

func (s *Server) gatherLoop() {
	ticker := time.NewTicker(gatherInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, gathererInstance := range s.gatherers {
				if err := gathererInstance.Gather(); err != nil {
					s.logger.WarnWith("Failed to gather metrics", "err", err)
				}
			}
		case <-s.stopGatherChan:
			return
		}
	}
}

type workerStatistics struct {
	WorkerIndex               int    `json:"workerIndex"`
	EventsHandledSuccess      uint64 `json:"eventsHandledSuccess"`
	EventsHandledError        uint64 `json:"eventsHandledError"`
	DurationMilliSecondsSum   uint64 `json:"durationMilliSecondsSum"`
	DurationMilliSecondsCount uint64 `json:"durationMilliSecondsCount"`
}

type statisticsResponse struct {
	Workers   []workerStatistics         `json:"workers"`
	Allocator worker.AllocatorStatistics `json:"allocator"`
}

func (s *Server) handleStatistics(responseWriter http.ResponseWriter, request *http.Request) {
	response := statisticsResponse{}

	for _, workerInstance := range s.workerAllocator.GetWorkers() {
		statistics := workerInstance.GetStatistics()

		response.Workers = append(response.Workers, workerStatistics{
			WorkerIndex:               workerInstance.GetIndex(),
			EventsHandledSuccess:      atomic.LoadUint64(&statistics.EventsHandledSuccess),
			EventsHandledError:        atomic.LoadUint64(&statistics.EventsHandledError),
			DurationMilliSecondsSum:   atomic.LoadUint64(&statistics.DurationMilliSecondsSum),
			DurationMilliSecondsCount: atomic.LoadUint64(&statistics.DurationMilliSecondsCount),
		})
	}

	allocatorStatistics := s.workerAllocator.GetStatistics()
	response.Allocator = allocatorStatistics.DiffFrom(&worker.AllocatorStatistics{})

	s.writeJSON(responseWriter, response)
}

func (s *Server) handleStatus(responseWriter http.ResponseWriter, request *http.Request) {
	s.writeJSON(responseWriter, map[string]string{
		"status": s.statusProvider.GetStatus().String(),
	})
}

func (s *Server) writeJSON(responseWriter http.ResponseWriter, body interface{}) {
	responseWriter.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(responseWriter).Encode(body); err != nil {
		s.logger.WarnWith("Failed to encode response", "err", err)
	}
}
