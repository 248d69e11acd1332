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

// Package healthcheck exposes liveness and readiness probes for the framework
// on a dedicated listener.
package healthcheck

import (
	"net/http"

	"github.com/funcframework/funcframework/pkg/functionconfig"
	"github.com/funcframework/funcframework/pkg/status"

	"github.com/heptiolabs/healthcheck"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// Server answers /live and /ready for the hosting environment.
type Server struct {
	Enabled        bool
	ListenAddress  string
	Logger         logger.Logger
	StatusProvider status.Provider
	Handler        healthcheck.Handler
}

func NewServer(parentLogger logger.Logger,
	statusProvider status.Provider,
	configuration *functionconfig.WebServer) (*Server, error) {
	if configuration.Enabled == nil {
		return nil, errors.New("Enabled must carry a value")
	}

	newServer := &Server{
		Enabled:        *configuration.Enabled,
		ListenAddress:  configuration.ListenAddress,
		Logger:         parentLogger.GetChild("healthcheck.server"),
		StatusProvider: statusProvider,
		Handler:        healthcheck.NewHandler(),
	}

	return newServer, nil
}

func (s *Server) Start() error {

	// if we're disabled, simply log and do nothing
	if !s.Enabled {
		s.Logger.Debug("Disabled, not listening")
		return nil
	}

	// readiness follows the framework's lifecycle status
	s.Handler.AddReadinessCheck("function_readiness", func() error {
		if s.StatusProvider.GetStatus() != status.Ready {
			return errors.New("Function not ready yet")
		}

		return nil
	})

	// the process serving at all is the liveness signal
	s.Handler.AddLivenessCheck("function_liveness", func() error {
		return nil
	})

	go http.ListenAndServe(s.ListenAddress, s.Handler) // nolint: errcheck

	s.Logger.InfoWith("Listening", "listenAddress", s.ListenAddress)
	return nil
}
