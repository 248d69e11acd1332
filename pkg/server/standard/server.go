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

// Package standard serves the function through net/http.
package standard

import (
	"context"
	"net"
	"net/http"

	"github.com/funcframework/funcframework/pkg/server"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

type standard struct {
	logger        logger.Logger
	configuration *server.Configuration
	httpServer    *http.Server
	listener      net.Listener
}

func init() {
	server.RegisterCreator("standard", New)
}

// New creates a net/http backed server.
func New(parentLogger logger.Logger, configuration *server.Configuration) (server.Server, error) {
	newServer := &standard{
		logger:        parentLogger.GetChild("standard"),
		configuration: configuration,
	}

	newServer.httpServer = &http.Server{
		Handler: configuration.Handler,
	}

	return newServer, nil
}

func (s *standard) Start() error {
	listener, err := net.Listen("tcp", s.configuration.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "Failed to listen on %s", s.configuration.ListenAddress)
	}

	s.listener = listener

	s.logger.InfoWith("Server listening",
		"kind", "standard",
		"listenAddress", listener.Addr().String())

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.ErrorWith("Server exited unexpectedly", "err", err)
		}
	}()

	return nil
}

func (s *standard) Stop(ctx context.Context) error {
	s.logger.DebugWith("Shutting down server", "kind", "standard")

	return s.httpServer.Shutdown(ctx)
}

func (s *standard) Addr() string {
	if s.listener == nil {
		return s.configuration.ListenAddress
	}

	return s.listener.Addr().String()
}
