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

// Package fast serves the function through fasthttp. The handler chain is the
// same one the standard backend runs, adapted once at construction.
package fast

import (
	"context"
	"net"

	"github.com/funcframework/funcframework/pkg/server"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type fast struct {
	logger         logger.Logger
	configuration  *server.Configuration
	fasthttpServer *fasthttp.Server
	listener       net.Listener
}

func init() {
	server.RegisterCreator("fast", New)
}

// New creates a fasthttp backed server.
func New(parentLogger logger.Logger, configuration *server.Configuration) (server.Server, error) {
	newServer := &fast{
		logger:        parentLogger.GetChild("fast"),
		configuration: configuration,
	}

	newServer.fasthttpServer = &fasthttp.Server{
		Handler:            fasthttpadaptor.NewFastHTTPHandler(configuration.Handler),
		Name:               configuration.ServerName,
		ReadBufferSize:     configuration.ReadBufferSize,
		MaxRequestBodySize: configuration.MaxRequestBodySize,
	}

	return newServer, nil
}

func (s *fast) Start() error {
	listener, err := net.Listen("tcp", s.configuration.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "Failed to listen on %s", s.configuration.ListenAddress)
	}

	s.listener = listener

	s.logger.InfoWith("Server listening",
		"kind", "fast",
		"listenAddress", listener.Addr().String())

	go func() {
		if err := s.fasthttpServer.Serve(listener); err != nil {
			s.logger.ErrorWith("Server exited unexpectedly", "err", err)
		}
	}()

	return nil
}

func (s *fast) Stop(ctx context.Context) error {
	s.logger.DebugWith("Shutting down server", "kind", "fast")

	// fasthttp's shutdown does not take a context
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.fasthttpServer.Shutdown()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fast) Addr() string {
	if s.listener == nil {
		return s.configuration.ListenAddress
	}

	return s.listener.Addr().String()
}
