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

// Package server selects and drives the process server the function is exposed
// through. Connection handling belongs entirely to the chosen backend; the
// framework only hands it a ready handler chain.
package server

import (
	"context"
	"net/http"

	"github.com/funcframework/funcframework/pkg/registry"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// Server is one process server hosting the function's handler chain.
type Server interface {

	// Start binds the listener and begins serving in the background
	Start() error

	// Stop shuts the server down, honoring the context deadline
	Stop(ctx context.Context) error

	// Addr returns the bound listen address, valid after Start
	Addr() string
}

// Configuration is what a backend needs to serve the handler chain.
type Configuration struct {
	ListenAddress      string
	ServerName         string
	ReadBufferSize     int
	MaxRequestBodySize int
	Handler            http.Handler
}

// Creator instantiates a server of one kind
type Creator func(parentLogger logger.Logger, configuration *Configuration) (Server, error)

var creators = registry.New[Creator]("server")

// RegisterCreator registers a backend under its kind. Called from backend
// package init.
func RegisterCreator(kind string, creator Creator) {
	creators.Register(kind, creator)
}

// New creates a server of the configured kind.
func New(kind string, parentLogger logger.Logger, configuration *Configuration) (Server, error) {
	creator, err := creators.Get(kind)
	if err != nil {
		return nil, errors.Wrapf(err, "No server backend of kind %q", kind)
	}

	return creator(parentLogger, configuration)
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	return creators.Names()
}
