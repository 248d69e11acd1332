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

// Package invoker translates wire-level requests into the calling convention
// of the registered function and translates results back, one adapter per
// signature type.
package invoker

import (
	"io"
	"net/http"

	"github.com/funcframework/funcframework/pkg/execution"
	"github.com/funcframework/funcframework/pkg/functions"
	"github.com/funcframework/funcframework/pkg/registry"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// Invoker adapts one signature type: translate the request, invoke the user
// function, translate the result into the response.
type Invoker interface {
	ProcessRequest(responseWriter http.ResponseWriter, request *http.Request)
}

// Creator instantiates the invoker of one signature type
type Creator func(parentLogger logger.Logger, function *functions.Function) (Invoker, error)

var creators = registry.New[Creator]("invoker")

// New creates the invoker matching the function's signature type.
func New(parentLogger logger.Logger, function *functions.Function) (Invoker, error) {
	creator, err := creators.Get(string(function.Signature))
	if err != nil {
		return nil, errors.Wrapf(err, "No invoker for signature type %q", function.Signature)
	}

	return creator(parentLogger, function)
}

type abstractInvoker struct {
	logger   logger.Logger
	function *functions.Function
}

func (i *abstractInvoker) readBody(request *http.Request) ([]byte, error) {
	if request.Body == nil {
		return nil, nil
	}

	return io.ReadAll(request.Body)
}

func (i *abstractInvoker) respond(responseWriter http.ResponseWriter, statusCode int, body string) {
	responseWriter.WriteHeader(statusCode)
	if body != "" {
		responseWriter.Write([]byte(body)) // nolint: errcheck
	}
}

// respondClientError answers a format validation failure and records why
func (i *abstractInvoker) respondClientError(responseWriter http.ResponseWriter,
	request *http.Request,
	description string,
	err error) {

	i.logger.WarnWith("Rejecting malformed payload",
		append(execution.LogFields(request.Context()), "reason", description, "err", err)...)

	http.Error(responseWriter, description, http.StatusBadRequest)
}

// respondFunctionError surfaces a user function error unchanged as a server error
func (i *abstractInvoker) respondFunctionError(responseWriter http.ResponseWriter,
	request *http.Request,
	err error) {

	i.logger.ErrorWith("Function returned error",
		append(execution.LogFields(request.Context()), "function", i.function.Name, "err", err)...)

	http.Error(responseWriter, err.Error(), http.StatusInternalServerError)
}
