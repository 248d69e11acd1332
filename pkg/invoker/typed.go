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

package invoker

import (
	"encoding/json"
	"net/http"

	"github.com/funcframework/funcframework/pkg/functions"

	"github.com/nuclio/logger"
)

// typedInvoker decodes the JSON body into the function's declared input type
// and encodes whatever the function returns
type typedInvoker struct {
	abstractInvoker
}

func init() {
	creators.Register(string(functions.TypedSignature), newTypedInvoker)
}

func newTypedInvoker(parentLogger logger.Logger, function *functions.Function) (Invoker, error) {
	return &typedInvoker{
		abstractInvoker: abstractInvoker{
			logger:   parentLogger.GetChild("typed"),
			function: function,
		},
	}, nil
}

func (i *typedInvoker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	body, err := i.readBody(request)
	if err != nil {
		i.respondClientError(responseWriter, request, "Failed to read request body", err)
		return
	}

	input, err := i.function.TypedDecode(body)
	if err != nil {
		i.respondClientError(responseWriter, request, "Failed to decode request into the declared input type", err)
		return
	}

	output, err := i.function.TypedInvoke(request.Context(), input)
	if err != nil {
		i.respondFunctionError(responseWriter, request, err)
		return
	}

	i.writeOutput(responseWriter, request, output)
}

func (i *typedInvoker) writeOutput(responseWriter http.ResponseWriter,
	request *http.Request,
	output interface{}) {

	switch typedOutput := output.(type) {
	case nil:
		responseWriter.WriteHeader(http.StatusOK)
	case string:
		i.respond(responseWriter, http.StatusOK, typedOutput)
	case []byte:
		responseWriter.WriteHeader(http.StatusOK)
		responseWriter.Write(typedOutput) // nolint: errcheck
	default:
		encoded, err := json.Marshal(typedOutput)
		if err != nil {
			i.respondFunctionError(responseWriter, request, err)
			return
		}

		responseWriter.Header().Set("Content-Type", "application/json")
		responseWriter.WriteHeader(http.StatusOK)
		responseWriter.Write(encoded) // nolint: errcheck
	}
}
