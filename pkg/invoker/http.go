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
	"net/http"

	"github.com/funcframework/funcframework/pkg/functions"

	"github.com/nuclio/logger"
)

// httpInvoker passes the request straight through to the user handler, which
// owns the response entirely
type httpInvoker struct {
	abstractInvoker
}

func init() {
	creators.Register(string(functions.HTTPSignature), newHTTPInvoker)
}

func newHTTPInvoker(parentLogger logger.Logger, function *functions.Function) (Invoker, error) {
	return &httpInvoker{
		abstractInvoker: abstractInvoker{
			logger:   parentLogger.GetChild("http"),
			function: function,
		},
	}, nil
}

func (i *httpInvoker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	i.function.HTTPHandler()(responseWriter, request)
}
