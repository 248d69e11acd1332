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

package execution

import (
	"net/http"
)

// Middleware resolves the execution context of every request, stamps the
// execution id back onto the request headers and exposes the context to the
// rest of the chain.
func Middleware(next http.Handler) http.Handler {
	return middlewareHandler(next, false)
}

// QuietMiddleware behaves like Middleware but keeps the execution id out of
// log fields, for deployments that annotate logs elsewhere.
func QuietMiddleware(next http.Handler) http.Handler {
	return middlewareHandler(next, true)
}

func middlewareHandler(next http.Handler, suppressLogFields bool) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		executionContext := FromRequest(request)
		executionContext.LogFieldsSuppressed = suppressLogFields

		// downstream readers see the id whether or not the caller sent one
		request.Header.Set(IDHeader, executionContext.ExecutionID)

		next.ServeHTTP(responseWriter,
			request.WithContext(NewContext(request.Context(), executionContext)))
	})
}
