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

package server

import (
	"net/http"
	"time"

	"github.com/funcframework/funcframework/pkg/execution"
	"github.com/funcframework/funcframework/pkg/functionconfig"
	"github.com/funcframework/funcframework/pkg/functions"
	"github.com/funcframework/funcframework/pkg/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// RouterConfiguration shapes the handler chain built by NewRouter.
type RouterConfiguration struct {
	Signature                 functions.SignatureType
	WorkerAllocator           worker.Allocator
	WorkerAvailabilityTimeout time.Duration
	MaxRequestBodySize        int
	CORS                      *functionconfig.CORS

	// SuppressExecutionIDLogs keeps execution ids out of invocation log
	// fields. The execution id header is stamped either way.
	SuppressExecutionIDLogs bool
}

// NewRouter builds the handler chain shared by all server backends: execution
// id propagation, optional CORS, request body capping and the routes the
// function's signature type calls for.
func NewRouter(parentLogger logger.Logger, configuration *RouterConfiguration) (http.Handler, error) {
	if configuration.WorkerAllocator == nil {
		return nil, errors.New("Router requires a worker allocator")
	}

	routerLogger := parentLogger.GetChild("router")

	router := chi.NewRouter()

	if configuration.SuppressExecutionIDLogs {
		router.Use(execution.QuietMiddleware)
	} else {
		router.Use(execution.Middleware)
	}

	if configuration.CORS != nil && configuration.CORS.Enabled {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   configuration.CORS.AllowOrigins,
			AllowedMethods:   configuration.CORS.AllowMethods,
			AllowedHeaders:   configuration.CORS.AllowHeaders,
			ExposedHeaders:   configuration.CORS.ExposeHeaders,
			AllowCredentials: configuration.CORS.AllowCredentials,
			MaxAge:           configuration.CORS.PreflightMaxAgeSeconds,
		}))
	}

	if configuration.MaxRequestBodySize > 0 {
		router.Use(maxBodySize(configuration.MaxRequestBodySize))
	}

	dispatch := newDispatchHandler(routerLogger,
		configuration.WorkerAllocator,
		configuration.WorkerAvailabilityTimeout)

	switch configuration.Signature {
	case functions.HTTPSignature:

		// crawler helper paths never reach the function
		router.HandleFunc("/robots.txt", http.NotFound)
		router.HandleFunc("/favicon.ico", http.NotFound)

		router.Handle("/", dispatch)
		router.Handle("/*", dispatch)

	case functions.EventSignature:

		// legacy event clients probe with GET before posting
		router.Get("/", func(responseWriter http.ResponseWriter, request *http.Request) {
			responseWriter.WriteHeader(http.StatusOK)
		})

		router.Post("/", dispatch.ServeHTTP)
		router.Post("/*", dispatch.ServeHTTP)

	default:
		router.Post("/", dispatch.ServeHTTP)
		router.Post("/*", dispatch.ServeHTTP)
	}

	return router, nil
}

// newDispatchHandler allocates a worker for each request and runs the request
// through it. Exhaustion of the pool within the availability timeout is
// reported as 503.
func newDispatchHandler(dispatchLogger logger.Logger,
	workerAllocator worker.Allocator,
	availabilityTimeout time.Duration) http.Handler {

	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		workerInstance, err := workerAllocator.Allocate(availabilityTimeout)
		if err != nil {
			if err == worker.ErrNoAvailableWorkers {
				dispatchLogger.WarnWith("No workers available within timeout",
					"timeout", availabilityTimeout)

				http.Error(responseWriter, "No available workers", http.StatusServiceUnavailable)
				return
			}

			dispatchLogger.ErrorWith("Failed to allocate worker", "err", err)
			http.Error(responseWriter, "Failed to allocate worker", http.StatusInternalServerError)
			return
		}

		defer workerAllocator.Release(workerInstance)

		workerInstance.ProcessRequest(responseWriter, request)
	})
}

func maxBodySize(limitBytes int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			request.Body = http.MaxBytesReader(responseWriter, request.Body, int64(limitBytes))
			next.ServeHTTP(responseWriter, request)
		})
	}
}
