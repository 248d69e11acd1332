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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/funcframework/funcframework/pkg/execution"
	"github.com/funcframework/funcframework/pkg/functionconfig"
	"github.com/funcframework/funcframework/pkg/functions"
	"github.com/funcframework/funcframework/pkg/worker"

	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

// echoInvoker answers with the request path so routing can be observed
type echoInvoker struct{}

func (ei *echoInvoker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	responseWriter.Write([]byte(request.URL.Path)) // nolint: errcheck
}

type RouterTestSuite struct {
	suite.Suite
	logger logger.Logger
}

func (suite *RouterTestSuite) SetupSuite() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
}

func (suite *RouterTestSuite) createRouter(signature functions.SignatureType,
	numWorkers int,
	availabilityTimeout time.Duration) (http.Handler, worker.Allocator) {

	workers := make([]*worker.Worker, 0, numWorkers)
	for workerIndex := 0; workerIndex < numWorkers; workerIndex++ {
		workerInstance, err := worker.NewWorker(suite.logger, workerIndex, &echoInvoker{})
		suite.Require().NoError(err)
		workers = append(workers, workerInstance)
	}

	workerAllocator, err := worker.NewFixedPoolWorkerAllocator(suite.logger, workers)
	suite.Require().NoError(err)

	router, err := NewRouter(suite.logger, &RouterConfiguration{
		Signature:                 signature,
		WorkerAllocator:           workerAllocator,
		WorkerAvailabilityTimeout: availabilityTimeout,
	})
	suite.Require().NoError(err)

	return router, workerAllocator
}

func (suite *RouterTestSuite) request(router http.Handler,
	method string,
	path string) *httptest.ResponseRecorder {

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, path, nil))

	return recorder
}

func (suite *RouterTestSuite) TestHTTPSignatureRoutes() {
	router, _ := suite.createRouter(functions.HTTPSignature, 1, time.Second)

	// any method, any path
	suite.Require().Equal(http.StatusOK, suite.request(router, http.MethodGet, "/").Code)
	suite.Require().Equal(http.StatusOK, suite.request(router, http.MethodPut, "/any/path").Code)
	suite.Require().Equal("/any/path", suite.request(router, http.MethodPost, "/any/path").Body.String())

	// crawler helper paths never reach the function
	suite.Require().Equal(http.StatusNotFound, suite.request(router, http.MethodGet, "/robots.txt").Code)
	suite.Require().Equal(http.StatusNotFound, suite.request(router, http.MethodGet, "/favicon.ico").Code)
}

func (suite *RouterTestSuite) TestEventSignatureRoutes() {
	router, _ := suite.createRouter(functions.EventSignature, 1, time.Second)

	// health probe style GET answers empty 200 without invoking
	getRecorder := suite.request(router, http.MethodGet, "/")
	suite.Require().Equal(http.StatusOK, getRecorder.Code)
	suite.Require().Empty(getRecorder.Body.String())

	// events arrive by POST
	suite.Require().Equal(http.StatusOK, suite.request(router, http.MethodPost, "/").Code)
	suite.Require().Equal(http.StatusOK, suite.request(router, http.MethodPost, "/some/path").Code)

	// other methods are rejected
	suite.Require().Equal(http.StatusMethodNotAllowed,
		suite.request(router, http.MethodPut, "/some/path").Code)
}

func (suite *RouterTestSuite) TestCloudEventSignatureRoutes() {
	router, _ := suite.createRouter(functions.CloudEventSignature, 1, time.Second)

	suite.Require().Equal(http.StatusOK, suite.request(router, http.MethodPost, "/").Code)
	suite.Require().Equal(http.StatusMethodNotAllowed, suite.request(router, http.MethodGet, "/").Code)
}

func (suite *RouterTestSuite) TestWorkerExhaustion() {
	router, workerAllocator := suite.createRouter(functions.HTTPSignature, 1, 50*time.Millisecond)

	// hold the only worker so dispatch cannot get one
	heldWorker, err := workerAllocator.Allocate(time.Second)
	suite.Require().NoError(err)

	recorder := suite.request(router, http.MethodGet, "/")
	suite.Require().Equal(http.StatusServiceUnavailable, recorder.Code)

	// releasing the worker unblocks dispatch
	workerAllocator.Release(heldWorker)
	suite.Require().Equal(http.StatusOK, suite.request(router, http.MethodGet, "/").Code)
}

func (suite *RouterTestSuite) TestCORSPreflight() {
	workerInstance, err := worker.NewWorker(suite.logger, 0, &echoInvoker{})
	suite.Require().NoError(err)

	workerAllocator, err := worker.NewSingletonWorkerAllocator(suite.logger, workerInstance)
	suite.Require().NoError(err)

	router, err := NewRouter(suite.logger, &RouterConfiguration{
		Signature:                 functions.HTTPSignature,
		WorkerAllocator:           workerAllocator,
		WorkerAvailabilityTimeout: time.Second,
		CORS:                      functionconfig.NewCORS(),
	})
	suite.Require().NoError(err)

	request := httptest.NewRequest(http.MethodOptions, "/", nil)
	request.Header.Set("Origin", "https://example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	suite.Require().Equal("*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func (suite *RouterTestSuite) TestRequiresAllocator() {
	_, err := NewRouter(suite.logger, &RouterConfiguration{
		Signature: functions.HTTPSignature,
	})
	suite.Require().Error(err)
}

func (suite *RouterTestSuite) TestExecutionIDPropagation() {
	var seenFields []interface{}

	invokerStub := &recordingInvoker{onRequest: func(request *http.Request) {
		seenFields = execution.LogFields(request.Context())
	}}

	workerInstance, err := worker.NewWorker(suite.logger, 0, invokerStub)
	suite.Require().NoError(err)

	workerAllocator, err := worker.NewSingletonWorkerAllocator(suite.logger, workerInstance)
	suite.Require().NoError(err)

	router, err := NewRouter(suite.logger, &RouterConfiguration{
		Signature:                 functions.HTTPSignature,
		WorkerAllocator:           workerAllocator,
		WorkerAvailabilityTimeout: time.Second,
	})
	suite.Require().NoError(err)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(execution.IDHeader, "external-id")
	router.ServeHTTP(httptest.NewRecorder(), request)

	suite.Require().Equal([]interface{}{"executionId", "external-id"}, seenFields)
}

type recordingInvoker struct {
	onRequest func(*http.Request)
}

func (ri *recordingInvoker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	ri.onRequest(request)
	responseWriter.WriteHeader(http.StatusOK)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
