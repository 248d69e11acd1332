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

package worker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nuclio/logger"
	nucliozap "github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

// stubInvoker lets each test choose how the invocation behaves
type stubInvoker struct {
	processRequest func(http.ResponseWriter, *http.Request)
}

func (si *stubInvoker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	si.processRequest(responseWriter, request)
}

type WorkerTestSuite struct {
	suite.Suite
	logger logger.Logger
}

func (suite *WorkerTestSuite) SetupSuite() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
}

func (suite *WorkerTestSuite) TestSuccessCounted() {
	workerInstance, err := NewWorker(suite.logger, 0, &stubInvoker{
		processRequest: func(responseWriter http.ResponseWriter, request *http.Request) {
			responseWriter.Write([]byte("ok")) // nolint: errcheck
		},
	})
	suite.Require().NoError(err)

	recorder := httptest.NewRecorder()
	workerInstance.ProcessRequest(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	suite.Require().Equal(http.StatusOK, recorder.Code)

	statistics := workerInstance.GetStatistics()
	suite.Require().Equal(uint64(1), statistics.EventsHandledSuccess)
	suite.Require().Equal(uint64(0), statistics.EventsHandledError)
	suite.Require().Equal(uint64(1), statistics.DurationMilliSecondsCount)
}

func (suite *WorkerTestSuite) TestErrorStatusCounted() {
	workerInstance, err := NewWorker(suite.logger, 0, &stubInvoker{
		processRequest: func(responseWriter http.ResponseWriter, request *http.Request) {
			http.Error(responseWriter, "bad payload", http.StatusBadRequest)
		},
	})
	suite.Require().NoError(err)

	recorder := httptest.NewRecorder()
	workerInstance.ProcessRequest(recorder, httptest.NewRequest(http.MethodPost, "/", nil))

	statistics := workerInstance.GetStatistics()
	suite.Require().Equal(uint64(0), statistics.EventsHandledSuccess)
	suite.Require().Equal(uint64(1), statistics.EventsHandledError)
}

func (suite *WorkerTestSuite) TestPanicBecomesCrashResponse() {
	workerInstance, err := NewWorker(suite.logger, 0, &stubInvoker{
		processRequest: func(responseWriter http.ResponseWriter, request *http.Request) {
			panic("user function exploded")
		},
	})
	suite.Require().NoError(err)

	recorder := httptest.NewRecorder()
	suite.Require().NotPanics(func() {
		workerInstance.ProcessRequest(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	})

	suite.Require().Equal(http.StatusInternalServerError, recorder.Code)
	suite.Require().Equal("crash", recorder.Header().Get(StatusHeader))

	statistics := workerInstance.GetStatistics()
	suite.Require().Equal(uint64(1), statistics.EventsHandledError)
}

func (suite *WorkerTestSuite) TestPanicAfterHeadersLeavesResponse() {
	workerInstance, err := NewWorker(suite.logger, 0, &stubInvoker{
		processRequest: func(responseWriter http.ResponseWriter, request *http.Request) {
			responseWriter.WriteHeader(http.StatusAccepted)
			panic("too late to change the response")
		},
	})
	suite.Require().NoError(err)

	recorder := httptest.NewRecorder()
	workerInstance.ProcessRequest(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	// the already-written status stands, no crash header
	suite.Require().Equal(http.StatusAccepted, recorder.Code)
	suite.Require().Empty(recorder.Header().Get(StatusHeader))
}

func (suite *WorkerTestSuite) TestStreamingFunctionCanFlush() {
	workerInstance, err := NewWorker(suite.logger, 0, &stubInvoker{
		processRequest: func(responseWriter http.ResponseWriter, request *http.Request) {
			flusher, ok := responseWriter.(http.Flusher)
			suite.Require().True(ok)

			responseWriter.Write([]byte("first chunk")) // nolint: errcheck
			flusher.Flush()
		},
	})
	suite.Require().NoError(err)

	recorder := httptest.NewRecorder()
	workerInstance.ProcessRequest(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	suite.Require().True(recorder.Flushed)
	suite.Require().Equal(uint64(1), workerInstance.GetStatistics().EventsHandledSuccess)
}

func (suite *WorkerTestSuite) TestPanicAfterFlushLeavesResponse() {
	workerInstance, err := NewWorker(suite.logger, 0, &stubInvoker{
		processRequest: func(responseWriter http.ResponseWriter, request *http.Request) {
			responseWriter.(http.Flusher).Flush()
			panic("mid-stream failure")
		},
	})
	suite.Require().NoError(err)

	recorder := httptest.NewRecorder()
	workerInstance.ProcessRequest(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	// flushing committed the headers, no crash rewrite is possible
	suite.Require().Equal(http.StatusOK, recorder.Code)
	suite.Require().Empty(recorder.Header().Get(StatusHeader))
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}
