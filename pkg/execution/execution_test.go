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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ExecutionTestSuite struct {
	suite.Suite
}

func (suite *ExecutionTestSuite) TestFromRequestGeneratesID() {
	request := httptest.NewRequest(http.MethodGet, "/", nil)

	executionContext := FromRequest(request)
	suite.Require().NotEmpty(executionContext.ExecutionID)

	// each request without a header gets its own id
	otherContext := FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	suite.Require().NotEqual(executionContext.ExecutionID, otherContext.ExecutionID)
}

func (suite *ExecutionTestSuite) TestFromRequestHonorsHeader() {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(IDHeader, "external-id")

	executionContext := FromRequest(request)
	suite.Require().Equal("external-id", executionContext.ExecutionID)
}

func (suite *ExecutionTestSuite) TestTraceContextParsing() {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(TraceContextHeader, "0123456789abcdef/12345;o=1")

	executionContext := FromRequest(request)
	suite.Require().Equal("0123456789abcdef", executionContext.TraceID)
	suite.Require().Equal("12345", executionContext.SpanID)
	suite.Require().True(executionContext.Sampled)

	// malformed trace contexts are ignored
	request.Header.Set(TraceContextHeader, "not a trace context")
	executionContext = FromRequest(request)
	suite.Require().Empty(executionContext.TraceID)
	suite.Require().Empty(executionContext.SpanID)
}

func (suite *ExecutionTestSuite) TestMiddleware() {
	var seenID string

	handler := Middleware(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		executionContext := FromContext(request.Context())
		suite.Require().NotNil(executionContext)

		// the header the function sees matches the context
		suite.Require().Equal(executionContext.ExecutionID, request.Header.Get(IDHeader))
		seenID = executionContext.ExecutionID
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	suite.Require().NotEmpty(seenID)

	// externally assigned ids pass through untouched
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(IDHeader, "external-id")
	handler.ServeHTTP(httptest.NewRecorder(), request)
	suite.Require().Equal("external-id", request.Header.Get(IDHeader))
}

func (suite *ExecutionTestSuite) TestLogFields() {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(IDHeader, "external-id")
	request.Header.Set(TraceContextHeader, "abcdef/99;o=0")

	ctx := NewContext(request.Context(), FromRequest(request))
	suite.Require().Equal([]interface{}{
		"executionId", "external-id",
		"spanId", "99",
	}, LogFields(ctx))

	// a context without an invocation produces nothing
	suite.Require().Nil(LogFields(request.Context()))
}

func (suite *ExecutionTestSuite) TestQuietMiddleware() {
	handler := QuietMiddleware(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {

		// the id still reaches the function, only log fields go quiet
		suite.Require().NotEmpty(request.Header.Get(IDHeader))
		suite.Require().Nil(LogFields(request.Context()))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestExecutionTestSuite(t *testing.T) {
	suite.Run(t, new(ExecutionTestSuite))
}
