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

// Package execution threads an execution identifier and trace metadata through
// an invocation, identically on every server backend, so downstream logging can
// attribute work to a request.
package execution

import (
	"context"
	"net/http"
	"regexp"

	"github.com/rs/xid"
)

const (
	// IDHeader names the request header carrying an externally assigned
	// execution id. It is honored when present and stamped on otherwise.
	IDHeader = "Function-Execution-Id"

	// TraceContextHeader carries the trace context in trace/span;o=opt form
	TraceContextHeader = "X-Cloud-Trace-Context"
)

var traceContextPattern = regexp.MustCompile(`^(\w+)/(\d+);o=([01])$`)

type contextKey struct{}

// Context identifies one invocation for its whole lifetime.
type Context struct {
	ExecutionID string
	TraceID     string
	SpanID      string
	Sampled     bool

	// LogFieldsSuppressed keeps the invocation out of log fields while the
	// header contract stays intact
	LogFieldsSuppressed bool
}

// GenerateID returns a fresh execution id.
func GenerateID() string {
	return xid.New().String()
}

// FromRequest builds the execution context of a request, generating an
// execution id when the request does not carry one.
func FromRequest(request *http.Request) *Context {
	executionContext := &Context{
		ExecutionID: request.Header.Get(IDHeader),
	}

	if executionContext.ExecutionID == "" {
		executionContext.ExecutionID = GenerateID()
	}

	if matches := traceContextPattern.FindStringSubmatch(request.Header.Get(TraceContextHeader)); matches != nil {
		executionContext.TraceID = matches[1]
		executionContext.SpanID = matches[2]
		executionContext.Sampled = matches[3] == "1"
	}

	return executionContext
}

// NewContext returns a context carrying the execution context.
func NewContext(parent context.Context, executionContext *Context) context.Context {
	return context.WithValue(parent, contextKey{}, executionContext)
}

// FromContext returns the execution context of the invocation, or nil when the
// context does not belong to one.
func FromContext(ctx context.Context) *Context {
	executionContext, _ := ctx.Value(contextKey{}).(*Context)
	return executionContext
}

// LogFields returns the structured logging key/value pairs describing the
// invocation, ready to append to a *With logger call.
func LogFields(ctx context.Context) []interface{} {
	executionContext := FromContext(ctx)
	if executionContext == nil || executionContext.LogFieldsSuppressed {
		return nil
	}

	fields := []interface{}{"executionId", executionContext.ExecutionID}
	if executionContext.SpanID != "" {
		fields = append(fields, "spanId", executionContext.SpanID)
	}

	return fields
}
