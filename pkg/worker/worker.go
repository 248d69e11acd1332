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

// Package worker holds the state and statistics required to handle a single
// request, plus the allocators that hand workers out to the server layer.
package worker

import (
	"bufio"
	"net"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/funcframework/funcframework/pkg/execution"
	"github.com/funcframework/funcframework/pkg/invoker"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

const (
	// StatusHeader carries the invocation outcome when the framework had to
	// answer for the function
	StatusHeader = "X-Function-Status"

	statusCrash = "crash"
)

// Worker holds all the required state and context to handle a single request
type Worker struct {

	// accessed atomically, keep as first field for alignment
	statistics Statistics

	logger  logger.Logger
	index   int
	invoker invoker.Invoker
}

// NewWorker creates a new worker driving the given invoker
func NewWorker(parentLogger logger.Logger, index int, invokerInstance invoker.Invoker) (*Worker, error) {
	return &Worker{
		logger:  parentLogger,
		index:   index,
		invoker: invokerInstance,
	}, nil
}

// ProcessRequest sends the request through the invoker, guarding against user
// function panics and keeping success/error statistics.
func (w *Worker) ProcessRequest(responseWriter http.ResponseWriter, request *http.Request) {
	recorder := &statusRecorder{ResponseWriter: responseWriter}
	startTime := time.Now()

	defer func() {
		if recovered := recover(); recovered != nil {
			w.logger.ErrorWith("Panic caught in function invocation",
				append(execution.LogFields(request.Context()),
					"err", recovered,
					"stack", string(debug.Stack()))...)

			if !recorder.wroteHeader {
				recorder.Header().Set(StatusHeader, statusCrash)
				http.Error(recorder, "Function panicked", http.StatusInternalServerError)
			}

			atomic.AddUint64(&w.statistics.EventsHandledError, 1)
		}

		callDuration := time.Since(startTime)
		atomic.AddUint64(&w.statistics.DurationMilliSecondsSum, uint64(callDuration.Milliseconds()))
		atomic.AddUint64(&w.statistics.DurationMilliSecondsCount, 1)
	}()

	w.invoker.ProcessRequest(recorder, request)

	if recorder.statusCode() < http.StatusBadRequest {
		atomic.AddUint64(&w.statistics.EventsHandledSuccess, 1)
	} else {
		atomic.AddUint64(&w.statistics.EventsHandledError, 1)
	}
}

// GetStatistics returns a pointer to the statistics object. This must not be
// modified by the reader
func (w *Worker) GetStatistics() *Statistics {
	return &w.statistics
}

// GetIndex returns the index of the worker, as specified during creation
func (w *Worker) GetIndex() int {
	return w.index
}

// statusRecorder remembers the response status so the worker can count the
// outcome and knows whether a crash response can still be written
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(body)
}

func (r *statusRecorder) statusCode() int {
	if !r.wroteHeader {
		return http.StatusOK
	}

	return r.status
}

// Flush forwards to the underlying writer so streaming functions keep
// working through the worker. Flushing commits the response headers.
func (r *statusRecorder) Flush() {
	if !r.wroteHeader {
		r.wroteHeader = true
		r.status = http.StatusOK
	}

	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("Underlying response writer does not support hijacking")
	}

	return hijacker.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
