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
	"sync/atomic"
	"time"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

var ErrNoAvailableWorkers = errors.New("No available workers")

type Allocator interface {

	// Allocate a worker, waiting up to timeout when none is available
	Allocate(timeout time.Duration) (*Worker, error)

	// Release a worker back
	Release(worker *Worker)

	// Shareable is true if several goroutines can share this allocator
	Shareable() bool

	// GetWorkers gets direct access to all workers for housekeeping
	GetWorkers() []*Worker

	// GetNumWorkersAvailable returns the number of currently available workers
	GetNumWorkersAvailable() int

	// GetStatistics returns worker allocator statistics
	GetStatistics() *AllocatorStatistics

	// Drain collects all workers back, waiting for in-flight requests up to timeout
	Drain(timeout time.Duration) error
}

//
// Singleton worker
// Holds a single worker; requests are serialized by the caller
//

type singleton struct {

	// accessed atomically, keep as first field for alignment
	statistics AllocatorStatistics

	logger logger.Logger
	worker *Worker
}

func NewSingletonWorkerAllocator(parentLogger logger.Logger, worker *Worker) (Allocator, error) {
	return &singleton{
		logger: parentLogger.GetChild("singleton_allocator"),
		worker: worker,
	}, nil
}

func (s *singleton) Allocate(timeout time.Duration) (*Worker, error) {
	return s.worker, nil
}

func (s *singleton) Release(worker *Worker) {
}

func (s *singleton) Shareable() bool {
	return false
}

func (s *singleton) GetWorkers() []*Worker {
	return []*Worker{s.worker}
}

func (s *singleton) GetNumWorkersAvailable() int {
	return 1
}

func (s *singleton) GetStatistics() *AllocatorStatistics {
	return &s.statistics
}

func (s *singleton) Drain(timeout time.Duration) error {
	return nil
}

//
// Fixed pool of workers
// Holds a fixed number of workers. When no worker is available, the caller
// waits up to the allocation timeout.
//

type fixedPool struct {

	// accessed atomically, keep as first field for alignment
	statistics AllocatorStatistics

	logger     logger.Logger
	workerChan chan *Worker
	workers    []*Worker
}

func NewFixedPoolWorkerAllocator(parentLogger logger.Logger, workers []*Worker) (Allocator, error) {
	newFixedPool := fixedPool{
		logger:     parentLogger.GetChild("fixed_pool_allocator"),
		workerChan: make(chan *Worker, len(workers)),
		workers:    workers,
	}

	// iterate over workers, shove to pool
	for _, workerInstance := range workers {
		newFixedPool.workerChan <- workerInstance
	}

	return &newFixedPool, nil
}

func (fp *fixedPool) Allocate(timeout time.Duration) (*Worker, error) {
	atomic.AddUint64(&fp.statistics.WorkerAllocationCount, 1)

	// try to allocate a worker and fall back to waiting when there's none available
	select {
	case workerInstance := <-fp.workerChan:
		atomic.AddUint64(&fp.statistics.WorkerAllocationSuccessImmediateTotal, 1)

		return workerInstance, nil
	default:

		// if there's no timeout, return now
		if timeout == 0 {
			atomic.AddUint64(&fp.statistics.WorkerAllocationTimeoutTotal, 1)
			return nil, ErrNoAvailableWorkers
		}

		waitStartAt := time.Now()

		select {
		case workerInstance := <-fp.workerChan:
			atomic.AddUint64(&fp.statistics.WorkerAllocationSuccessAfterWaitTotal, 1)
			atomic.AddUint64(&fp.statistics.WorkerAllocationWaitDurationMilliSecondsSum,
				uint64(time.Since(waitStartAt).Milliseconds()))
			return workerInstance, nil
		case <-time.After(timeout):
			atomic.AddUint64(&fp.statistics.WorkerAllocationTimeoutTotal, 1)
			return nil, ErrNoAvailableWorkers
		}
	}
}

func (fp *fixedPool) Release(worker *Worker) {
	fp.workerChan <- worker
}

func (fp *fixedPool) Shareable() bool {
	return true
}

func (fp *fixedPool) GetWorkers() []*Worker {
	return fp.workers
}

func (fp *fixedPool) GetNumWorkersAvailable() int {
	return len(fp.workerChan)
}

func (fp *fixedPool) GetStatistics() *AllocatorStatistics {
	return &fp.statistics
}

// Drain collects every worker back from the pool, which can only complete once
// in-flight requests released theirs.
func (fp *fixedPool) Drain(timeout time.Duration) error {
	deadline := time.After(timeout)

	for range fp.workers {
		select {
		case <-fp.workerChan:
		case <-deadline:
			return errors.New("Timed out waiting for workers to drain")
		}
	}

	fp.logger.DebugWith("Drained all workers", "numWorkers", len(fp.workers))

	return nil
}
