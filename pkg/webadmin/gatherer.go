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

package webadmin

import (
	"strconv"

	"github.com/funcframework/funcframework/pkg/worker"

	"github.com/nuclio/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type gatherer interface {
	Gather() error
}

// workerGatherer feeds one worker's counters into prometheus. Counters are
// advanced by the delta since the previous gather.
type workerGatherer struct {
	worker                                 *worker.Worker
	prevStatistics                         worker.Statistics
	handledEventsTotal                     *prometheus.CounterVec
	handledEventsDurationMillisecondsSum   prometheus.Counter
	handledEventsDurationMillisecondsCount prometheus.Counter
}

func newWorkerGatherer(instanceName string,
	workerInstance *worker.Worker,
	metricRegistry *prometheus.Registry) (*workerGatherer, error) {

	newGatherer := &workerGatherer{
		worker: workerInstance,
	}

	labels := prometheus.Labels{
		"instance":     instanceName,
		"worker_index": strconv.Itoa(workerInstance.GetIndex()),
	}

	newGatherer.handledEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "funcframework_handled_events_total",
		Help:        "Total number of handled events",
		ConstLabels: labels,
	}, []string{"result"})

	if err := metricRegistry.Register(newGatherer.handledEventsTotal); err != nil {
		return nil, errors.Wrap(err, "Failed to register handled events metric")
	}

	newGatherer.handledEventsDurationMillisecondsSum = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "funcframework_handled_events_duration_milliseconds_sum",
		Help:        "Total sum of milliseconds it took to handle events",
		ConstLabels: labels,
	})

	if err := metricRegistry.Register(newGatherer.handledEventsDurationMillisecondsSum); err != nil {
		return nil, errors.Wrap(err, "Failed to register handled events duration sum")
	}

	newGatherer.handledEventsDurationMillisecondsCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "funcframework_handled_events_duration_milliseconds_count",
		Help:        "Number of measurements taken for the duration sum",
		ConstLabels: labels,
	})

	if err := metricRegistry.Register(newGatherer.handledEventsDurationMillisecondsCount); err != nil {
		return nil, errors.Wrap(err, "Failed to register handled events duration count")
	}

	return newGatherer, nil
}

func (wg *workerGatherer) Gather() error {
	currentStatistics := *wg.worker.GetStatistics()
	diffStatistics := currentStatistics.DiffFrom(&wg.prevStatistics)

	wg.handledEventsTotal.With(prometheus.Labels{
		"result": "success",
	}).Add(float64(diffStatistics.EventsHandledSuccess))

	wg.handledEventsTotal.With(prometheus.Labels{
		"result": "failure",
	}).Add(float64(diffStatistics.EventsHandledError))

	wg.handledEventsDurationMillisecondsSum.Add(float64(diffStatistics.DurationMilliSecondsSum))
	wg.handledEventsDurationMillisecondsCount.Add(float64(diffStatistics.DurationMilliSecondsCount))

	wg.prevStatistics = currentStatistics

	return nil
}

// allocatorGatherer feeds the worker allocator's counters into prometheus.
type allocatorGatherer struct {
	allocator           worker.Allocator
	prevStatistics      worker.AllocatorStatistics
	allocationsTotal    *prometheus.CounterVec
	waitMillisecondsSum prometheus.Counter
	workersAvailable    prometheus.Gauge
}

func newAllocatorGatherer(instanceName string,
	workerAllocator worker.Allocator,
	metricRegistry *prometheus.Registry) (*allocatorGatherer, error) {

	newGatherer := &allocatorGatherer{
		allocator: workerAllocator,
	}

	labels := prometheus.Labels{
		"instance": instanceName,
	}

	newGatherer.allocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "funcframework_worker_allocations_total",
		Help:        "Total number of worker allocation attempts",
		ConstLabels: labels,
	}, []string{"result"})

	if err := metricRegistry.Register(newGatherer.allocationsTotal); err != nil {
		return nil, errors.Wrap(err, "Failed to register worker allocations metric")
	}

	newGatherer.waitMillisecondsSum = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "funcframework_worker_allocation_wait_milliseconds_sum",
		Help:        "Total milliseconds spent waiting for a worker",
		ConstLabels: labels,
	})

	if err := metricRegistry.Register(newGatherer.waitMillisecondsSum); err != nil {
		return nil, errors.Wrap(err, "Failed to register worker allocation wait metric")
	}

	newGatherer.workersAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "funcframework_workers_available",
		Help:        "Number of workers currently available",
		ConstLabels: labels,
	})

	if err := metricRegistry.Register(newGatherer.workersAvailable); err != nil {
		return nil, errors.Wrap(err, "Failed to register workers available metric")
	}

	return newGatherer, nil
}

func (ag *allocatorGatherer) Gather() error {
	currentStatistics := *ag.allocator.GetStatistics()
	diffStatistics := currentStatistics.DiffFrom(&ag.prevStatistics)

	ag.allocationsTotal.With(prometheus.Labels{
		"result": "success_immediate",
	}).Add(float64(diffStatistics.WorkerAllocationSuccessImmediateTotal))

	ag.allocationsTotal.With(prometheus.Labels{
		"result": "success_after_wait",
	}).Add(float64(diffStatistics.WorkerAllocationSuccessAfterWaitTotal))

	ag.allocationsTotal.With(prometheus.Labels{
		"result": "timeout",
	}).Add(float64(diffStatistics.WorkerAllocationTimeoutTotal))

	ag.waitMillisecondsSum.Add(float64(diffStatistics.WorkerAllocationWaitDurationMilliSecondsSum))
	ag.workersAvailable.Set(float64(ag.allocator.GetNumWorkersAvailable()))

	ag.prevStatistics = currentStatistics

	return nil
}
