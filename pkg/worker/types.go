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

import "sync/atomic"

// Statistics counts events a single worker handled. Fields are accessed
// atomically.
type Statistics struct {
	EventsHandledSuccess      uint64
	EventsHandledError        uint64
	DurationMilliSecondsSum   uint64
	DurationMilliSecondsCount uint64
}

// DiffFrom returns the delta between two statistics snapshots
func (s *Statistics) DiffFrom(prev *Statistics) Statistics {
	return Statistics{
		EventsHandledSuccess:      atomic.LoadUint64(&s.EventsHandledSuccess) - prev.EventsHandledSuccess,
		EventsHandledError:        atomic.LoadUint64(&s.EventsHandledError) - prev.EventsHandledError,
		DurationMilliSecondsSum:   atomic.LoadUint64(&s.DurationMilliSecondsSum) - prev.DurationMilliSecondsSum,
		DurationMilliSecondsCount: atomic.LoadUint64(&s.DurationMilliSecondsCount) - prev.DurationMilliSecondsCount,
	}
}

// AllocatorStatistics counts allocation attempts against an allocator. Fields
// are accessed atomically.
type AllocatorStatistics struct {
	WorkerAllocationCount                       uint64
	WorkerAllocationSuccessImmediateTotal       uint64
	WorkerAllocationSuccessAfterWaitTotal       uint64
	WorkerAllocationTimeoutTotal                uint64
	WorkerAllocationWaitDurationMilliSecondsSum uint64
}

// DiffFrom returns the delta between two allocator statistics snapshots
func (s *AllocatorStatistics) DiffFrom(prev *AllocatorStatistics) AllocatorStatistics {
	return AllocatorStatistics{
		WorkerAllocationCount:                       atomic.LoadUint64(&s.WorkerAllocationCount) - prev.WorkerAllocationCount,
		WorkerAllocationSuccessImmediateTotal:       atomic.LoadUint64(&s.WorkerAllocationSuccessImmediateTotal) - prev.WorkerAllocationSuccessImmediateTotal,
		WorkerAllocationSuccessAfterWaitTotal:       atomic.LoadUint64(&s.WorkerAllocationSuccessAfterWaitTotal) - prev.WorkerAllocationSuccessAfterWaitTotal,
		WorkerAllocationTimeoutTotal:                atomic.LoadUint64(&s.WorkerAllocationTimeoutTotal) - prev.WorkerAllocationTimeoutTotal,
		WorkerAllocationWaitDurationMilliSecondsSum: atomic.LoadUint64(&s.WorkerAllocationWaitDurationMilliSecondsSum) - prev.WorkerAllocationWaitDurationMilliSecondsSum,
	}
}
