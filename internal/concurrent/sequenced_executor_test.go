// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package concurrent

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SequencedExecutor_FIFOWithinStrand(t *testing.T) {
	e := NewSequencedExecutor(4, 3, 4, 1000, nil)
	defer e.Close()

	id := e.ExecutorIDFor(42)
	var mu sync.Mutex
	var order []int
	const n = 200
	for i := 0; i < n; i++ {
		i := i
		require.NoError(t, e.Submit(id, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	e.Sync()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i])
	}
}

func Test_SequencedExecutor_ParallelAcrossStrands(t *testing.T) {
	e := NewSequencedExecutor(4, 2, 4, 100, nil)
	defer e.Close()

	idA := e.ExecutorIDFor(0)
	idB := e.ExecutorIDFor(1)
	start := time.Now()
	require.NoError(t, e.Submit(idA, func() { time.Sleep(100 * time.Millisecond) }))
	require.NoError(t, e.Submit(idB, func() { time.Sleep(100 * time.Millisecond) }))
	e.Sync()
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 180*time.Millisecond, "two distinct strands should run concurrently, not sequentially")
}

func Test_SequencedExecutor_BackpressureBlocksAndUnblocksWithHysteresis(t *testing.T) {
	// maxPending=3 => wakeupLimit = int(3*0.9) = 2.
	e := NewSequencedExecutor(1, 1, 4, 3, nil)
	defer e.Close()

	id := e.ExecutorIDFor(0)
	release1 := make(chan struct{})
	started1 := make(chan struct{})
	require.NoError(t, e.Submit(id, func() { close(started1); <-release1 }))
	// wait until the worker has popped the blocking task, so it no longer
	// counts towards pendingTasks.
	<-started1
	require.NoError(t, e.Submit(id, func() {}))
	require.NoError(t, e.Submit(id, func() {}))
	require.NoError(t, e.Submit(id, func() {}))

	submitted := make(chan struct{})
	go func() {
		_ = e.Submit(id, func() {})
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("submit should block while pendingTasks is at MaxPending")
	case <-time.After(50 * time.Millisecond):
	}

	close(release1)

	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("submit never unblocked once pendingTasks dropped below the wakeup limit")
	}
}

func Test_SequencedExecutor_SyncWaitsOnlyForPriorSubmissions(t *testing.T) {
	e := NewSequencedExecutor(4, 2, 4, 1000, nil)
	defer e.Close()

	var completed int64
	const n = 90
	for i := 0; i < n; i++ {
		id := e.ExecutorIDFor(uint64(i % 3))
		require.NoError(t, e.Submit(id, func() { atomic.AddInt64(&completed, 1) }))
	}
	e.Sync()
	assert.EqualValues(t, n, atomic.LoadInt64(&completed))

	require.NoError(t, e.Submit(e.ExecutorIDFor(0), func() { atomic.AddInt64(&completed, 1) }))
	e.Sync()
	assert.EqualValues(t, n+1, atomic.LoadInt64(&completed))
}

func Test_SequencedExecutor_CloseDrainsAllPendingTasks(t *testing.T) {
	e := NewSequencedExecutor(8, 2, 4, 1000, nil)

	var completed int64
	const n = 100
	for i := 0; i < n; i++ {
		id := e.ExecutorIDFor(uint64(i % 8))
		require.NoError(t, e.Submit(id, func() { atomic.AddInt64(&completed, 1) }))
	}
	e.Close()
	assert.EqualValues(t, n, atomic.LoadInt64(&completed))

	err := e.Submit(e.ExecutorIDFor(0), func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

// Two strands flooded at once under a single worker must interleave: the
// exchange-strand handoff (spec §4.H step 2) yields a held strand to the
// wait queue whenever another strand is already waiting, so neither strand
// should ever run a long unbroken streak while the other has work queued.
func Test_SequencedExecutor_FairnessBetweenFloodedStrands(t *testing.T) {
	e := NewSequencedExecutor(2, 1, 1, 4, nil)
	defer e.Close()

	const n = 60
	var mu sync.Mutex
	var sequence []int
	record := func(strand int) {
		mu.Lock()
		sequence = append(sequence, strand)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		id := e.ExecutorIDFor(0)
		for i := 0; i < n; i++ {
			_ = e.Submit(id, func() { record(0) })
		}
	}()
	go func() {
		defer wg.Done()
		id := e.ExecutorIDFor(1)
		for i := 0; i < n; i++ {
			_ = e.Submit(id, func() { record(1) })
		}
	}()
	wg.Wait()
	e.Sync()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sequence, 2*n)
	maxRun, run := 1, 1
	for i := 1; i < len(sequence); i++ {
		if sequence[i] == sequence[i-1] {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
		}
	}
	assert.LessOrEqual(t, maxRun, 3, "neither flooded strand should starve the other for long")
}

func Test_SequencedExecutor_StartBarrierFiresWithoutBlockingCaller(t *testing.T) {
	e := NewSequencedExecutor(2, 2, 2, 100, nil)
	defer e.Close()

	release := make(chan struct{})
	require.NoError(t, e.Submit(e.ExecutorIDFor(0), func() { <-release }))

	fired := make(chan struct{})
	e.StartBarrier(func() { close(fired) })

	select {
	case <-fired:
		t.Fatal("barrier fired before its one outstanding task completed")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("barrier never fired after its outstanding task completed")
	}
}

func Test_SequencedExecutor_StartBarrierFiresImmediatelyWhenQuiescent(t *testing.T) {
	e := NewSequencedExecutor(2, 2, 2, 100, nil)
	defer e.Close()

	fired := false
	e.StartBarrier(func() { fired = true })
	assert.True(t, fired)
}

func Test_SequencedExecutor_PanicsOnInvalidConstruction(t *testing.T) {
	assert.Panics(t, func() { NewSequencedExecutor(0, 1, 1, 1, nil) })
	assert.Panics(t, func() { NewSequencedExecutor(1, 0, 1, 1, nil) })
	assert.Panics(t, func() { NewSequencedExecutor(1, 1, 0, 1, nil) })
	assert.Panics(t, func() { NewSequencedExecutor(1, 1, 1, 0, nil) })
	assert.Panics(t, func() { NewSequencedExecutor(1, 256, 1, 1, nil) })
}

func Test_SequencedExecutor_ExecutorIDForIsModulo(t *testing.T) {
	e := NewSequencedExecutor(4, 1, 1, 1, nil)
	defer e.Close()

	assert.Equal(t, ExecutorID(0), e.ExecutorIDFor(0))
	assert.Equal(t, ExecutorID(1), e.ExecutorIDFor(5))
	assert.Equal(t, ExecutorID(2), e.ExecutorIDFor(6))
}

// spec.md §8: "Number of workers with state==RUNNING + number with
// state==BLOCKED + number with state==DONE == num_threads" must hold at
// every observation point outside the core lock, both at rest and under load.
func Test_SequencedExecutor_WorkerStateCountsAlwaysSumToNumThreads(t *testing.T) {
	const numThreads = 5
	e := NewSequencedExecutor(4, numThreads, 2, 200, nil)

	sum := func() int {
		counts := e.debugWorkerStates()
		return counts[workerRunning] + counts[workerBlocked] + counts[workerDone]
	}
	assert.Equal(t, numThreads, sum(), "quiescent executor")

	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		i := i
		wg.Add(1)
		id := e.ExecutorIDFor(uint64(i % 4))
		require.NoError(t, e.Submit(id, func() { wg.Done() }))
	}
	assert.Equal(t, numThreads, sum(), "mid-flight")
	wg.Wait()
	e.Sync()
	assert.Equal(t, numThreads, sum(), "drained")

	e.Close()
	counts := e.debugWorkerStates()
	assert.Equal(t, numThreads, counts[workerDone], "all workers DONE after Close")
}
