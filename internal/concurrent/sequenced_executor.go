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
	"errors"
	"sync"

	"github.com/lindb/seqexec/internal/linmetric"
)

// ErrClosed is returned by Submit once the executor has started shutting down.
var ErrClosed = errors.New("concurrent: sequenced executor is closed")

// SequencedTask is a unit of work submitted against a strand. It runs at
// most once, on exactly one worker goroutine.
type SequencedTask func()

// ExecutorID selects a strand. Two tasks submitted with the same
// ExecutorID are guaranteed to run in submission order on one goroutine at
// a time; tasks with different ids may run in parallel.
type ExecutorID uint32

type taggedTask struct {
	task  SequencedTask
	token uint32
}

type strandState int

const (
	strandIdle strandState = iota
	strandWaiting
	strandActive
)

type strand struct {
	state strandState
	queue taskQueue
}

type workerState int

const (
	workerRunning workerState = iota
	workerBlocked
	workerDone
)

type worker struct {
	cond   *sync.Cond
	state  workerState
	strand int // -1 when unassigned
}

type selfState int

const (
	selfOpen selfState = iota
	selfBlocked
	selfClosed
)

// SequencedExecutorConfig carries the tunables from spec.md §3/§6.
type SequencedExecutorConfig struct {
	NumStrands  int
	NumThreads  int
	MaxWaiting  int
	MaxPending  int
	WakeupLimit int // derived: max(1, 0.9 * MaxPending); recomputed by SetTaskLimit
}

func (c *SequencedExecutorConfig) setMaxPending(n int) {
	if n < 1 {
		n = 1
	}
	c.MaxPending = n
	wakeup := int(float64(n) * 0.9)
	if wakeup < 1 {
		wakeup = 1
	}
	c.WakeupLimit = wakeup
}

// ExecutorStats is a point-in-time snapshot returned by Stats, matching
// spec.md §6: "accepted-task count and queue-size samples accumulated
// since last call; resets counters."
type ExecutorStats struct {
	AcceptedTasks uint64
	QueueSize     SampleStats
}

// SampleStats summarizes a stream of integer samples (here, pending_tasks
// observed at every enqueue/dequeue) without retaining every observation.
type SampleStats struct {
	Count int64
	Sum   int64
	Min   int64
	Max   int64
}

func (s *SampleStats) add(v int64) {
	if s.Count == 0 {
		s.Min, s.Max = v, v
	} else {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Count++
	s.Sum += v
}

// Mean returns the sample mean, or 0 if no samples were recorded.
func (s SampleStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Sum) / float64(s.Count)
}

// SequencedExecutor is the adaptive sequenced task executor of spec.md: a
// fixed-size strand table under a bounded worker pool, with a wait queue,
// a worker stack, a producer backpressure gate and an event barrier tying
// it together. See spec.md §2-§9 for the full design.
type SequencedExecutor struct {
	mu           sync.Mutex
	producerCond *sync.Cond

	strands     []strand
	waitQueue   *strandQueue
	workerStack workerStack
	workers     []*worker
	barrier     eventBarrier

	state        selfState
	waitingTasks int
	pendingTasks int

	cfg   SequencedExecutorConfig
	stats ExecutorStats

	acceptedTasks  *linmetric.BoundDeltaCounter
	workersAlive   *linmetric.BoundGauge
	workersParked  *linmetric.BoundGauge
	pendingGauge   *linmetric.BoundGauge
	waitingGauge   *linmetric.BoundGauge

	wg sync.WaitGroup
}

// NewSequencedExecutor constructs an executor and immediately spawns
// numThreads worker goroutines, matching the original's "constructed OPEN
// with the worker pool spawned" lifecycle (spec.md §3).
func NewSequencedExecutor(numStrands, numThreads, maxWaiting, maxPending int, scope linmetric.Scope) *SequencedExecutor {
	if numStrands <= 0 || numThreads <= 0 || maxWaiting <= 0 || maxPending <= 0 {
		panic("concurrent: numStrands, numThreads, maxWaiting and maxPending must all be positive")
	}
	if numThreads > 255 {
		panic("concurrent: numThreads must not exceed 255")
	}
	e := &SequencedExecutor{
		strands:   make([]strand, numStrands),
		waitQueue: newStrandQueue(numStrands),
		workers:   make([]*worker, numThreads),
		barrier:   *newEventBarrier(),
		cfg:       SequencedExecutorConfig{NumStrands: numStrands, NumThreads: numThreads, MaxWaiting: maxWaiting},
	}
	e.cfg.setMaxPending(maxPending)
	e.producerCond = sync.NewCond(&e.mu)
	if scope != nil {
		e.acceptedTasks = scope.NewDeltaCounter("accepted_tasks")
		e.workersAlive = scope.NewGauge("workers_running")
		e.workersParked = scope.NewGauge("workers_blocked")
		e.pendingGauge = scope.NewGauge("pending_tasks")
		e.waitingGauge = scope.NewGauge("waiting_tasks")
	}
	e.stats.QueueSize.add(0)
	for i := range e.workers {
		w := &worker{cond: sync.NewCond(&e.mu), strand: -1}
		e.workers[i] = w
		e.wg.Add(1)
		go e.workerMain(i)
	}
	return e
}

// ExecutorIDFor is a pure function mapping a caller key to a strand;
// spec.md §4.B: "selecting a strand by key is a modulo op", performed
// without taking the core lock.
func (e *SequencedExecutor) ExecutorIDFor(key uint64) ExecutorID {
	return ExecutorID(key % uint64(len(e.strands)))
}

// Submit enqueues task against the strand selected by id. It blocks the
// calling goroutine under sustained backpressure (spec.md §4.F) and
// returns ErrClosed if the executor has started shutting down.
func (e *SequencedExecutor) Submit(id ExecutorID, task SequencedTask) error {
	if int(id) >= len(e.strands) {
		panic("concurrent: executor id out of range")
	}
	e.mu.Lock()
	if e.state == selfClosed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.maybeBlockSelf()
	if e.state == selfClosed {
		e.mu.Unlock()
		return ErrClosed
	}

	token := e.barrier.startEvent()
	s := &e.strands[id]
	s.queue.push(taggedTask{task: task, token: token})
	e.pendingTasks++
	e.stats.AcceptedTasks++
	e.stats.QueueSize.add(int64(e.pendingTasks))
	if e.acceptedTasks != nil {
		e.acceptedTasks.Incr()
	}

	var toSignal *worker
	switch s.state {
	case strandWaiting:
		e.waitingTasks++
	case strandIdle:
		if e.workerStack.size() < e.cfg.NumThreads {
			s.state = strandWaiting
			e.waitQueue.push(int(id))
			e.waitingTasks += s.queue.size()
		} else {
			s.state = strandActive
			widx := e.workerStack.pop()
			w := e.workers[widx]
			w.state = workerRunning
			w.strand = int(id)
			toSignal = w
		}
	case strandActive:
		// a worker already owns this strand; it will see the new task on
		// its next loop iteration.
	}
	e.reportGauges()
	e.mu.Unlock()
	if toSignal != nil {
		toSignal.cond.Signal()
	}
	return nil
}

// maybeBlockSelf implements the producer backpressure loop of spec.md
// §4.F. Must be called with mu held.
func (e *SequencedExecutor) maybeBlockSelf() {
	for e.state == selfBlocked {
		e.producerCond.Wait()
	}
	for e.state == selfOpen && e.pendingTasks >= e.cfg.MaxPending {
		e.state = selfBlocked
		for e.state == selfBlocked {
			e.producerCond.Wait()
		}
	}
}

// maybeUnblockSelf re-evaluates producer backpressure after a completion.
// Must be called with mu held; returns whether producers must be woken.
func (e *SequencedExecutor) maybeUnblockSelf() bool {
	if e.state == selfBlocked && e.pendingTasks < e.cfg.WakeupLimit {
		e.state = selfOpen
		return true
	}
	return false
}

// getWorkerToWake implements the adaptive wakeup of spec.md §4.G: only
// when sustained queue pressure (waitingTasks > MaxWaiting) persists AND a
// worker is actually parked. Must be called with mu held.
func (e *SequencedExecutor) getWorkerToWake() *worker {
	if e.waitingTasks > e.cfg.MaxWaiting && !e.workerStack.empty() {
		widx := e.workerStack.pop()
		w := e.workers[widx]
		sIdx := e.waitQueue.pop()
		s := &e.strands[sIdx]
		w.state = workerRunning
		w.strand = sIdx
		s.state = strandActive
		e.waitingTasks -= s.queue.size()
		return w
	}
	return nil
}

// obtainStrand assigns a new strand to a worker that currently holds none.
// Must be called with mu held; may block the caller on the worker's own
// condition variable.
func (e *SequencedExecutor) obtainStrand(w *worker, widx int) bool {
	if !e.waitQueue.empty() {
		sIdx := e.waitQueue.pop()
		w.strand = sIdx
		s := &e.strands[sIdx]
		s.state = strandActive
		e.waitingTasks -= s.queue.size()
	} else if e.state == selfClosed {
		w.state = workerDone
	} else {
		w.state = workerBlocked
		e.workerStack.push(widx)
		for w.state == workerBlocked {
			w.cond.Wait()
		}
	}
	return w.state == workerRunning
}

// exchangeStrand implements spec.md §4.H step 2: keep, yield, release, or
// obtain a strand depending on the held strand's remaining queue and
// whether other strands are waiting for a worker. Must be called with mu held.
func (e *SequencedExecutor) exchangeStrand(w *worker, widx int) bool {
	if w.strand < 0 {
		return e.obtainStrand(w, widx)
	}
	s := &e.strands[w.strand]
	if s.queue.empty() {
		s.state = strandIdle
		w.strand = -1
		return e.obtainStrand(w, widx)
	}
	if !e.waitQueue.empty() {
		s.state = strandWaiting
		e.waitingTasks += s.queue.size()
		e.waitQueue.push(w.strand)
		w.strand = -1
		return e.obtainStrand(w, widx)
	}
	return true
}

// nextTask implements spec.md §4.H's next_task: complete the previous
// token, exchange strands if needed, and pop the new head task.
func (e *SequencedExecutor) nextTask(widx int, prevToken uint32, hasPrev bool) (taggedTask, bool) {
	w := e.workers[widx]
	e.mu.Lock()
	if hasPrev {
		e.barrier.completeEvent(prevToken)
	}
	var task taggedTask
	var ok bool
	var toWake *worker
	if e.exchangeStrand(w, widx) {
		s := &e.strands[w.strand]
		task = s.queue.pop()
		e.pendingTasks--
		e.stats.QueueSize.add(int64(e.pendingTasks))
		ok = true
		toWake = e.getWorkerToWake()
	}
	signalProducers := e.maybeUnblockSelf()
	e.reportGauges()
	e.mu.Unlock()
	if toWake != nil {
		toWake.cond.Signal()
	}
	if signalProducers {
		e.producerCond.Broadcast()
	}
	return task, ok
}

// reportGauges refreshes the optional stats-sink gauges from the current
// counters. Must be called with mu held.
func (e *SequencedExecutor) reportGauges() {
	if e.pendingGauge != nil {
		e.pendingGauge.Update(float64(e.pendingTasks))
	}
	if e.waitingGauge != nil {
		e.waitingGauge.Update(float64(e.waitingTasks))
	}
	parked := e.workerStack.size()
	if e.workersParked != nil {
		e.workersParked.Update(float64(parked))
	}
	if e.workersAlive != nil {
		e.workersAlive.Update(float64(e.cfg.NumThreads - parked))
	}
}

// workerMain is the per-goroutine loop of spec.md §4.H.
func (e *SequencedExecutor) workerMain(widx int) {
	defer e.wg.Done()
	var prevToken uint32
	var hasPrev bool
	for {
		t, ok := e.nextTask(widx, prevToken, hasPrev)
		if !ok {
			return
		}
		t.task()
		prevToken, hasPrev = t.token, true
	}
}

// Sync blocks until every task submitted strictly before this call has
// completed (spec.md §4.E: "sync() is implemented as a blocking wrapper
// over the barrier").
func (e *SequencedExecutor) Sync() {
	g := newGate()
	e.mu.Lock()
	outstanding := e.barrier.startBarrier(g.countDown)
	e.mu.Unlock()
	if outstanding {
		g.await()
	}
}

// StartBarrier registers onReady to fire once every task submitted
// strictly before this call has completed. Unlike Sync it does not block
// the caller: onReady fires immediately on the caller's goroutine if
// nothing is outstanding, or later on whichever worker goroutine completes
// the last pre-barrier task. A layer embedding this executor beneath its
// own asynchronous completion model (spec.md §1's visitor management and
// attribute writers, out of scope here) uses this instead of paying for a
// full Sync() round trip. onReady must be lightweight and must not call
// Submit on this executor (spec.md §4.H: "must not re-entry into submit").
func (e *SequencedExecutor) StartBarrier(onReady func()) {
	e.mu.Lock()
	e.barrier.startBarrier(onReady)
	e.mu.Unlock()
}

// SetTaskLimit reconfigures MaxPending (and the derived WakeupLimit),
// potentially unblocking producers that are already waiting.
func (e *SequencedExecutor) SetTaskLimit(n int) {
	e.mu.Lock()
	e.cfg.setMaxPending(n)
	signal := e.maybeUnblockSelf()
	e.mu.Unlock()
	if signal {
		e.producerCond.Broadcast()
	}
}

// Stats returns accepted-task count and queue-size samples accumulated
// since the last call, then resets those counters (spec.md §6).
func (e *SequencedExecutor) Stats() ExecutorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	e.stats = ExecutorStats{}
	return out
}

// Close drains all pending work, transitions the executor to CLOSED, and
// waits for every worker goroutine to exit (spec.md §4.H "shutdown").
func (e *SequencedExecutor) Close() {
	e.Sync()
	e.mu.Lock()
	if e.state == selfClosed {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.state = selfClosed
	for !e.workerStack.empty() {
		widx := e.workerStack.pop()
		w := e.workers[widx]
		w.state = workerDone
		w.cond.Signal()
	}
	e.producerCond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}
