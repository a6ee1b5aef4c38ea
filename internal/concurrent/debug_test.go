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

// debugWorkerStates snapshots every worker's state under the core lock,
// for the invariant tests in spec.md §8: RUNNING + BLOCKED + DONE must
// always equal NumThreads.
func (e *SequencedExecutor) debugWorkerStates() map[workerState]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := make(map[workerState]int, 3)
	for _, w := range e.workers {
		counts[w.state]++
	}
	return counts
}
