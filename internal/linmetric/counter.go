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

package linmetric

import "go.uber.org/atomic"

// BoundDeltaCounter accumulates since the last Gather/Reset and is zeroed
// on read, suited for rate-style metrics (e.g. tasks_consumed since last scrape).
type BoundDeltaCounter struct {
	v atomic.Float64
}

func newBoundDeltaCounter() *BoundDeltaCounter {
	return &BoundDeltaCounter{}
}

// Incr adds one to the counter.
func (c *BoundDeltaCounter) Incr() {
	c.v.Add(1)
}

// Add adds delta to the counter.
func (c *BoundDeltaCounter) Add(delta float64) {
	c.v.Add(delta)
}

// Get returns the accumulated value without resetting it.
func (c *BoundDeltaCounter) Get() float64 {
	return c.v.Load()
}

// Reset zeroes the counter and returns the value it held.
func (c *BoundDeltaCounter) Reset() float64 {
	return c.v.Swap(0)
}

// BoundCumulativeCounter accumulates for the lifetime of the process and is
// never reset by Gather, suited for monotonic totals (e.g. accepted tasks).
type BoundCumulativeCounter struct {
	v atomic.Float64
}

func newBoundCumulativeCounter() *BoundCumulativeCounter {
	return &BoundCumulativeCounter{}
}

// Incr adds one to the counter.
func (c *BoundCumulativeCounter) Incr() {
	c.v.Add(1)
}

// Add adds delta to the counter.
func (c *BoundCumulativeCounter) Add(delta float64) {
	c.v.Add(delta)
}

// Get returns the running total.
func (c *BoundCumulativeCounter) Get() float64 {
	return c.v.Load()
}
