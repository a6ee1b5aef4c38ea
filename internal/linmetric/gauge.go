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

// BoundGauge is a point-in-time value, typically a count of live resources.
type BoundGauge struct {
	v atomic.Float64
}

func newBoundGauge() *BoundGauge {
	return &BoundGauge{}
}

// Update sets the gauge to v.
func (g *BoundGauge) Update(v float64) {
	g.v.Store(v)
}

// Incr increments the gauge by one.
func (g *BoundGauge) Incr() {
	g.v.Add(1)
}

// Decr decrements the gauge by one.
func (g *BoundGauge) Decr() {
	g.v.Sub(1)
}

// Add adds delta to the gauge.
func (g *BoundGauge) Add(delta float64) {
	g.v.Add(delta)
}

// Get returns the current value.
func (g *BoundGauge) Get() float64 {
	return g.v.Load()
}
