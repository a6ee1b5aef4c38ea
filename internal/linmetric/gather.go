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

import (
	"runtime"
	"sync"
)

// registry tracks every root scope created via NewScope, so a Gather can
// walk the whole process-wide metric tree.
type registry struct {
	mu    sync.Mutex
	roots []*metricScope
}

var globalRegistry = &registry{}

func (r *registry) addRoot(s *metricScope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots = append(r.roots, s)
}

func (r *registry) snapshotRoots() []*metricScope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*metricScope, len(r.roots))
	copy(out, r.roots)
	return out
}

// Metric is a single exported reading.
type Metric struct {
	Name    string
	Tags    map[string]string
	Kind    string
	Value   float64
	Bounds  []float64
	Buckets []float64
}

// GatherOption configures a Gather.
type GatherOption func(*Gather)

// WithReadRuntimeOption makes Gather.Gather() append Go runtime metrics
// (goroutine count, heap in use) to the result.
func WithReadRuntimeOption() GatherOption {
	return func(g *Gather) { g.readRuntime = true }
}

// Gather walks the metric tree rooted at every scope created by NewScope.
type Gather struct {
	readRuntime bool
}

// NewGather builds a Gather with the given options applied.
func NewGather(opts ...GatherOption) *Gather {
	g := &Gather{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Gather collects a point-in-time snapshot of every registered metric.
func (g *Gather) Gather() []*Metric {
	var out []*Metric
	for _, root := range globalRegistry.snapshotRoots() {
		out = append(out, collect(root)...)
	}
	if g.readRuntime {
		out = append(out, g.runtimeMetrics()...)
	}
	return out
}

func collect(s *metricScope) []*Metric {
	s.mu.Lock()
	var out []*Metric
	for name, gauge := range s.gauges {
		out = append(out, &Metric{Name: s.fullName + "." + name, Tags: s.tags, Kind: kindGauge.String(), Value: gauge.Get()})
	}
	for name, c := range s.deltaC {
		out = append(out, &Metric{Name: s.fullName + "." + name, Tags: s.tags, Kind: kindDeltaCounter.String(), Value: c.Reset()})
	}
	for name, c := range s.cumC {
		out = append(out, &Metric{Name: s.fullName + "." + name, Tags: s.tags, Kind: kindCumulativeCounter.String(), Value: c.Get()})
	}
	if s.hist != nil {
		bounds, values := s.hist.snapshot()
		k := kindDeltaHistogram
		if s.hist.cumulative {
			k = kindCumulativeHistogram
		}
		for _, v := range values {
			out = append(out, &Metric{Name: s.fullName + ".histogram", Tags: s.tags, Kind: k.String(), Value: v, Bounds: bounds, Buckets: values})
		}
	}
	children := make([]*metricScope, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	s.mu.Unlock()
	for _, c := range children {
		out = append(out, collect(c)...)
	}
	return out
}

func (g *Gather) runtimeMetrics() []*Metric {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return []*Metric{
		{Name: "runtime.goroutines", Kind: kindGauge.String(), Value: float64(runtime.NumGoroutine())},
		{Name: "runtime.heap_in_use_bytes", Kind: kindGauge.String(), Value: float64(mem.HeapInuse)},
	}
}
