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

// Package linmetric is a small, self-registering metrics facade: a tree of
// named, tagged scopes, each able to mint gauges, counters and at most one
// histogram, plus a Gather that walks the whole tree for export.
package linmetric

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// kind identifies which concrete metric type currently owns a name within a scope.
type kind int

const (
	kindGauge kind = iota
	kindDeltaCounter
	kindCumulativeCounter
	kindDeltaHistogram
	kindCumulativeHistogram
)

func (k kind) String() string {
	switch k {
	case kindGauge:
		return "gauge"
	case kindDeltaCounter:
		return "delta_counter"
	case kindCumulativeCounter:
		return "cumulative_counter"
	case kindDeltaHistogram:
		return "delta_histogram"
	case kindCumulativeHistogram:
		return "cumulative_histogram"
	default:
		return "unknown"
	}
}

// histogramKey is the pseudo-name a scope's single histogram is registered under.
const histogramKey = "\x00histogram"

// Scope is a named, tagged namespace that mints metrics and nested scopes.
type Scope interface {
	// Scope returns (creating if necessary) a child scope with the given name and tags.
	Scope(name string, tags ...string) Scope
	NewGauge(name string) *BoundGauge
	NewGaugeVec(name string, tagKeys ...string) *GaugeVec
	NewDeltaCounter(name string) *BoundDeltaCounter
	NewDeltaCounterVec(name string, tagKeys ...string) *DeltaCounterVec
	NewCumulativeCounter(name string) *BoundCumulativeCounter
	NewDeltaHistogram() *Histogram
	NewDeltaHistogramVec(tagKeys ...string) *HistogramVec
	NewCumulativeHistogram() *Histogram
}

type metricScope struct {
	registry *registry
	fullName string
	tags     map[string]string

	mu       sync.Mutex
	children map[string]*metricScope
	owners   map[string]kind
	gauges   map[string]*BoundGauge
	deltaC   map[string]*BoundDeltaCounter
	cumC     map[string]*BoundCumulativeCounter
	hist     *Histogram
}

func newMetricScope(reg *registry, fullName string, tags map[string]string) *metricScope {
	return &metricScope{
		registry: reg,
		fullName: fullName,
		tags:     tags,
		children: make(map[string]*metricScope),
		owners:   make(map[string]kind),
		gauges:   make(map[string]*BoundGauge),
		deltaC:   make(map[string]*BoundDeltaCounter),
		cumC:     make(map[string]*BoundCumulativeCounter),
	}
}

// NewScope creates a fresh root scope, registered with the process-wide registry that Gather walks.
func NewScope(name string, tags ...string) Scope {
	if name == "" {
		panic("linmetric: scope name must not be empty")
	}
	s := newMetricScope(globalRegistry, name, parseTags(tags))
	globalRegistry.addRoot(s)
	return s
}

func parseTags(tags []string) map[string]string {
	if len(tags)%2 != 0 {
		panic("linmetric: tags must be provided as key/value pairs")
	}
	out := make(map[string]string, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		out[tags[i]] = tags[i+1]
	}
	return out
}

func (s *metricScope) Scope(name string, tags ...string) Scope {
	if name == "" {
		panic("linmetric: scope name must not be empty")
	}
	parsed := parseTags(tags)
	s.mu.Lock()
	defer s.mu.Unlock()
	if child, ok := s.children[name]; ok {
		return child
	}
	child := newMetricScope(s.registry, s.fullName+"."+name, parsed)
	s.children[name] = child
	return child
}

// claim records that name is now owned by k, panicking if it was already
// claimed by a different kind.
func (s *metricScope) claim(name string, k kind) (isNew bool) {
	if name == "" {
		panic("linmetric: metric name must not be empty")
	}
	existing, ok := s.owners[name]
	if ok {
		if existing != k {
			panic(fmt.Sprintf("linmetric: %q already registered as %s, cannot register as %s", name, existing, k))
		}
		return false
	}
	s.owners[name] = k
	return true
}

func (s *metricScope) NewGauge(name string) *BoundGauge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim(name, kindGauge) {
		s.gauges[name] = newBoundGauge()
	}
	return s.gauges[name]
}

func (s *metricScope) NewDeltaCounter(name string) *BoundDeltaCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim(name, kindDeltaCounter) {
		s.deltaC[name] = newBoundDeltaCounter()
	}
	return s.deltaC[name]
}

func (s *metricScope) NewCumulativeCounter(name string) *BoundCumulativeCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim(name, kindCumulativeCounter) {
		s.cumC[name] = newBoundCumulativeCounter()
	}
	return s.cumC[name]
}

func (s *metricScope) NewDeltaHistogram() *Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim(histogramKey, kindDeltaHistogram) {
		s.hist = newDeltaHistogram()
	}
	return s.hist
}

func (s *metricScope) NewCumulativeHistogram() *Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim(histogramKey, kindCumulativeHistogram) {
		s.hist = newCumulativeHistogram()
	}
	return s.hist
}

// GaugeVec/DeltaCounterVec/HistogramVec are tag-dimensioned families of
// metrics; each distinct combination of tag values mints its own bound
// instance lazily on first use.
type GaugeVec struct {
	scope   *metricScope
	name    string
	tagKeys []string
	mu      sync.Mutex
	series  map[string]*BoundGauge
}

func (s *metricScope) NewGaugeVec(name string, tagKeys ...string) *GaugeVec {
	if len(tagKeys) == 0 {
		panic("linmetric: vec metrics require at least one tag key")
	}
	return &GaugeVec{scope: s, name: name, tagKeys: tagKeys, series: make(map[string]*BoundGauge)}
}

// WithTagValues returns the bound gauge for the given tag values, in the
// same order as the tag keys the vec was created with.
func (v *GaugeVec) WithTagValues(values ...string) *BoundGauge {
	key := vecKey(v.tagKeys, values)
	v.mu.Lock()
	defer v.mu.Unlock()
	if g, ok := v.series[key]; ok {
		return g
	}
	g := newBoundGauge()
	v.series[key] = g
	return g
}

type DeltaCounterVec struct {
	scope   *metricScope
	name    string
	tagKeys []string
	mu      sync.Mutex
	series  map[string]*BoundDeltaCounter
}

func (s *metricScope) NewDeltaCounterVec(name string, tagKeys ...string) *DeltaCounterVec {
	if len(tagKeys) == 0 {
		panic("linmetric: vec metrics require at least one tag key")
	}
	return &DeltaCounterVec{scope: s, name: name, tagKeys: tagKeys, series: make(map[string]*BoundDeltaCounter)}
}

func (v *DeltaCounterVec) WithTagValues(values ...string) *BoundDeltaCounter {
	key := vecKey(v.tagKeys, values)
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.series[key]; ok {
		return c
	}
	c := newBoundDeltaCounter()
	v.series[key] = c
	return c
}

type HistogramVec struct {
	scope   *metricScope
	tagKeys []string
	mu      sync.Mutex
	series  map[string]*Histogram
	cumulative bool
}

func (s *metricScope) NewDeltaHistogramVec(tagKeys ...string) *HistogramVec {
	if len(tagKeys) == 0 {
		panic("linmetric: vec metrics require at least one tag key")
	}
	return &HistogramVec{scope: s, tagKeys: tagKeys, series: make(map[string]*Histogram)}
}

func (v *HistogramVec) WithTagValues(values ...string) *Histogram {
	key := vecKey(v.tagKeys, values)
	v.mu.Lock()
	defer v.mu.Unlock()
	if h, ok := v.series[key]; ok {
		return h
	}
	var h *Histogram
	if v.cumulative {
		h = newCumulativeHistogram()
	} else {
		h = newDeltaHistogram()
	}
	v.series[key] = h
	return h
}

func vecKey(keys, values []string) string {
	if len(keys) != len(values) {
		panic("linmetric: tag value count must match tag key count")
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + values[i]
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
