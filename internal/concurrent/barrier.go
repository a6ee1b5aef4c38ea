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

// gate is a one-shot latch: countDown fires it, await blocks until it fires.
// It is the Go analogue of vespalib::Gate, used to turn a barrier callback
// into a blocking Sync call.
type gate struct {
	ch chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

// countDown fires the gate. Safe to call at most once.
func (g *gate) countDown() {
	close(g.ch)
}

// await blocks until the gate fires.
func (g *gate) await() {
	<-g.ch
}

// eventBarrier issues monotonically increasing tokens to submitted work and
// fires registered callbacks once every token issued strictly before the
// callback was registered has completed. Every method must be called with
// the executor's core lock already held: the barrier keeps no lock of its
// own, by design (spec: "tokens are assigned under the core lock at submit
// time, ensuring they reflect the global submission order").
type eventBarrier struct {
	nextToken  uint32
	completed  map[uint32]struct{}
	lowWater   uint32 // every token below this is known completed
	waiters    []barrierWaiter
}

type barrierWaiter struct {
	threshold uint32 // fires once lowWater reaches this value
	onReady   func()
}

func newEventBarrier() *eventBarrier {
	return &eventBarrier{completed: make(map[uint32]struct{})}
}

// startEvent allocates and returns a new token for a just-submitted task.
func (b *eventBarrier) startEvent() uint32 {
	token := b.nextToken
	b.nextToken++
	return token
}

// completeEvent marks token as finished and fires (synchronously, on the
// caller's goroutine) every waiter whose threshold has now been reached.
func (b *eventBarrier) completeEvent(token uint32) {
	if token == b.lowWater {
		b.lowWater++
		for {
			if _, ok := b.completed[b.lowWater]; !ok {
				break
			}
			delete(b.completed, b.lowWater)
			b.lowWater++
		}
	} else {
		b.completed[token] = struct{}{}
	}
	ready := b.waiters[:0]
	var fire []func()
	for _, w := range b.waiters {
		if b.lowWater >= w.threshold {
			fire = append(fire, w.onReady)
		} else {
			ready = append(ready, w)
		}
	}
	b.waiters = ready
	for _, f := range fire {
		f()
	}
}

// startBarrier registers onReady to fire once every token issued so far has
// completed. Returns false (firing onReady immediately, on the caller's
// goroutine) if there is nothing outstanding to wait for.
func (b *eventBarrier) startBarrier(onReady func()) bool {
	if b.lowWater >= b.nextToken {
		onReady()
		return false
	}
	b.waiters = append(b.waiters, barrierWaiter{threshold: b.nextToken, onReady: onReady})
	return true
}
