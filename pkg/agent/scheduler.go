// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"math/rand"
	"time"
)

// fixedDelay is the short, unjittered pause used for states that should be
// revisited soon but don't benefit from fleet-wide jitter.
const fixedDelay = 2 * time.Second

// stagedRetryDelay is the short, jittered delay between finalize attempts
// while a release sits in UpdateStaged.
const stagedRetryDelay = 10 * time.Second

// Scheduler computes the next-tick delay for a state transition (spec
// §4.2). It holds only the configured steady-state polling period; all
// other delays are fixed constants of the core.
type Scheduler struct {
	SteadyInterval time.Duration
	rand           *rand.Rand
}

// NewScheduler builds a Scheduler for the given steady-state polling
// period.
func NewScheduler(steadyInterval time.Duration) *Scheduler {
	return &Scheduler{
		SteadyInterval: steadyInterval,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextTick decides whether prev->cur warrants an immediate tick (returns
// delayed=false) or a delayed one (returns delayed=true and the delay).
func (s *Scheduler) NextTick(prev, cur AgentState) (delay time.Duration, delayed bool) {
	if ShouldTickImmediately(prev, cur) {
		return 0, false
	}

	d, shouldJitter := refreshDelayFor(cur, s.SteadyInterval)
	if shouldJitter {
		d = s.jitter(d)
	}
	return d, true
}

// ShouldTickImmediately reports whether a transition from prev to cur
// should trigger an immediate tick rather than a scheduled delay (spec §8
// invariant 1, with two exceptions carried forward from the original
// actor's should_tick_immediately and spec §9's open-question resolution:
// ReportedSteady->NoNewUpdate is treated as stable, and
// UpdateFinalized->EndState is deliberately short-delayed rather than
// immediate, so a late strategy report can still be logged before the
// process exits).
func ShouldTickImmediately(prev, cur AgentState) bool {
	if prev.Kind() == cur.Kind() {
		return false
	}
	if prev.Kind() == KindReportedSteady && cur.Kind() == KindNoNewUpdate {
		return false
	}
	if prev.Kind() == KindUpdateFinalized && cur.Kind() == KindEndState {
		return false
	}
	return true
}

// refreshDelayFor returns the base (unjittered) delay for a stable state
// and whether that delay should be jittered.
func refreshDelayFor(s AgentState, steadyInterval time.Duration) (time.Duration, bool) {
	switch s.Kind() {
	case KindNoNewUpdate:
		return steadyInterval, true
	case KindUpdateStaged:
		return stagedRetryDelay, true
	default:
		// KindEndState lands here too: reached only via the
		// UpdateFinalized->EndState short-delay exception above, since the
		// AgentLoop itself never calls NextTick again once EndState is
		// actually applied.
		return fixedDelay, false
	}
}

// jitter applies the spec §4.2 formula: P + r*max(floor(P/100), 1) seconds,
// r uniform in [0,10].
func (s *Scheduler) jitter(period time.Duration) time.Duration {
	secs := int64(period.Seconds())
	step := secs / 100
	if step < 1 {
		step = 1
	}
	r := int64(s.rand.Intn(11))
	return time.Duration(secs+r*step) * time.Second
}

// Jitter is the deterministic-input form of the jitter formula, exposed for
// testing the bound in spec §8 property 3 without depending on the
// Scheduler's internal RNG.
func Jitter(period time.Duration, r int64) time.Duration {
	secs := int64(period.Seconds())
	step := secs / 100
	if step < 1 {
		step = 1
	}
	return time.Duration(secs+r*step) * time.Second
}
