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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldTickImmediately_DiscriminantChange(t *testing.T) {
	assert.True(t, ShouldTickImmediately(StartAgentState(), Initialized()))
	assert.False(t, ShouldTickImmediately(Initialized(), Initialized()))
}

// TestShouldTickImmediately_ReportedSteadyToNoNewUpdate pins the special
// case carried forward from the original actor's should_tick_immediately:
// this transition is treated as stable, not a discriminant change.
func TestShouldTickImmediately_ReportedSteadyToNoNewUpdate(t *testing.T) {
	assert.False(t, ShouldTickImmediately(ReportedSteady(), NoNewUpdate()))
}

func TestShouldTickImmediately_OtherTransitionsAreImmediate(t *testing.T) {
	release := Release{Version: "34.1", Checksum: "abc"}
	assert.True(t, ShouldTickImmediately(NoNewUpdate(), UpdateAvailableState(release, 0)))
	assert.True(t, ShouldTickImmediately(UpdateStagedState(release), UpdateFinalizedState(release)))
}

func TestJitter_WithinBounds(t *testing.T) {
	period := 300 * time.Second // steady interval of 5 minutes
	for r := int64(0); r <= 10; r++ {
		d := Jitter(period, r)
		assert.GreaterOrEqual(t, d, period)
		assert.LessOrEqual(t, d, period+10*3*time.Second)
	}
}

func TestJitter_MinimumStepIsOne(t *testing.T) {
	period := 2 * time.Second // floor(2/100) == 0, step must clamp to 1
	assert.Equal(t, 2*time.Second, Jitter(period, 0))
	assert.Equal(t, 12*time.Second, Jitter(period, 10))
}

func TestScheduler_NextTick_ImmediateOnDiscriminantChange(t *testing.T) {
	s := NewScheduler(5 * time.Minute)
	_, delayed := s.NextTick(StartAgentState(), Initialized())
	assert.False(t, delayed)
}

func TestScheduler_NextTick_JittersSteadyPolling(t *testing.T) {
	s := NewScheduler(5 * time.Minute)
	delay, delayed := s.NextTick(NoNewUpdate(), NoNewUpdate())
	assert.True(t, delayed)
	assert.GreaterOrEqual(t, delay, 5*time.Minute)
}
