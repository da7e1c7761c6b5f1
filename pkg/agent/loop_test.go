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
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeployment is a scriptable DeploymentClient test double.
type fakeDeployment struct {
	mu sync.Mutex

	localDeployments []Release
	localErr         error

	stageFailures int // number of Stage calls that fail before succeeding
	stageCalls    int
	finalizeErr   error

	registerCalls int
}

func (f *fakeDeployment) RegisterAsDriver(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	return nil
}

func (f *fakeDeployment) QueryLocalDeployments(ctx context.Context, omitStaged bool) ([]Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localDeployments, f.localErr
}

func (f *fakeDeployment) Stage(ctx context.Context, release Release, allowDowngrade bool) (Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stageCalls++
	if f.stageCalls <= f.stageFailures {
		return Release{}, errors.New("fake stage failure")
	}
	return release, nil
}

func (f *fakeDeployment) Finalize(ctx context.Context, release Release) (Release, error) {
	if f.finalizeErr != nil {
		return Release{}, f.finalizeErr
	}
	return release, nil
}

// fakeUpdateGraph is a scriptable UpdateGraphClient test double.
type fakeUpdateGraph struct {
	hint *Release
	err  error
}

func (f *fakeUpdateGraph) FetchUpdateHint(ctx context.Context, identity Identity, localReleases []Release, allowDowngrade bool) (*Release, error) {
	return f.hint, f.err
}

// fakeStrategy is a scriptable Strategy test double.
type fakeStrategy struct {
	steady        bool
	canFinalize   bool
	recordedCalls int
}

func (f *fakeStrategy) ReportSteady(ctx context.Context) bool { return f.steady }
func (f *fakeStrategy) CanFinalize(ctx context.Context) bool  { return f.canFinalize }
func (f *fakeStrategy) RecordDetails(ctx context.Context)     { f.recordedCalls++ }

// fakeSessions is a scriptable UserSessionChecker test double.
type fakeSessions struct{ blocks bool }

func (f *fakeSessions) ActiveSessionsBlockFinalize(ctx context.Context) bool { return f.blocks }

func newTestLoop(t *testing.T, dep *fakeDeployment, graph *fakeUpdateGraph, strat *fakeStrategy, sessions *fakeSessions, enabled bool) *AgentLoop {
	t.Helper()
	return NewAgentLoop(Config{
		Identity:       Identity{NodeID: "node-1", CurrentOS: Release{Version: "39.1", Checksum: "booted"}},
		Enabled:        enabled,
		AllowDowngrade: false,
		SteadyInterval: 0,
		Deployment:     dep,
		UpdateGraph:    graph,
		Strategy:       strat,
		Sessions:       sessions,
		Metrics:        NewMetrics("test"),
	})
}

// TestScenario1_FreshStartDisabled pins spec S1.
func TestScenario1_FreshStartDisabled(t *testing.T) {
	dep := &fakeDeployment{}
	l := newTestLoop(t, dep, &fakeUpdateGraph{}, &fakeStrategy{}, &fakeSessions{}, false)

	cur := l.runAction(context.Background(), StartAgentState(), overrideNone)
	assert.Equal(t, KindEndState, cur.Kind())

	_, delayed := l.scheduler.NextTick(StartAgentState(), cur)
	assert.True(t, ShouldTickImmediately(StartAgentState(), cur), "disabled startup transitions immediately into EndState")
	assert.False(t, delayed)
}

// TestScenario2_NoUpdateAvailable pins spec S2.
func TestScenario2_NoUpdateAvailable(t *testing.T) {
	booted := Release{Version: "39.1", Checksum: "booted"}
	dep := &fakeDeployment{localDeployments: []Release{booted}}
	l := newTestLoop(t, dep, &fakeUpdateGraph{}, &fakeStrategy{steady: true}, &fakeSessions{}, true)
	l.identity.CurrentOS = booted
	ctx := context.Background()

	s := l.runAction(ctx, StartAgentState(), overrideNone)
	require.Equal(t, KindInitialized, s.Kind())

	s = l.runAction(ctx, s, overrideNone)
	require.Equal(t, KindReportedSteady, s.Kind())

	s = l.runAction(ctx, s, overrideNone)
	require.Equal(t, KindNoNewUpdate, s.Kind())

	next := l.runAction(ctx, s, overrideNone)
	assert.Equal(t, KindNoNewUpdate, next.Kind())
	assert.False(t, ShouldTickImmediately(s, next), "NoNewUpdate->NoNewUpdate is a stable, delayed transition")
}

// TestScenario3_UpdateAvailableStagedFinalized pins spec S3.
func TestScenario3_UpdateAvailableStagedFinalized(t *testing.T) {
	ageCurrent := uint64(4)
	ageNew := uint64(5)
	booted := Release{Version: "39.1", Checksum: "booted", AgeIndex: &ageCurrent}
	hint := Release{Version: "40.20240101.0", Checksum: "abc", AgeIndex: &ageNew}

	dep := &fakeDeployment{localDeployments: []Release{booted}}
	graph := &fakeUpdateGraph{hint: &hint}
	strat := &fakeStrategy{steady: true, canFinalize: true}
	l := newTestLoop(t, dep, graph, strat, &fakeSessions{}, true)
	l.identity.CurrentOS = booted
	ctx := context.Background()

	s := NoNewUpdate()
	s = l.runAction(ctx, s, overrideNone)
	require.Equal(t, KindUpdateAvailable, s.Kind())
	assert.True(t, s.Release().Equal(hint))

	s = l.runAction(ctx, s, overrideNone)
	require.Equal(t, KindUpdateStaged, s.Kind())
	assert.Equal(t, MaxPostponements, int(s.PostponementsRemaining()))

	s = l.runAction(ctx, s, overrideNone)
	require.Equal(t, KindUpdateFinalized, s.Kind())

	s = l.runAction(ctx, s, overrideNone)
	assert.Equal(t, KindEndState, s.Kind())

	assert.EqualValues(t, 1, testutil.ToFloat64(l.metrics.finalizationSuccess.WithLabelValues()))
	assert.GreaterOrEqual(t, testutil.ToFloat64(l.metrics.finalizationAttempts.WithLabelValues()), float64(1))
}

// TestScenario4_StageFailureThenAbandonment pins spec S4.
func TestScenario4_StageFailureThenAbandonment(t *testing.T) {
	release := Release{Version: "40.1", Checksum: "abc"}
	dep := &fakeDeployment{stageFailures: MaxDeployAttempts}
	l := newTestLoop(t, dep, &fakeUpdateGraph{}, &fakeStrategy{}, &fakeSessions{}, true)
	ctx := context.Background()

	s := UpdateAvailableState(release, 0)
	for i := 0; i < MaxDeployAttempts-1; i++ {
		s = l.runAction(ctx, s, overrideNone)
		require.Equal(t, KindUpdateAvailable, s.Kind())
		assert.EqualValues(t, i+1, s.DeployFailCount())
	}

	s = l.runAction(ctx, s, overrideNone)
	assert.Equal(t, KindNoNewUpdate, s.Kind(), "target abandoned after MaxDeployAttempts failures")
}

// TestScenario5_UserSessionsBlockThenAdmit pins spec S5.
func TestScenario5_UserSessionsBlockThenAdmit(t *testing.T) {
	release := Release{Version: "40.1", Checksum: "abc"}
	dep := &fakeDeployment{}
	sessions := &fakeSessions{blocks: true}
	l := newTestLoop(t, dep, &fakeUpdateGraph{}, &fakeStrategy{canFinalize: true}, sessions, true)
	ctx := context.Background()

	s := UpdateStagedState(release)
	remaining := s.PostponementsRemaining()
	for remaining > 0 {
		s = l.runAction(ctx, s, overrideNone)
		require.Equal(t, KindUpdateStaged, s.Kind())
		remaining--
		assert.Equal(t, remaining, s.PostponementsRemaining())
	}

	sessions.blocks = false
	s = l.runAction(ctx, s, overrideNone)
	assert.Equal(t, KindUpdateFinalized, s.Kind(), "finalization proceeds once the session gate clears")
}

// TestScenario5_ForceBypassesSessionGateNotStrategyGate pins the
// force=true semantics from spec §4.3.
func TestScenario5_ForceBypassesSessionGateNotStrategyGate(t *testing.T) {
	release := Release{Version: "40.1", Checksum: "abc"}
	dep := &fakeDeployment{}
	sessions := &fakeSessions{blocks: true}

	blockedByStrategy := newTestLoop(t, dep, &fakeUpdateGraph{}, &fakeStrategy{canFinalize: false}, sessions, true)
	s := blockedByStrategy.runAction(context.Background(), UpdateStagedState(release), overrideFinalizeUpdateForce)
	assert.Equal(t, KindUpdateStaged, s.Kind(), "force does not bypass the strategy gate")
	assert.Equal(t, MaxPostponements, int(s.PostponementsRemaining()), "strategic block resets postponements")

	admitted := newTestLoop(t, dep, &fakeUpdateGraph{}, &fakeStrategy{canFinalize: true}, sessions, true)
	s = admitted.runAction(context.Background(), UpdateStagedState(release), overrideFinalizeUpdateForce)
	assert.Equal(t, KindUpdateFinalized, s.Kind(), "force bypasses the session gate")
}

// TestScenario6_IpcCheckUpdateReturnsVersion pins spec S6: from NoNewUpdate,
// a single forced tick against a graph that now returns a release makes
// CheckUpdate report its version. Exercises the IpcSurface -> AgentLoop
// mailbox wiring directly, one tick at a time, rather than the full Run
// loop (which always starts a fresh lifecycle from StartState).
func TestScenario6_IpcCheckUpdateReturnsVersion(t *testing.T) {
	release := Release{Version: "40.1", Checksum: "abc"}
	dep := &fakeDeployment{}
	graph := &fakeUpdateGraph{hint: &release}
	l := newTestLoop(t, dep, graph, &fakeStrategy{}, &fakeSessions{}, true)
	l.setState(NoNewUpdate())
	surface := NewIpcSurface(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		req := <-l.mailbox
		cur := l.runAction(ctx, l.CurrentState(), req.override)
		l.setState(cur)
		if req.reply != nil {
			req.reply <- cur
		}
	}()

	versions, err := surface.CheckUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{release.Version}, versions)
}

// TestScheduler_UpdateFinalizedToEndStateIsDelayed pins the scheduler's
// treatment of the UpdateFinalized->EndState transition: it gets a short
// delayed tick rather than an immediate one.
func TestScheduler_UpdateFinalizedToEndStateIsDelayed(t *testing.T) {
	s := NewScheduler(0)
	_, delayed := s.NextTick(UpdateFinalizedState(Release{Version: "1"}), End())
	assert.True(t, delayed, "UpdateFinalized->EndState is a deliberate short-delayed transition (spec §9 open question)")
}
