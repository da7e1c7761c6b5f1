package ipc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeployment is a minimal agent.DeploymentClient that reports one local
// release matching the configured identity, so the loop reaches a steady,
// pollable state without ever staging anything in these tests.
type fakeDeployment struct {
	mu       sync.Mutex
	releases []agent.Release
}

func (f *fakeDeployment) RegisterAsDriver(ctx context.Context) error { return nil }

func (f *fakeDeployment) QueryLocalDeployments(ctx context.Context, omitStaged bool) ([]agent.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Release(nil), f.releases...), nil
}

func (f *fakeDeployment) Stage(ctx context.Context, release agent.Release, allowDowngrade bool) (agent.Release, error) {
	return release, nil
}

func (f *fakeDeployment) Finalize(ctx context.Context, release agent.Release) (agent.Release, error) {
	return release, nil
}

type fakeUpdateGraph struct{ hint *agent.Release }

func (f *fakeUpdateGraph) FetchUpdateHint(ctx context.Context, identity agent.Identity, local []agent.Release, allowDowngrade bool) (*agent.Release, error) {
	return f.hint, nil
}

type fakeStrategy struct{}

func (fakeStrategy) ReportSteady(ctx context.Context) bool { return true }
func (fakeStrategy) CanFinalize(ctx context.Context) bool  { return true }
func (fakeStrategy) RecordDetails(ctx context.Context)     {}

func newTestSurface(t *testing.T) (*agent.IpcSurface, func()) {
	t.Helper()

	current := agent.Release{Version: "1.0.0", Checksum: "sha256:current"}
	deployment := &fakeDeployment{releases: []agent.Release{current}}
	updateGraph := &fakeUpdateGraph{}

	loop := agent.NewAgentLoop(agent.Config{
		Identity:       agent.Identity{NodeID: "test-node", CurrentOS: current, BaseArch: "x86_64", Stream: "stable"},
		Enabled:        true,
		SteadyInterval: time.Hour,
		Deployment:     deployment,
		UpdateGraph:    updateGraph,
		Strategy:       fakeStrategy{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	return agent.NewIpcSurface(loop), cancel
}

func TestUpdatesObject_CheckUpdate_NoNewUpdate(t *testing.T) {
	surface, cancel := newTestSurface(t)
	defer cancel()

	obj := &updatesObject{surface: surface}

	require.Eventually(t, func() bool {
		versions, dErr := obj.CheckUpdate()
		return dErr == nil && versions != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdatesObject_FinalizeUpdate_NoStagedUpdate(t *testing.T) {
	surface, cancel := newTestSurface(t)
	defer cancel()

	obj := &updatesObject{surface: surface}

	require.Eventually(t, func() bool {
		_, dErr := obj.FinalizeUpdate(false)
		return dErr != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestErrNameTaken_IsAnError(t *testing.T) {
	assert.NotEmpty(t, errNameTaken.Error())
}
