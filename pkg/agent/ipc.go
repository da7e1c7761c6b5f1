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
	"fmt"
)

// IpcSurface is the external request ingress named in spec §2: it forces a
// tick and interprets the resulting state into the list-of-strings contract
// described in spec §6. Transport (pkg/ipc's D-Bus binding) wraps this type
// and never reimplements the interpretation itself.
type IpcSurface struct {
	loop *AgentLoop
}

// NewIpcSurface wraps loop for external request handling.
func NewIpcSurface(loop *AgentLoop) *IpcSurface {
	return &IpcSurface{loop: loop}
}

// CheckUpdate forces a CheckUpdates tick and interprets the resulting state
// (spec §6): [] for NoNewUpdate, [version] for UpdateAvailable, an error for
// any other observed state.
func (s *IpcSurface) CheckUpdate(ctx context.Context) ([]string, error) {
	state, err := s.loop.RequestCheckUpdate(ctx)
	if err != nil {
		return nil, err
	}
	switch state.Kind() {
	case KindNoNewUpdate:
		return []string{}, nil
	case KindUpdateAvailable:
		return []string{state.Release().Version}, nil
	default:
		return nil, fmt.Errorf("unexpected state: %s", state)
	}
}

// FinalizeUpdate forces a Finalize attempt and interprets the resulting
// state (spec §6): [version] for UpdateFinalized, an error while still
// UpdateStaged (or observing any other state). force=true bypasses only the
// user-sessions gate.
func (s *IpcSurface) FinalizeUpdate(ctx context.Context, force bool) ([]string, error) {
	state, err := s.loop.RequestFinalizeUpdate(ctx, force)
	if err != nil {
		return nil, err
	}
	switch state.Kind() {
	case KindUpdateFinalized:
		return []string{state.Release().Version}, nil
	case KindUpdateStaged:
		return nil, fmt.Errorf("finalization did not complete, update still staged: %s", state.Release().Version)
	default:
		return nil, fmt.Errorf("unexpected state: %s", state)
	}
}

// Status returns the agent's current state name and the UTC unix timestamp
// recorded at the start of its most recent tick, without forcing a tick of
// its own
// (spec_full §12.6, recovered from the original's LastRefresh query).
func (s *IpcSurface) Status(ctx context.Context) (string, int64) {
	return s.loop.CurrentState().String(), s.loop.LastRefresh()
}
