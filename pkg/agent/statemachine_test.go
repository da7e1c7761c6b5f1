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

	"github.com/stretchr/testify/assert"
)

// TestActionFor_Mapping pins the fixed state->action table from spec §4.1.
func TestActionFor_Mapping(t *testing.T) {
	release := Release{Version: "34.1", Checksum: "abc"}

	tests := []struct {
		name  string
		state AgentState
		want  ActionKind
	}{
		{"start", StartAgentState(), ActionInitialize},
		{"initialized", Initialized(), ActionReportSteady},
		{"reported_steady", ReportedSteady(), ActionCheckUpdates},
		{"no_new_update", NoNewUpdate(), ActionCheckUpdates},
		{"update_available", UpdateAvailableState(release, 0), ActionStage},
		{"update_staged", UpdateStagedState(release), ActionFinalize},
		{"update_finalized", UpdateFinalizedState(release), ActionWaitForReboot},
		{"end", End(), ActionNop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActionFor(tt.state)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestActionFor_CarriesRelease(t *testing.T) {
	release := Release{Version: "34.1", Checksum: "abc"}

	assert.Equal(t, release, ActionFor(UpdateAvailableState(release, 0)).Release)
	assert.Equal(t, release, ActionFor(UpdateStagedState(release)).Release)
	assert.Equal(t, release, ActionFor(UpdateFinalizedState(release)).Release)
}
