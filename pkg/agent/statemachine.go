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

// ActionKind names the side-effecting action a tick must perform for a
// given state. The state machine that chooses it never performs I/O.
type ActionKind int

const (
	ActionInitialize ActionKind = iota
	ActionReportSteady
	ActionCheckUpdates
	ActionStage
	ActionFinalize
	ActionWaitForReboot
	ActionNop
)

func (a ActionKind) String() string {
	switch a {
	case ActionInitialize:
		return "Initialize"
	case ActionReportSteady:
		return "ReportSteady"
	case ActionCheckUpdates:
		return "CheckUpdates"
	case ActionStage:
		return "Stage"
	case ActionFinalize:
		return "Finalize"
	case ActionWaitForReboot:
		return "WaitForReboot"
	case ActionNop:
		return "Nop"
	default:
		return "Unknown"
	}
}

// Action is the output of ActionFor: what to do, and the release it
// applies to (when relevant).
type Action struct {
	Kind    ActionKind
	Release Release
}

// ActionFor is the pure transition function mapping a state to the action
// the AgentLoop must perform for it (spec §4.1). It never performs I/O.
func ActionFor(s AgentState) Action {
	switch s.Kind() {
	case KindStartState:
		return Action{Kind: ActionInitialize}
	case KindInitialized:
		return Action{Kind: ActionReportSteady}
	case KindReportedSteady, KindNoNewUpdate:
		return Action{Kind: ActionCheckUpdates}
	case KindUpdateAvailable:
		return Action{Kind: ActionStage, Release: s.Release()}
	case KindUpdateStaged:
		return Action{Kind: ActionFinalize, Release: s.Release()}
	case KindUpdateFinalized:
		return Action{Kind: ActionWaitForReboot, Release: s.Release()}
	case KindEndState:
		return Action{Kind: ActionNop}
	default:
		return Action{Kind: ActionNop}
	}
}
