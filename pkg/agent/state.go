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

// Package agent implements the update-agent state machine: the per-tick
// decision procedure that advances a node between start, initialized,
// steady, idle-polling, update-available, staged, finalized, and terminal
// states.
package agent

import "fmt"

// MaxDeployAttempts bounds the number of failed staging attempts before a
// target release is abandoned.
const MaxDeployAttempts = 3

// MaxPostponements bounds the number of times finalization can be
// postponed due to active user sessions before it proceeds regardless.
const MaxPostponements = 10

// Kind discriminates AgentState variants. Two states with different Kind
// values are considered a discriminant change for scheduling purposes.
type Kind int

const (
	KindStartState Kind = iota
	KindInitialized
	KindReportedSteady
	KindNoNewUpdate
	KindUpdateAvailable
	KindUpdateStaged
	KindUpdateFinalized
	KindEndState
)

func (k Kind) String() string {
	switch k {
	case KindStartState:
		return "StartState"
	case KindInitialized:
		return "Initialized"
	case KindReportedSteady:
		return "ReportedSteady"
	case KindNoNewUpdate:
		return "NoNewUpdate"
	case KindUpdateAvailable:
		return "UpdateAvailable"
	case KindUpdateStaged:
		return "UpdateStaged"
	case KindUpdateFinalized:
		return "UpdateFinalized"
	case KindEndState:
		return "EndState"
	default:
		return "Unknown"
	}
}

// Release is the externally visible identity of a deployment: version,
// checksum, and an optional age index used for total ordering.
type Release struct {
	Version  string
	Checksum string
	AgeIndex *uint64
}

// Equal reports whether two releases share the same checksum — the
// spec-defined equality for releases.
func (r Release) Equal(other Release) bool {
	return r.Checksum == other.Checksum
}

// Less orders releases by (age_index, version), with releases lacking an
// age index sorting before those that have one.
func (r Release) Less(other Release) bool {
	switch {
	case r.AgeIndex == nil && other.AgeIndex == nil:
		return r.Version < other.Version
	case r.AgeIndex == nil:
		return true
	case other.AgeIndex == nil:
		return false
	case *r.AgeIndex != *other.AgeIndex:
		return *r.AgeIndex < *other.AgeIndex
	default:
		return r.Version < other.Version
	}
}

func (r Release) String() string {
	return fmt.Sprintf("%s (%s)", r.Version, r.Checksum)
}

// Identity is the booted deployment's fixed identity plus a stable node
// identifier, derived once at initialization.
type Identity struct {
	NodeID     string
	CurrentOS  Release
	BaseArch   string
	Stream     string
}

// AgentState is a tagged union over the update agent's lifecycle. The zero
// value is StartState.
type AgentState struct {
	kind Kind

	release           Release
	deployFailCount   uint8
	postponementsLeft uint8
}

// StartAgentState constructs the initial state.
func StartAgentState() AgentState {
	return AgentState{kind: KindStartState}
}

// Kind returns the state's discriminant.
func (s AgentState) Kind() Kind { return s.kind }

// Release returns the release carried by UpdateAvailable, UpdateStaged, or
// UpdateFinalized states. Zero value otherwise.
func (s AgentState) Release() Release { return s.release }

// DeployFailCount returns the number of consecutive failed staging attempts
// for the current UpdateAvailable episode.
func (s AgentState) DeployFailCount() uint8 { return s.deployFailCount }

// PostponementsRemaining returns the remaining finalization postponements
// for the current UpdateStaged episode.
func (s AgentState) PostponementsRemaining() uint8 { return s.postponementsLeft }

func (s AgentState) String() string {
	switch s.kind {
	case KindUpdateAvailable:
		return fmt.Sprintf("UpdateAvailable(%s, fail=%d)", s.release, s.deployFailCount)
	case KindUpdateStaged:
		return fmt.Sprintf("UpdateStaged(%s, postponements=%d)", s.release, s.postponementsLeft)
	case KindUpdateFinalized:
		return fmt.Sprintf("UpdateFinalized(%s)", s.release)
	default:
		return s.kind.String()
	}
}

// Transition constructors. Each returns a fresh AgentState; the machine
// itself is pure, the caller is responsible for storing the result.

func Initialized() AgentState   { return AgentState{kind: KindInitialized} }
func ReportedSteady() AgentState { return AgentState{kind: KindReportedSteady} }
func NoNewUpdate() AgentState   { return AgentState{kind: KindNoNewUpdate} }
func End() AgentState           { return AgentState{kind: KindEndState} }

// UpdateAvailableState starts (or continues) an UpdateAvailable episode for
// release with the given failure count.
func UpdateAvailableState(release Release, failCount uint8) AgentState {
	return AgentState{kind: KindUpdateAvailable, release: release, deployFailCount: failCount}
}

// UpdateStagedState enters UpdateStaged, resetting postponements to
// MaxPostponements per invariant 3 in spec §3 — callers that must preserve
// an existing postponement count use UpdateStagedWithPostponements.
func UpdateStagedState(release Release) AgentState {
	return AgentState{kind: KindUpdateStaged, release: release, postponementsLeft: MaxPostponements}
}

// UpdateStagedWithPostponements enters UpdateStaged preserving an explicit
// postponement count (used when decrementing on a user-session block).
func UpdateStagedWithPostponements(release Release, postponementsLeft uint8) AgentState {
	return AgentState{kind: KindUpdateStaged, release: release, postponementsLeft: postponementsLeft}
}

// UpdateFinalizedState enters UpdateFinalized for release.
func UpdateFinalizedState(release Release) AgentState {
	return AgentState{kind: KindUpdateFinalized, release: release}
}
