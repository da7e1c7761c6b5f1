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

import "context"

// DeploymentClient is the AgentLoop's view of the deployment subsystem
// (spec §4.4). Implemented by pkg/deployment.
type DeploymentClient interface {
	RegisterAsDriver(ctx context.Context) error
	QueryLocalDeployments(ctx context.Context, omitStaged bool) ([]Release, error)
	Stage(ctx context.Context, release Release, allowDowngrade bool) (Release, error)
	Finalize(ctx context.Context, release Release) (Release, error)
}

// UpdateGraphClient is the AgentLoop's view of the remote update graph
// (spec §4.5). Implemented by pkg/updategraph.
type UpdateGraphClient interface {
	FetchUpdateHint(ctx context.Context, identity Identity, localReleases []Release, allowDowngrade bool) (*Release, error)
}

// Strategy is the pluggable update policy (spec §4.6). Implemented by
// pkg/strategy's built-ins and its plugin loader.
type Strategy interface {
	ReportSteady(ctx context.Context) bool
	CanFinalize(ctx context.Context) bool
	// RecordDetails is called once, after a successful enabled
	// initialization, for strategies to log their own identity/parameters
	// (spec_full §12.2; recovered from the original's record_details hook).
	RecordDetails(ctx context.Context)
}

// UserSessionChecker reports whether interactive user sessions currently
// block finalization. A nil checker is treated as "never blocks".
type UserSessionChecker interface {
	ActiveSessionsBlockFinalize(ctx context.Context) bool
}

// NotifySink receives the host readiness/status notifications the
// Initialize and other actions must emit (spec §4.7, spec_full §11.5 and
// §12.1). Implemented by pkg/sdnotify.
type NotifySink interface {
	Ready()
	Status(msg string)
}

// noopNotifySink discards all notifications; used when no sink is wired.
type noopNotifySink struct{}

func (noopNotifySink) Ready()       {}
func (noopNotifySink) Status(string) {}
