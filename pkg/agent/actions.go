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
	"log/slog"
)

// runAction executes the action chosen for prev and returns the resulting
// state. It never returns an error to the caller: every failure mode named
// in spec §7 is absorbed into a state transition or a log line, per the
// original actor's tick_* handlers.
func (l *AgentLoop) runAction(ctx context.Context, prev AgentState, override overrideCommand) AgentState {
	action := l.actionFor(prev, override)

	switch action.Kind {
	case ActionInitialize:
		return l.tickInitialize(ctx)
	case ActionReportSteady:
		return l.tickReportSteady(ctx)
	case ActionCheckUpdates:
		return l.tickCheckUpdates(ctx)
	case ActionStage:
		return l.tickStageUpdate(ctx, action.Release, prev)
	case ActionFinalize:
		return l.tickFinalizeUpdate(ctx, action.Release, prev, override)
	case ActionWaitForReboot:
		return l.tickEnd(action.Release)
	default:
		return prev
	}
}

// actionFor applies override commands on top of the pure StateMachine
// mapping (spec §4.3 "Override commands").
func (l *AgentLoop) actionFor(prev AgentState, override overrideCommand) Action {
	switch override {
	case overrideCheckUpdate:
		if prev.Kind() != KindEndState && prev.Kind() != KindUpdateStaged && prev.Kind() != KindUpdateFinalized {
			return Action{Kind: ActionCheckUpdates}
		}
	case overrideFinalizeUpdate, overrideFinalizeUpdateForce:
		if prev.Kind() == KindUpdateStaged {
			return Action{Kind: ActionFinalize, Release: prev.Release()}
		}
	}
	return ActionFor(prev)
}

func (l *AgentLoop) logExcludedDeployments(depls []Release) {
	var others []Release
	foundBooted := false
	for _, d := range depls {
		if d.Equal(l.identity.CurrentOS) {
			foundBooted = true
			continue
		}
		others = append(others, d)
	}
	if !foundBooted {
		slog.Error("could not find booted deployment in deployments")
		return
	}
	if len(others) > 0 {
		slog.Info("found other finalized deployments", "count", len(others))
		for _, r := range others {
			slog.Info("deployment will be excluded from being a future update target", "version", r.Version, "checksum", r.Checksum)
		}
	} else {
		slog.Debug("no other local finalized deployments found; no update targets will be excluded")
	}
}

// tickInitialize implements spec §4.7 "Initialize".
func (l *AgentLoop) tickInitialize(ctx context.Context) AgentState {
	if l.enabled {
		if err := l.deployment.RegisterAsDriver(ctx); err != nil {
			slog.Warn("failed to register as update driver", "error", err)
		}
	}

	depls, err := l.deployment.QueryLocalDeployments(ctx, true)
	if err == nil {
		l.logExcludedDeployments(depls)
	}

	l.notify.Ready()

	if l.enabled {
		status := "initialization complete, auto-updates logic enabled"
		slog.Info(status)
		l.notify.Status(status)
		l.strategy.RecordDetails(ctx)
		return Initialized()
	}

	status := "initialization complete, auto-updates logic disabled by configuration"
	slog.Warn(status)
	l.notify.Status(status)
	return End()
}

// tickReportSteady implements spec §4.7 "ReportSteady".
func (l *AgentLoop) tickReportSteady(ctx context.Context) AgentState {
	if l.strategy.ReportSteady(ctx) {
		slog.Info("reached steady state, periodically polling for updates")
		l.notify.Status("periodically polling for updates")
		return ReportedSteady()
	}
	return Initialized()
}

// tickCheckUpdates implements spec §4.7 "CheckUpdates".
func (l *AgentLoop) tickCheckUpdates(ctx context.Context) AgentState {
	depls, err := l.deployment.QueryLocalDeployments(ctx, true)
	if err != nil {
		slog.Error("failed to query local deployments", "error", err)
		return NoNewUpdate()
	}

	l.notify.Status(fmt.Sprintf("periodically polling for updates (last checked %s)", nowFunc().Format("Mon 2006-01-02 15:04:05 MST")))

	hint, err := l.updateGraph.FetchUpdateHint(ctx, l.identity, depls, l.allowDowngrade)
	if err != nil {
		slog.Debug("transient error fetching update hint", "error", err)
		return NoNewUpdate()
	}
	if hint == nil {
		return NoNewUpdate()
	}

	l.notify.Status(fmt.Sprintf("found update on remote: %s", hint.Version))
	return UpdateAvailableState(*hint, 0)
}

// tickStageUpdate implements spec §4.7 "Stage(release)".
func (l *AgentLoop) tickStageUpdate(ctx context.Context, release Release, prev AgentState) AgentState {
	staged, err := l.deployment.Stage(ctx, release, l.allowDowngrade)
	if err == nil {
		msg := fmt.Sprintf("update staged: %s", staged.Version)
		slog.Info(msg)
		l.notify.Status(msg)
		return UpdateStagedState(staged)
	}

	failCount := prev.DeployFailCount() + 1
	if failCount >= MaxDeployAttempts {
		slog.Warn("persistent deploy failure detected, target release abandoned", "version", release.Version)
		return NoNewUpdate()
	}

	msg := fmt.Sprintf("trying to stage %s (%d failed deployment attempts)", release.Version, failCount)
	slog.Debug(msg)
	l.notify.Status(msg)
	return UpdateAvailableState(release, failCount)
}

// tickFinalizeUpdate implements spec §4.7 "Finalize(release)".
func (l *AgentLoop) tickFinalizeUpdate(ctx context.Context, release Release, prev AgentState, override overrideCommand) AgentState {
	l.metrics.IncFinalizationAttempts()

	if !l.strategy.CanFinalize(ctx) {
		l.notify.Status(fmt.Sprintf("update staged: %s; reboot pending due to update strategy", release.Version))
		// Strategic blocks reset postponements (spec §9 open question,
		// resolved): the block is policy, not user activity.
		return UpdateStagedState(release)
	}

	force := override == overrideFinalizeUpdateForce
	if !force && l.sessions != nil && l.sessions.ActiveSessionsBlockFinalize(ctx) && prev.PostponementsRemaining() > 0 {
		l.metrics.IncFinalizationBlocked(ActiveUserSessionsLabel)
		l.notify.Status(fmt.Sprintf("update staged: %s; reboot delayed due to active user sessions", release.Version))
		return UpdateStagedWithPostponements(release, prev.PostponementsRemaining()-1)
	}

	finalized, err := l.deployment.Finalize(ctx, release)
	if err != nil {
		slog.Error("failed to finalize deployment", "error", err, "version", release.Version)
		return UpdateStagedWithPostponements(release, prev.PostponementsRemaining())
	}

	l.metrics.IncFinalizationSuccess()
	l.notify.Status(fmt.Sprintf("update finalized: %s", finalized.Version))
	return UpdateFinalizedState(finalized)
}

// tickEnd implements spec §4.7 "WaitForReboot".
func (l *AgentLoop) tickEnd(release Release) AgentState {
	status := fmt.Sprintf("update applied, waiting for reboot: %s", release.Version)
	slog.Info(status)
	l.notify.Status(status)
	return End()
}

// nowFunc is overridable in tests.
var nowFunc = defaultNow
