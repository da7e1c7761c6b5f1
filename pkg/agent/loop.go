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
	"log/slog"
	"sync"
	"time"
)

// overrideCommand is the set of IPC-driven overrides a tick may carry
// (spec §4.3 "Override commands").
type overrideCommand int

const (
	overrideNone overrideCommand = iota
	overrideCheckUpdate
	overrideFinalizeUpdate
	overrideFinalizeUpdateForce
)

// tickRequest is one entry in the agent's mailbox: either a self-scheduled
// tick (override == overrideNone, reply == nil) or an IPC-originated tick
// carrying a reply channel the caller blocks on.
type tickRequest struct {
	override overrideCommand
	reply    chan AgentState
}

// Config bundles the collaborators and options an AgentLoop needs.
// Optional fields (Sessions, Notify, Metrics) get safe no-op defaults.
type Config struct {
	Identity       Identity
	Enabled        bool
	AllowDowngrade bool
	SteadyInterval time.Duration

	Deployment  DeploymentClient
	UpdateGraph UpdateGraphClient
	Strategy    Strategy
	Sessions    UserSessionChecker
	Notify      NotifySink
	Metrics     *Metrics
}

// AgentLoop is the single logical task that serializes ticks, acquires
// exclusive access to the AgentState, invokes its action, and applies the
// result (spec §4.3). There is exactly one AgentLoop per agent instance;
// its mailbox is the single-consumer queue the design notes in spec §9
// call for.
type AgentLoop struct {
	identity       Identity
	enabled        bool
	allowDowngrade bool

	deployment  DeploymentClient
	updateGraph UpdateGraphClient
	strategy    Strategy
	sessions    UserSessionChecker
	notify      NotifySink
	metrics     *Metrics
	scheduler   *Scheduler

	mailbox chan tickRequest

	mu    sync.RWMutex
	state AgentState
}

// NewAgentLoop constructs an AgentLoop from cfg. Run must be called to
// drive it.
func NewAgentLoop(cfg Config) *AgentLoop {
	notify := cfg.Notify
	if notify == nil {
		notify = noopNotifySink{}
	}
	return &AgentLoop{
		identity:       cfg.Identity,
		enabled:        cfg.Enabled,
		allowDowngrade: cfg.AllowDowngrade,
		deployment:     cfg.Deployment,
		updateGraph:    cfg.UpdateGraph,
		strategy:       cfg.Strategy,
		sessions:       cfg.Sessions,
		notify:         notify,
		metrics:        cfg.Metrics,
		scheduler:      NewScheduler(cfg.SteadyInterval),
		mailbox:        make(chan tickRequest, 16),
		state:          StartAgentState(),
	}
}

// CurrentState returns a snapshot of the agent's current state. Safe for
// concurrent use; the AgentLoop goroutine is the sole writer.
func (l *AgentLoop) CurrentState() AgentState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *AgentLoop) setState(s AgentState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// LastRefresh returns the UTC unix timestamp recorded at the start of the
// most recent tick (spec_full §12.6, recovered from the original's
// LastRefresh query).
func (l *AgentLoop) LastRefresh() int64 {
	return l.metrics.LastRefresh()
}

// enqueue posts req to the mailbox, blocking until there is room or ctx is
// done.
func (l *AgentLoop) enqueue(ctx context.Context, req tickRequest) error {
	select {
	case l.mailbox <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestCheckUpdate enqueues a forced CheckUpdates tick and waits for the
// resulting state (spec §4.3, used by pkg/ipc's CheckUpdate method).
func (l *AgentLoop) RequestCheckUpdate(ctx context.Context) (AgentState, error) {
	reply := make(chan AgentState, 1)
	if err := l.enqueue(ctx, tickRequest{override: overrideCheckUpdate, reply: reply}); err != nil {
		return AgentState{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return AgentState{}, ctx.Err()
	}
}

// RequestFinalizeUpdate enqueues a forced Finalize tick and waits for the
// resulting state (spec §4.3, used by pkg/ipc's FinalizeUpdate method).
// force=true bypasses the user-session gate but not the strategy gate.
func (l *AgentLoop) RequestFinalizeUpdate(ctx context.Context, force bool) (AgentState, error) {
	override := overrideFinalizeUpdate
	if force {
		override = overrideFinalizeUpdateForce
	}
	reply := make(chan AgentState, 1)
	if err := l.enqueue(ctx, tickRequest{override: override, reply: reply}); err != nil {
		return AgentState{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return AgentState{}, ctx.Err()
	}
}

// Run drives the state machine until ctx is cancelled. It processes ticks
// strictly sequentially (spec §4.3 "Serialization"): the next tick cannot
// start until the current one returns.
func (l *AgentLoop) Run(ctx context.Context) error {
	if l.allowDowngrade {
		slog.Warn("client configuration allows (possibly vulnerable) downgrades via auto-updates logic")
	}

	state := StartAgentState()
	l.setState(state)

	pending := []tickRequest{{override: overrideNone}}
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if len(pending) == 0 {
			var timerC <-chan time.Time
			if timer != nil {
				timerC = timer.C
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case req := <-l.mailbox:
				pending = append(pending, req)
			case <-timerC:
				pending = append(pending, tickRequest{override: overrideNone})
			}
			continue
		}

		req := pending[0]
		pending = pending[1:]

		prev := state
		l.metrics.SetLastRefresh(nowFunc())
		slog.Debug("update agent tick", "state", prev.String())

		cur := l.runAction(ctx, prev, req.override)
		state = cur
		l.setState(cur)

		if req.reply != nil {
			req.reply <- cur
		}

		if cur.Kind() == KindEndState {
			// Never scheduled again (spec §4.2); further mailbox entries
			// still drain (answering IPC callers) but trigger no action
			// beyond Nop, satisfying spec §8 invariant 7.
			if timer != nil {
				timer.Stop()
				timer = nil
			}
			continue
		}

		delay, delayed := l.scheduler.NextTick(prev, cur)
		if !delayed {
			pending = append(pending, tickRequest{override: overrideNone})
			continue
		}
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(delay)
	}
}
