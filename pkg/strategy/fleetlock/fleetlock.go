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

// Package fleetlock implements an update strategy that coordinates
// finalization across a fleet of nodes through a Consul-backed distributed
// lock, so at most one node per lock key holds the reboot slot at a time. It is adapted from the teacher's Consul configuration provider
// (pkg/config's Consul loader), repurposed here as a lock backend rather
// than a config source.
package fleetlock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
)

// Config configures a fleetlock Strategy.
type Config struct {
	// ConsulAddr is the address of the Consul agent, e.g. "127.0.0.1:8500".
	ConsulAddr string
	// LockKey is the KV path under which the lock session is held.
	LockKey string
	// LockGroup names the reboot group this node coordinates within, used
	// in the lock's session name for observability.
	LockGroup string
	// NodeID identifies this node as the lock holder.
	NodeID string
	// SessionTTL bounds how long the lock is held before Consul considers
	// the session dead if this process never releases it (e.g. a reboot).
	SessionTTL time.Duration
}

// Strategy permits finalization only once it holds the fleet's distributed
// lock, acquired on a try-once basis each time CanFinalize is consulted.
type Strategy struct {
	client *api.Client
	cfg    Config

	mu   sync.Mutex
	lock *api.Lock
	held bool
}

// New builds a fleetlock Strategy against the Consul agent described by cfg.
func New(cfg Config) (*Strategy, error) {
	if cfg.LockKey == "" {
		return nil, fmt.Errorf("fleetlock: lock_key is required")
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 30 * time.Second
	}

	consulCfg := api.DefaultConfig()
	if cfg.ConsulAddr != "" {
		consulCfg.Address = cfg.ConsulAddr
	}

	client, err := api.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("fleetlock: failed to build consul client: %w", err)
	}

	return &Strategy{client: client, cfg: cfg}, nil
}

// ReportSteady always reports steady; the fleet lock only gates the reboot
// itself, not whether the node has quiesced.
func (s *Strategy) ReportSteady(ctx context.Context) bool { return true }

// CanFinalize attempts to acquire the fleet's reboot slot. It is safe to
// call repeatedly: once held, the lock is not released until this process
// exits (typically via the reboot the finalization triggers), so repeated
// calls are idempotent no-ops that keep reporting true.
func (s *Strategy) CanFinalize(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		return true
	}

	opts := &api.LockOptions{
		Key:         s.cfg.LockKey,
		Value:       []byte(s.cfg.NodeID),
		SessionName: fmt.Sprintf("fleetedge-agentd/%s", s.cfg.LockGroup),
		SessionTTL:  s.cfg.SessionTTL.String(),
		LockTryOnce: true,
	}

	lock, err := s.client.LockOpts(opts)
	if err != nil {
		slog.Error("fleetlock: failed to build lock", "error", err)
		return false
	}

	leaderCh, err := lock.Lock(ctx.Done())
	if err != nil {
		slog.Warn("fleetlock: failed to acquire reboot slot", "error", err)
		return false
	}
	if leaderCh == nil {
		slog.Debug("fleetlock: reboot slot unavailable, will retry next tick")
		return false
	}

	s.lock = lock
	s.held = true
	slog.Info("fleetlock: acquired reboot slot", "group", s.cfg.LockGroup)
	return true
}

// RecordDetails logs the lock coordinates this strategy is operating on.
func (s *Strategy) RecordDetails(ctx context.Context) {
	slog.Info("update strategy: fleetlock", "lock_key", s.cfg.LockKey, "lock_group", s.cfg.LockGroup)
}

// Release gives up the reboot slot, if held. Callers are not required to
// invoke this on the normal finalize-then-reboot path; it exists for tests
// and for graceful shutdown without finalizing.
func (s *Strategy) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held || s.lock == nil {
		return nil
	}
	err := s.lock.Unlock()
	s.held = false
	s.lock = nil
	return err
}
