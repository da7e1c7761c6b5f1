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

package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/prometheus/client_golang/prometheus"
)

// clientIDEnvVar carries a correlation value through to the status binary,
// the renamed analogue of the original's RPMOSTREE_CLIENT_ID (spec_full
// §11.1, §12.5).
const clientIDEnvVar = "FLEETEDGE_AGENTD_CLIENT_ID"

// statusCache holds the last-seen status payload keyed by the deployments
// directory's mtime, mirroring the original's StatusCache contract.
type statusCache struct {
	mtime  time.Time
	status statusJSON
}

// Client is a subprocess-driven agent.DeploymentClient, grounded in
// original_source/src/rpm_ostree/cli_status.rs.
type Client struct {
	binaryPath     string
	deploymentsDir string
	clientID       string
	metrics        *Metrics

	mu    sync.Mutex
	cache *statusCache
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics registers the client's counters under registry.
func WithMetrics(namespace string, registry *prometheus.Registry) Option {
	return func(c *Client) { c.metrics = NewMetrics(namespace, registry) }
}

// New builds a Client invoking binaryPath (default "rpm-ostree"), watching
// deploymentsDir's mtime (default "/ostree/deploy") for cache invalidation.
func New(binaryPath, deploymentsDir, clientID string, opts ...Option) *Client {
	if binaryPath == "" {
		binaryPath = "rpm-ostree"
	}
	if deploymentsDir == "" {
		deploymentsDir = "/ostree/deploy"
	}
	if clientID == "" {
		clientID = "fleetedge-agentd"
	}
	c := &Client{binaryPath: binaryPath, deploymentsDir: deploymentsDir, clientID: clientID}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ agent.DeploymentClient = (*Client)(nil)

// RegisterAsDriver registers this agent as rpm-ostree's update driver.
func (c *Client) RegisterAsDriver(ctx context.Context) error {
	slog.Info("registering as the update driver")
	_, err := c.run(ctx, "register-driver", "--name", c.clientID)
	return err
}

// QueryLocalDeployments returns the local deployments known to the status
// subsystem, using the mtime-keyed cache when possible.
func (c *Client) QueryLocalDeployments(ctx context.Context, omitStaged bool) ([]agent.Release, error) {
	status, err := c.status(ctx)
	if err != nil {
		return nil, err
	}
	return parseLocalDeployments(status, omitStaged), nil
}

// Snapshots yields successive deployment-status snapshots: exactly one when
// interval is zero, or repeatedly every interval until ctx is done or the
// caller stops ranging (by returning false from the range body, or simply
// breaking). This is the iterator-based status-polling orchestration named
// in SPEC_FULL §10.3, styled after the teacher's own iter.Seq2-returning
// generators rather than blocking until an entire history is collected.
func (c *Client) Snapshots(ctx context.Context, interval time.Duration) iter.Seq2[[]agent.Release, error] {
	return func(yield func([]agent.Release, error) bool) {
		for {
			deployments, err := c.QueryLocalDeployments(ctx, false)
			if !yield(deployments, err) {
				return
			}
			if interval <= 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}
}

// Identity queries the status subsystem for the booted release and the
// host's base architecture and update stream, the values an agent.Identity
// needs at startup before the first tick ever runs.
func (c *Client) Identity(ctx context.Context) (booted agent.Release, basearch, stream string, err error) {
	status, err := c.status(ctx)
	if err != nil {
		return agent.Release{}, "", "", err
	}
	booted, err = parseBooted(status)
	if err != nil {
		return agent.Release{}, "", "", err
	}
	basearch, err = parseBasearch(status)
	if err != nil {
		return agent.Release{}, "", "", err
	}
	stream, err = parseUpdatesStream(status)
	if err != nil {
		return agent.Release{}, "", "", err
	}
	return booted, basearch, stream, nil
}

// Stage stages release as a new deployment. allowDowngrade permits staging
// a release older than the booted one.
func (c *Client) Stage(ctx context.Context, release agent.Release, allowDowngrade bool) (agent.Release, error) {
	args := []string{"deploy", release.Checksum, "--lock-finalization"}
	if allowDowngrade {
		args = append(args, "--allow-downgrade")
	}
	if _, err := c.run(ctx, args...); err != nil {
		return agent.Release{}, fmt.Errorf("failed to stage %s: %w", release.Version, err)
	}
	c.invalidateCache()
	return release, nil
}

// Finalize finalizes a previously staged release as the next boot target.
func (c *Client) Finalize(ctx context.Context, release agent.Release) (agent.Release, error) {
	if _, err := c.run(ctx, "finalize-deployment", release.Checksum); err != nil {
		return agent.Release{}, fmt.Errorf("failed to finalize %s: %w", release.Version, err)
	}
	c.invalidateCache()
	return release, nil
}

func (c *Client) invalidateCache() {
	c.mu.Lock()
	c.cache = nil
	c.mu.Unlock()
}

// status returns the current status payload, refreshing it whenever the
// deployments directory's mtime differs from the cached value.
func (c *Client) status(ctx context.Context) (statusJSON, error) {
	c.metrics.incCacheAttempts()

	info, err := os.Stat(c.deploymentsDir)
	if err != nil {
		return statusJSON{}, fmt.Errorf("failed to query directory %s: %w", c.deploymentsDir, err)
	}
	mtime := info.ModTime()

	c.mu.Lock()
	if c.cache != nil && c.cache.mtime.Equal(mtime) {
		cached := c.cache.status
		c.mu.Unlock()
		slog.Debug("cache fresh, using cached deployment status")
		return cached, nil
	}
	c.mu.Unlock()

	c.metrics.incCacheMisses()
	slog.Debug("cache stale, invoking status binary")

	c.metrics.incStatusAttempts()
	out, err := c.run(ctx, "status", "--json")
	if err != nil {
		c.metrics.incStatusFailures()
		return statusJSON{}, err
	}

	var status statusJSON
	if err := json.Unmarshal(out, &status); err != nil {
		return statusJSON{}, fmt.Errorf("failed to parse status output: %w", err)
	}

	c.mu.Lock()
	c.cache = &statusCache{mtime: mtime, status: status}
	c.mu.Unlock()

	return status, nil
}

// run invokes the binary with args, returning its stdout. Status-specific
// metrics are recorded by callers, not here — register-driver/deploy/
// finalize-deployment invocations are separate actor messages in the
// original and must not inflate the status attempt/failure counters
// (spec §6 "status invocation attempts/failures").
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	cmd.Env = append(os.Environ(), clientIDEnvVar+"="+c.clientID)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s %v failed: %s", c.binaryPath, args, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("failed to run %s: %w", c.binaryPath, err)
	}
	return out, nil
}
