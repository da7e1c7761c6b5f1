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

// Package updategraph implements the UpdateGraphClient collaborator: an
// HTTP client for the remote Cincinnati-like update graph, adapted from
// pkg/httpclient's retry/backoff machinery.
package updategraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/fleetedge/agentd/pkg/httpclient"
)

// graphResponse is the subset of a Cincinnati-like graph payload this
// client understands: nodes reachable from the caller's current version,
// each carrying a version, checksum, and age index used for ordering.
type graphResponse struct {
	Nodes []graphNode `json:"nodes"`
}

type graphNode struct {
	Version  string  `json:"version"`
	Checksum string  `json:"checksum"`
	AgeIndex *uint64 `json:"age_index,omitempty"`
}

func (n graphNode) toRelease() agent.Release {
	return agent.Release{Version: n.Version, Checksum: n.Checksum, AgeIndex: n.AgeIndex}
}

// Client is an agent.UpdateGraphClient backed by an HTTP endpoint.
type Client struct {
	endpoint string
	http     *httpclient.Client
}

// New builds a Client pointed at endpoint, with timeout set as the
// underlying http.Client's Timeout, so it bounds each attempt.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(time.Second),
			httpclient.WithHeaderParser(httpclient.ParseRetryAfterHeader),
		),
	}
}

var _ agent.UpdateGraphClient = (*Client)(nil)

// FetchUpdateHint queries the graph for an eligible update target given the
// node's identity and currently known local releases (spec §4.5). It
// returns nil, nil when no eligible release is found.
func (c *Client) FetchUpdateHint(ctx context.Context, identity agent.Identity, localReleases []agent.Release, allowDowngrade bool) (*agent.Release, error) {
	req, err := c.buildRequest(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to build update graph request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch update graph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update graph returned status %d", resp.StatusCode)
	}

	var graph graphResponse
	if err := json.NewDecoder(resp.Body).Decode(&graph); err != nil {
		return nil, fmt.Errorf("failed to decode update graph response: %w", err)
	}

	return pickTarget(identity.CurrentOS, localReleases, graph.Nodes, allowDowngrade), nil
}

func (c *Client) buildRequest(ctx context.Context, identity agent.Identity) (*http.Request, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("node_id", identity.NodeID)
	q.Set("basearch", identity.BaseArch)
	q.Set("stream", identity.Stream)
	q.Set("current_version", identity.CurrentOS.Version)
	q.Set("current_checksum", identity.CurrentOS.Checksum)
	u.RawQuery = q.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// pickTarget selects the best eligible release from candidates: the release
// with the greatest age index (or, absent an index, lexically greatest
// version) that is not equal to current, not already present among
// localReleases (spec §4.5(b)), and, unless allowDowngrade, not older than
// current.
func pickTarget(current agent.Release, localReleases []agent.Release, candidates []graphNode, allowDowngrade bool) *agent.Release {
	var best *agent.Release
	for _, node := range candidates {
		release := node.toRelease()
		if release.Equal(current) {
			continue
		}
		if containsRelease(localReleases, release) {
			continue
		}
		if !allowDowngrade && release.Less(current) {
			continue
		}
		if best == nil || best.Less(release) {
			r := release
			best = &r
		}
	}
	return best
}

// containsRelease reports whether releases already contains r (by checksum
// equality, the spec-defined Release equality).
func containsRelease(releases []agent.Release, r agent.Release) bool {
	for _, existing := range releases {
		if existing.Equal(r) {
			return true
		}
	}
	return false
}
