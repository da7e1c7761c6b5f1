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

// Package deployment implements the DeploymentClient collaborator: a
// subprocess-driven view of the host's image-based deployment subsystem,
// grounded in the original rpm-ostree status --json contract.
package deployment

import (
	"fmt"

	"github.com/fleetedge/agentd/pkg/agent"
)

// statusJSON mirrors the subset of `status --json` output this agent reads.
type statusJSON struct {
	Deployments []deploymentJSON `json:"deployments"`
}

// deploymentJSON is the partial deployment object relevant to this agent.
type deploymentJSON struct {
	Booted       bool               `json:"booted"`
	BaseChecksum *string            `json:"base_checksum,omitempty"`
	BaseMetadata baseCommitMetaJSON `json:"base-commit-meta"`
	Checksum     string             `json:"checksum"`
	Staged       bool               `json:"staged,omitempty"`
	Version      string             `json:"version"`
}

// baseCommitMetaJSON is metadata carried on the base commit.
type baseCommitMetaJSON struct {
	BaseArch string `json:"coreos-assembler.basearch"`
	Stream   string `json:"fedora-coreos.stream"`
}

// baseRevision returns the deployment's base checksum, falling back to its
// plain checksum when no base-layering checksum is present.
func (d deploymentJSON) baseRevision() string {
	if d.BaseChecksum != nil && *d.BaseChecksum != "" {
		return *d.BaseChecksum
	}
	return d.Checksum
}

func (d deploymentJSON) toRelease() agent.Release {
	return agent.Release{Version: d.Version, Checksum: d.baseRevision()}
}

// bootedJSON locates the booted deployment and validates its required
// fields, matching the original's booted_json checks.
func bootedJSON(status statusJSON) (deploymentJSON, error) {
	for _, d := range status.Deployments {
		if !d.Booted {
			continue
		}
		if d.baseRevision() == "" {
			return deploymentJSON{}, fmt.Errorf("empty base revision")
		}
		if d.Version == "" {
			return deploymentJSON{}, fmt.Errorf("empty version")
		}
		if d.BaseMetadata.BaseArch == "" {
			return deploymentJSON{}, fmt.Errorf("empty basearch")
		}
		return d, nil
	}
	return deploymentJSON{}, fmt.Errorf("no booted deployment found")
}

// parseBasearch returns the booted deployment's base architecture.
func parseBasearch(status statusJSON) (string, error) {
	d, err := bootedJSON(status)
	if err != nil {
		return "", err
	}
	return d.BaseMetadata.BaseArch, nil
}

// parseBooted returns the booted deployment as a Release.
func parseBooted(status statusJSON) (agent.Release, error) {
	d, err := bootedJSON(status)
	if err != nil {
		return agent.Release{}, err
	}
	return d.toRelease(), nil
}

// parseUpdatesStream returns the booted deployment's update stream.
func parseUpdatesStream(status statusJSON) (string, error) {
	d, err := bootedJSON(status)
	if err != nil {
		return "", err
	}
	if d.BaseMetadata.Stream == "" {
		return "", fmt.Errorf("empty stream value")
	}
	return d.BaseMetadata.Stream, nil
}

// parseLocalDeployments extracts releases for every local deployment,
// optionally omitting those that are staged but not yet booted.
func parseLocalDeployments(status statusJSON, omitStaged bool) []agent.Release {
	var out []agent.Release
	for _, d := range status.Deployments {
		if omitStaged && d.Staged {
			continue
		}
		out = append(out, d.toRelease())
	}
	return out
}
