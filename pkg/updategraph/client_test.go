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

package updategraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/stretchr/testify/require"
)

func TestFetchUpdateHint_ReturnsHighestEligibleRelease(t *testing.T) {
	age4 := uint64(4)
	age5 := uint64(5)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(graphResponse{
			Nodes: []graphNode{
				{Version: "39.1", Checksum: "booted", AgeIndex: &age4},
				{Version: "40.20240101.0", Checksum: "abc", AgeIndex: &age5},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	identity := agent.Identity{
		NodeID:    "node-1",
		CurrentOS: agent.Release{Version: "39.1", Checksum: "booted", AgeIndex: &age4},
	}

	hint, err := client.FetchUpdateHint(context.Background(), identity, nil, false)
	require.NoError(t, err)
	require.NotNil(t, hint)
	require.Equal(t, "40.20240101.0", hint.Version)
}

func TestFetchUpdateHint_NoEligibleReleaseReturnsNil(t *testing.T) {
	age4 := uint64(4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(graphResponse{
			Nodes: []graphNode{
				{Version: "39.1", Checksum: "booted", AgeIndex: &age4},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	identity := agent.Identity{
		CurrentOS: agent.Release{Version: "39.1", Checksum: "booted", AgeIndex: &age4},
	}

	hint, err := client.FetchUpdateHint(context.Background(), identity, nil, false)
	require.NoError(t, err)
	require.Nil(t, hint)
}

func TestPickTarget_RejectsDowngradeUnlessAllowed(t *testing.T) {
	age4 := uint64(4)
	age2 := uint64(2)
	current := agent.Release{Version: "39.1", Checksum: "current", AgeIndex: &age4}
	older := graphNode{Version: "38.1", Checksum: "older", AgeIndex: &age2}

	require.Nil(t, pickTarget(current, nil, []graphNode{older}, false))

	got := pickTarget(current, nil, []graphNode{older}, true)
	require.NotNil(t, got)
	require.Equal(t, "38.1", got.Version)
}

func TestPickTarget_ExcludesReleaseAlreadyLocal(t *testing.T) {
	age4 := uint64(4)
	age5 := uint64(5)
	current := agent.Release{Version: "39.1", Checksum: "current", AgeIndex: &age4}
	candidate := graphNode{Version: "40.1", Checksum: "local-already", AgeIndex: &age5}
	local := []agent.Release{{Version: "40.1", Checksum: "local-already", AgeIndex: &age5}}

	require.Nil(t, pickTarget(current, local, []graphNode{candidate}, false))
}

func TestFetchUpdateHint_ExcludesReleaseAlreadyLocal(t *testing.T) {
	age4 := uint64(4)
	age5 := uint64(5)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(graphResponse{
			Nodes: []graphNode{
				{Version: "40.1", Checksum: "already-local", AgeIndex: &age5},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	identity := agent.Identity{
		CurrentOS: agent.Release{Version: "39.1", Checksum: "booted", AgeIndex: &age4},
	}
	local := []agent.Release{{Version: "40.1", Checksum: "already-local", AgeIndex: &age5}}

	hint, err := client.FetchUpdateHint(context.Background(), identity, local, false)
	require.NoError(t, err)
	require.Nil(t, hint)
}
