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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/stretchr/testify/require"
)

// writeFakeStatusBinary drops a tiny shell script masquerading as the
// status binary: it echoes fixturePath's contents whenever invoked with
// "status --json", and no-ops otherwise so Stage/Finalize calls succeed.
func writeFakeStatusBinary(t *testing.T, fixturePath string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-status")
	contents := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "status" ]; then
  cat %q
else
  exit 0
fi
`, fixturePath)
	require.NoError(t, os.WriteFile(script, []byte(contents), 0o755))
	return script
}

func TestClient_QueryLocalDeployments(t *testing.T) {
	fixture, err := filepath.Abs("testdata/status.json")
	require.NoError(t, err)
	binary := writeFakeStatusBinary(t, fixture)

	deploymentsDir := t.TempDir()
	client := New(binary, deploymentsDir, "agentd-test")

	releases, err := client.QueryLocalDeployments(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, releases, 1)
	require.Equal(t, "39.20231201.1.0", releases[0].Version)
}

func TestClient_QueryLocalDeployments_CachesUntilMtimeChanges(t *testing.T) {
	fixture, err := filepath.Abs("testdata/status.json")
	require.NoError(t, err)
	binary := writeFakeStatusBinary(t, fixture)

	deploymentsDir := t.TempDir()
	client := New(binary, deploymentsDir, "agentd-test")

	_, err = client.QueryLocalDeployments(context.Background(), false)
	require.NoError(t, err)

	client.mu.Lock()
	cachedBefore := client.cache
	client.mu.Unlock()
	require.NotNil(t, cachedBefore)

	_, err = client.QueryLocalDeployments(context.Background(), false)
	require.NoError(t, err)

	client.mu.Lock()
	cachedAfter := client.cache
	client.mu.Unlock()
	require.Equal(t, cachedBefore.mtime, cachedAfter.mtime)
}

func TestClient_StageAndFinalize_InvalidateCache(t *testing.T) {
	fixture, err := filepath.Abs("testdata/status.json")
	require.NoError(t, err)
	binary := writeFakeStatusBinary(t, fixture)

	deploymentsDir := t.TempDir()
	client := New(binary, deploymentsDir, "agentd-test")

	release := agent.Release{Version: "40.1", Checksum: "abc"}
	staged, err := client.Stage(context.Background(), release, false)
	require.NoError(t, err)
	require.Equal(t, release, staged)

	client.mu.Lock()
	require.Nil(t, client.cache)
	client.mu.Unlock()

	finalized, err := client.Finalize(context.Background(), release)
	require.NoError(t, err)
	require.Equal(t, release, finalized)
}
