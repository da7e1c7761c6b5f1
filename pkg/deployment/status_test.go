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
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, path string) statusJSON {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var status statusJSON
	require.NoError(t, json.Unmarshal(data, &status))
	return status
}

func TestParseLocalDeployments_SingleBootedDeployment(t *testing.T) {
	status := loadFixture(t, "testdata/status.json")
	deployments := parseLocalDeployments(status, false)
	require.Len(t, deployments, 1)
}

func TestParseLocalDeployments_OmitsStaged(t *testing.T) {
	status := loadFixture(t, "testdata/staged.json")

	all := parseLocalDeployments(status, false)
	require.Len(t, all, 2)

	onlyBooted := parseLocalDeployments(status, true)
	require.Len(t, onlyBooted, 1)
}

func TestBootedJSON_Basearch(t *testing.T) {
	status := loadFixture(t, "testdata/status.json")
	arch, err := parseBasearch(status)
	require.NoError(t, err)
	require.Equal(t, "x86_64", arch)
}

func TestBootedJSON_UpdatesStream(t *testing.T) {
	status := loadFixture(t, "testdata/status.json")
	d, err := bootedJSON(status)
	require.NoError(t, err)
	require.Equal(t, "testing-devel", d.BaseMetadata.Stream)
}

func TestBootedJSON_NoBootedDeploymentIsAnError(t *testing.T) {
	status := statusJSON{Deployments: []deploymentJSON{{Booted: false}}}
	_, err := bootedJSON(status)
	require.Error(t, err)
}

func TestBaseRevision_FallsBackToChecksum(t *testing.T) {
	d := deploymentJSON{Checksum: "plain"}
	require.Equal(t, "plain", d.baseRevision())

	layered := "layered"
	d.BaseChecksum = &layered
	require.Equal(t, "layered", d.baseRevision())
}
