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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelease_Equal(t *testing.T) {
	a := Release{Version: "34.1", Checksum: "abc"}
	b := Release{Version: "34.2", Checksum: "abc"}
	c := Release{Version: "34.1", Checksum: "def"}

	assert.True(t, a.Equal(b), "releases sharing a checksum are equal regardless of version")
	assert.False(t, a.Equal(c))
}

func TestRelease_Less(t *testing.T) {
	age1 := uint64(1)
	age2 := uint64(2)

	withAge1 := Release{Version: "34.1", AgeIndex: &age1}
	withAge2 := Release{Version: "34.0", AgeIndex: &age2}
	noAge := Release{Version: "34.5"}

	assert.True(t, noAge.Less(withAge1), "releases lacking an age index sort before those that have one")
	assert.True(t, withAge1.Less(withAge2), "age index takes precedence over version ordering")
	assert.False(t, withAge2.Less(withAge1))
}

func TestUpdateStagedState_ResetsPostponements(t *testing.T) {
	release := Release{Version: "34.1", Checksum: "abc"}
	s := UpdateStagedState(release)

	assert.Equal(t, KindUpdateStaged, s.Kind())
	assert.Equal(t, MaxPostponements, int(s.PostponementsRemaining()))
}

func TestUpdateStagedWithPostponements_PreservesCount(t *testing.T) {
	release := Release{Version: "34.1", Checksum: "abc"}
	s := UpdateStagedWithPostponements(release, 3)

	assert.Equal(t, uint8(3), s.PostponementsRemaining())
}

func TestAgentState_ZeroValueIsStartState(t *testing.T) {
	var s AgentState
	assert.Equal(t, KindStartState, s.Kind())
}
