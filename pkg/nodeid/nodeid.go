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

// Package nodeid provides the stable node identifier spec §3's Identity
// requires: "a stable node identifier... fixed for the agent's lifetime".
// A hostname can change across reprovisioning; this package persists a
// generated identifier to disk the first time it is needed and reuses it
// on every subsequent load, the same persisted-identifier idiom the
// teacher uses for session IDs.
package nodeid

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultPath is where the generated identifier is persisted by default.
const DefaultPath = "/var/lib/fleetedge-agentd/node-id"

// Load returns the node identifier persisted at path, generating and
// persisting a fresh one (via uuid.NewString, the teacher's stable-ID
// generator) if none exists yet.
func Load(path string) (string, error) {
	if path == "" {
		path = DefaultPath
	}

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read node id file %s: %w", path, err)
	}

	id := uuid.NewString()
	if err := persist(path, id); err != nil {
		return "", err
	}
	return id, nil
}

func persist(path, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create node id directory: %w", err)
	}
	if err := os.WriteFile(path, append(bytes.TrimSpace([]byte(id)), '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to persist node id file %s: %w", path, err)
	}
	return nil
}
