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

// Package immediate implements the simplest update strategy: report steady
// immediately and permit finalization unconditionally.
package immediate

import (
	"context"
	"log/slog"
)

// Strategy reaches steady state and permits finalization on the first call,
// every time.
type Strategy struct{}

// New builds an immediate Strategy.
func New() *Strategy { return &Strategy{} }

func (s *Strategy) ReportSteady(ctx context.Context) bool { return true }

func (s *Strategy) CanFinalize(ctx context.Context) bool { return true }

func (s *Strategy) RecordDetails(ctx context.Context) {
	slog.Info("update strategy: immediate (no reboot window, no coordination)")
}
