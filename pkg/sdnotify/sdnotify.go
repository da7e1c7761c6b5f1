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

// Package sdnotify implements agent.NotifySink over the systemd service
// notification protocol, letting the unit declare Type=notify and have the
// supervisor wait for readiness instead of guessing from process start.
package sdnotify

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Sink reports readiness and status text to systemd via sd_notify. When the
// process is not running under systemd (NOTIFY_SOCKET unset), all calls are
// silent no-ops, matching daemon.SdNotify's own behavior.
type Sink struct{}

// New builds a Sink.
func New() *Sink { return &Sink{} }

// Ready notifies systemd that startup has completed.
func (s *Sink) Ready() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Warn("sdnotify: failed to send READY", "error", err)
	} else if !ok {
		slog.Debug("sdnotify: not running under systemd notify supervision")
	}
}

// Status reports a human-readable status string via STATUS=.
func (s *Sink) Status(msg string) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStatus+msg); err != nil {
		slog.Warn("sdnotify: failed to send STATUS", "error", err)
	}
}
