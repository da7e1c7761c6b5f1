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

// Package sessions implements agent.UserSessionChecker by querying
// systemd-logind over D-Bus for active interactive sessions, using the same
// godbus/dbus/v5 dependency pkg/ipc uses for its own bus traffic.
package sessions

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInterface = "org.freedesktop.login1.Manager"
)

// session mirrors one row of logind's ListSessions reply: (id, uid, name,
// seat, object path).
type session struct {
	ID   string
	UID  uint32
	Name string
	Seat string
	Path dbus.ObjectPath
}

// Checker implements agent.UserSessionChecker against systemd-logind.
type Checker struct {
	conn *dbus.Conn
}

// New connects to the system bus for logind queries.
func New() (*Checker, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("sessions: failed to connect to system bus: %w", err)
	}
	return &Checker{conn: conn}, nil
}

// Close releases the underlying bus connection.
func (c *Checker) Close() error {
	return c.conn.Close()
}

// ActiveSessionsBlockFinalize reports whether logind's ListSessions returns
// any session with a seat assigned; per spec §4.7 such a session delays
// finalization (and thus the reboot it implies) until the session ends or
// postponements run out. The sessions' Active, Remote and Class properties
// are not queried.
func (c *Checker) ActiveSessionsBlockFinalize(ctx context.Context) bool {
	obj := c.conn.Object(logindDest, logindPath)

	var rows [][]interface{}
	call := obj.CallWithContext(ctx, logindInterface+".ListSessions", 0)
	if err := call.Store(&rows); err != nil {
		// Can't determine session state; fail open rather than stall
		// finalization indefinitely on a logind query error.
		return false
	}

	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		seat, _ := row[3].(string)
		if seat != "" {
			return true
		}
	}
	return false
}
