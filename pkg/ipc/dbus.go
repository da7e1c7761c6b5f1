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

// Package ipc exposes agent.IpcSurface over a D-Bus system bus service,
// grounded in original_source's updates.rs zbus interface
// (org.coreos.zincati.Updates) but renamed to this project's own bus name
// and translated from zbus's actor-message dispatch to godbus/dbus/v5's
// exported-method dispatch.
package ipc

import (
	"context"
	"log/slog"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/godbus/dbus/v5"
)

const (
	// busName is the well-known D-Bus name this service acquires.
	busName = "io.fleetedge.Agentd"
	// objectPath is the object exposing the Updates interface.
	objectPath = dbus.ObjectPath("/io/fleetedge/Agentd/Updates")
	// interfaceName is the interface external callers (a CLI, a health
	// check) invoke CheckUpdate/FinalizeUpdate on.
	interfaceName = "io.fleetedge.Agentd.Updates"
)

// Service binds an agent.IpcSurface to a D-Bus object, translating exported
// method calls into surface calls and reflecting errors back as D-Bus
// errors.
type Service struct {
	conn    *dbus.Conn
	surface *agent.IpcSurface
}

// updatesObject is the type godbus reflects exported D-Bus methods from.
// Its method signatures match the org.coreos.zincati.Updates D-Bus contract:
// CheckUpdate() (as) and FinalizeUpdate(force bool) (as).
type updatesObject struct {
	surface *agent.IpcSurface
}

// CheckUpdate forces an immediate update check. Returns an empty array when
// no new update is available, or a single-element array with the available
// version.
func (u *updatesObject) CheckUpdate() ([]string, *dbus.Error) {
	versions, err := u.surface.CheckUpdate(context.Background())
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return versions, nil
}

// FinalizeUpdate forces an immediate finalization attempt. force bypasses
// the active-user-session gate.
func (u *updatesObject) FinalizeUpdate(force bool) ([]string, *dbus.Error) {
	versions, err := u.surface.FinalizeUpdate(context.Background(), force)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return versions, nil
}

// Status reports the agent's current state name and the UTC unix timestamp
// recorded at the start of its most recent tick.
func (u *updatesObject) Status() (string, int64, *dbus.Error) {
	state, lastRefresh := u.surface.Status(context.Background())
	return state, lastRefresh, nil
}

// New connects to the bus, claims busName, and exports surface under
// objectPath/interfaceName. When socketPath is non-empty, it dials a private
// unix socket there instead of the well-known system bus, for deployments
// that run the agent off the host D-Bus (e.g. a container test harness).
// Call Close to release the name and connection.
func New(surface *agent.IpcSurface, socketPath string) (*Service, error) {
	conn, err := dial(socketPath)
	if err != nil {
		return nil, err
	}

	obj := &updatesObject{surface: surface}
	if err := conn.Export(obj, objectPath, interfaceName); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, errNameTaken
	}

	slog.Info("ipc: claimed d-bus name", "name", busName, "path", string(objectPath))
	return &Service{conn: conn, surface: surface}, nil
}

// dial connects to a private unix socket at socketPath, or the well-known
// system bus when socketPath is empty.
func dial(socketPath string) (*dbus.Conn, error) {
	if socketPath == "" {
		return dbus.ConnectSystemBus()
	}
	conn, err := dbus.Dial("unix:path=" + socketPath)
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

var errNameTaken = dbusNameTakenError("ipc: bus name already owned by another process")

type dbusNameTakenError string

func (e dbusNameTakenError) Error() string { return string(e) }

// Close releases the bus name and closes the connection.
func (s *Service) Close() error {
	if _, err := s.conn.ReleaseName(busName); err != nil {
		slog.Warn("ipc: failed to release bus name", "error", err)
	}
	return s.conn.Close()
}
