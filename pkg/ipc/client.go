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

package ipc

import "github.com/godbus/dbus/v5"

// Client calls a running Service's Updates interface from another process,
// e.g. the agentd CLI's check/finalize subcommands.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the Service at socketPath (or the system bus, when
// empty) and binds to its Updates object.
func Dial(socketPath string) (*Client, error) {
	conn, err := dial(socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, obj: conn.Object(busName, objectPath)}, nil
}

// Close closes the underlying bus connection.
func (c *Client) Close() error { return c.conn.Close() }

// CheckUpdate invokes the daemon's CheckUpdate method.
func (c *Client) CheckUpdate() ([]string, error) {
	var versions []string
	err := c.obj.Call(interfaceName+".CheckUpdate", 0).Store(&versions)
	return versions, err
}

// FinalizeUpdate invokes the daemon's FinalizeUpdate method.
func (c *Client) FinalizeUpdate(force bool) ([]string, error) {
	var versions []string
	err := c.obj.Call(interfaceName+".FinalizeUpdate", 0, force).Store(&versions)
	return versions, err
}

// Status invokes the daemon's Status method.
func (c *Client) Status() (state string, lastRefresh int64, err error) {
	err = c.obj.Call(interfaceName+".Status", 0).Store(&state, &lastRefresh)
	return state, lastRefresh, err
}
