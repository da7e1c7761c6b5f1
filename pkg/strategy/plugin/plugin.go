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

// Package plugin loads an agent.Strategy implementation out of process over
// hashicorp/go-plugin's net/rpc transport, adapted from the teacher's gRPC
// plugin loader (pkg/plugins/grpc) but reduced to the simpler net/rpc
// protocol: a strategy plugin exposes three tiny boolean/void calls, which
// does not need protobuf-generated stubs.
package plugin

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake identifies compatible strategy plugin binaries.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "FLEETEDGE_AGENTD_STRATEGY_PLUGIN",
	MagicCookieValue: "fleetedge_agentd_strategy_plugin_v1",
}

// pluginMapKey is the single dispensed service name a strategy plugin binary
// must register under.
const pluginMapKey = "strategy"

// StrategyPlugin is the go-plugin Plugin implementation shared by host and
// plugin binary; Impl is set on the plugin side, nil on the host side.
type StrategyPlugin struct {
	Impl agent.Strategy
}

func (p *StrategyPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *StrategyPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcClient{client: c}, nil
}

var _ goplugin.Plugin = (*StrategyPlugin)(nil)

// rpcServer runs inside the plugin binary, fulfilling RPC calls against a
// locally held agent.Strategy.
type rpcServer struct {
	impl agent.Strategy
}

func (s *rpcServer) ReportSteady(args interface{}, resp *bool) error {
	*resp = s.impl.ReportSteady(context.Background())
	return nil
}

func (s *rpcServer) CanFinalize(args interface{}, resp *bool) error {
	*resp = s.impl.CanFinalize(context.Background())
	return nil
}

func (s *rpcServer) RecordDetails(args interface{}, resp *bool) error {
	s.impl.RecordDetails(context.Background())
	*resp = true
	return nil
}

// rpcClient runs in the host process and implements agent.Strategy by
// forwarding calls to the plugin binary over net/rpc.
type rpcClient struct {
	client *rpc.Client
}

var _ agent.Strategy = (*rpcClient)(nil)

func (c *rpcClient) ReportSteady(ctx context.Context) bool {
	var resp bool
	if err := c.client.Call("Plugin.ReportSteady", new(interface{}), &resp); err != nil {
		return false
	}
	return resp
}

func (c *rpcClient) CanFinalize(ctx context.Context) bool {
	var resp bool
	if err := c.client.Call("Plugin.CanFinalize", new(interface{}), &resp); err != nil {
		return false
	}
	return resp
}

func (c *rpcClient) RecordDetails(ctx context.Context) {
	var resp bool
	_ = c.client.Call("Plugin.RecordDetails", new(interface{}), &resp)
}

// Loader launches a strategy plugin binary and returns an agent.Strategy
// backed by it, along with a Close func that terminates the subprocess.
type Loader struct {
	logger hclog.Logger
}

// NewLoader builds a Loader.
func NewLoader() *Loader {
	return &Loader{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:  "agentd-strategy-plugin",
			Level: hclog.Warn,
		}),
	}
}

// Load starts the binary at path and returns its agent.Strategy, plus a
// close func that must be called to terminate the subprocess.
func (l *Loader) Load(path string) (agent.Strategy, func(), error) {
	if path == "" {
		return nil, nil, fmt.Errorf("plugin: path is required")
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          map[string]goplugin.Plugin{pluginMapKey: &StrategyPlugin{}},
		Cmd:              exec.Command(path),
		Logger:           l.logger,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: failed to start %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(pluginMapKey)
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: failed to dispense strategy: %w", err)
	}

	strategy, ok := raw.(agent.Strategy)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: %s does not implement agent.Strategy over RPC", path)
	}

	return strategy, client.Kill, nil
}

// Serve runs a strategy plugin binary's main loop, dispensing impl to the
// host process. Strategy plugin authors call this from their binary's main.
func Serve(impl agent.Strategy) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         map[string]goplugin.Plugin{pluginMapKey: &StrategyPlugin{Impl: impl}},
	})
}
