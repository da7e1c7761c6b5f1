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

// Package config provides configuration types and loading for the update
// agent daemon.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the update agent daemon.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	AllowDowngrade bool          `yaml:"allow_downgrade"`
	SteadyInterval time.Duration `yaml:"steady_interval"`

	Deployment    DeploymentConfig    `yaml:"deployment"`
	UpdateGraph   UpdateGraphConfig   `yaml:"updategraph"`
	Strategy      StrategyConfig      `yaml:"strategy"`
	IPC           IPCConfig           `yaml:"ipc"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DeploymentConfig configures the subprocess-driven deployment client.
type DeploymentConfig struct {
	BinaryPath      string `yaml:"binary_path"`
	DeploymentsDir  string `yaml:"deployments_dir"`
	ClientID        string `yaml:"client_id"`
}

// UpdateGraphConfig configures the remote update-graph HTTP client.
type UpdateGraphConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StrategyConfig selects and configures the pluggable update strategy.
type StrategyConfig struct {
	Kind     string         `yaml:"kind"`
	Periodic PeriodicConfig `yaml:"periodic"`
	Fleetlock FleetlockConfig `yaml:"fleetlock"`
	Plugin   PluginConfig   `yaml:"plugin"`
}

// PeriodicConfig configures the periodic-window strategy.
type PeriodicConfig struct {
	WindowStart string   `yaml:"window_start"` // "HH:MM"
	Length      time.Duration `yaml:"length"`
	Days        []string `yaml:"days"`
}

// FleetlockConfig configures the Consul-backed fleet-lock strategy.
type FleetlockConfig struct {
	ConsulAddr string `yaml:"consul_addr"`
	LockKey    string `yaml:"lock_key"`
	LockGroup  string `yaml:"lock_group"`
}

// PluginConfig configures an external strategy plugin binary.
type PluginConfig struct {
	Path string `yaml:"path"`
}

// IPCConfig configures the D-Bus control surface.
type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

// ObservabilityConfig configures metrics exposure.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures the slog-based logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SetDefaults fills in zero-valued fields with the daemon's defaults.
func (c *Config) SetDefaults() {
	if c.SteadyInterval == 0 {
		c.SteadyInterval = 5 * time.Minute
	}
	if c.Deployment.BinaryPath == "" {
		c.Deployment.BinaryPath = "rpm-ostree"
	}
	if c.Deployment.DeploymentsDir == "" {
		c.Deployment.DeploymentsDir = "/ostree/deploy"
	}
	if c.Deployment.ClientID == "" {
		c.Deployment.ClientID = "fleetedge-agentd"
	}
	if c.UpdateGraph.Timeout == 0 {
		c.UpdateGraph.Timeout = 30 * time.Second
	}
	if c.Strategy.Kind == "" {
		c.Strategy.Kind = "immediate"
	}
	if c.IPC.SocketPath == "" {
		c.IPC.SocketPath = "/run/fleetedge-agentd/ipc.sock"
	}
	if c.Observability.Metrics.ListenAddr == "" {
		c.Observability.Metrics.ListenAddr = ":9556"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// Validate checks the configuration against the core's documented bounds
// (spec §4.7's "Constants" contracts).
func (c *Config) Validate() error {
	if c.SteadyInterval < time.Minute || c.SteadyInterval > 24*time.Hour {
		return fmt.Errorf("steady_interval must be within [1m, 24h], got %s", c.SteadyInterval)
	}
	switch c.Strategy.Kind {
	case "immediate", "periodic", "fleetlock", "plugin":
	default:
		return fmt.Errorf("unknown strategy kind: %q", c.Strategy.Kind)
	}
	if c.Strategy.Kind == "fleetlock" && c.Strategy.Fleetlock.LockKey == "" {
		return fmt.Errorf("strategy.fleetlock.lock_key is required for the fleetlock strategy")
	}
	if c.Strategy.Kind == "plugin" && c.Strategy.Plugin.Path == "" {
		return fmt.Errorf("strategy.plugin.path is required for the plugin strategy")
	}
	return nil
}
