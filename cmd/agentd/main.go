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

// Command agentd is the host-side auto-update agent.
//
// Usage:
//
//	agentd serve --config /etc/fleetedge/agentd.yaml
//	agentd check
//	agentd finalize --force
//	agentd status
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"

	"github.com/fleetedge/agentd/pkg/agent"
	"github.com/fleetedge/agentd/pkg/config"
	"github.com/fleetedge/agentd/pkg/deployment"
	"github.com/fleetedge/agentd/pkg/ipc"
	"github.com/fleetedge/agentd/pkg/logger"
	"github.com/fleetedge/agentd/pkg/nodeid"
	"github.com/fleetedge/agentd/pkg/sdnotify"
	"github.com/fleetedge/agentd/pkg/sessions"
	"github.com/fleetedge/agentd/pkg/strategy/fleetlock"
	"github.com/fleetedge/agentd/pkg/strategy/immediate"
	"github.com/fleetedge/agentd/pkg/strategy/periodic"
	pluginstrategy "github.com/fleetedge/agentd/pkg/strategy/plugin"
	"github.com/fleetedge/agentd/pkg/updategraph"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Run the update agent daemon."`
	Check    CheckCmd    `cmd:"" help:"Ask the running daemon to check for an update now."`
	Finalize FinalizeCmd `cmd:"" help:"Ask the running daemon to finalize a staged update now."`
	Status   StatusCmd   `cmd:"" help:"Report local deployment status, optionally watching for changes."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config     string `short:"c" help:"Path to config file." type:"path" default:"/etc/fleetedge/agentd.yaml"`
	LogLevel   string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile    string `help:"Log file path (empty = stderr)."`
	LogFormat  string `help:"Log format (simple, verbose, or custom)." default:"simple"`
	SocketPath string `help:"Private D-Bus socket path (empty = host system bus)." default:"/run/fleetedge-agentd/ipc.sock"`
	NodeIDPath string `help:"Path to the persisted stable node identifier." default:"/var/lib/fleetedge-agentd/node-id"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run prints the build version, the same way debug.ReadBuildInfo is used
// throughout the teacher's CLI commands.
func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentd version %s\n", version)
	return nil
}

// CheckCmd forces an immediate update check against the running daemon.
type CheckCmd struct{}

func (c *CheckCmd) Run(cli *CLI) error {
	client, err := ipc.Dial(cli.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to agentd: %w", err)
	}
	defer client.Close()

	versions, err := client.CheckUpdate()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("no new update available")
		return nil
	}
	fmt.Printf("update available: %s\n", versions[0])
	return nil
}

// FinalizeCmd forces an immediate finalization attempt against the running
// daemon.
type FinalizeCmd struct {
	Force bool `help:"Bypass the active-user-sessions gate (not the update strategy gate)."`
}

func (c *FinalizeCmd) Run(cli *CLI) error {
	client, err := ipc.Dial(cli.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to agentd: %w", err)
	}
	defer client.Close()

	versions, err := client.FinalizeUpdate(c.Force)
	if err != nil {
		return err
	}
	fmt.Printf("update finalized: %s\n", versions[0])
	return nil
}

// StatusCmd reports local deployment status by driving the deployment
// client directly rather than the running daemon's IPC surface (SPEC_FULL
// §10.3): a one-shot snapshot by default, or continuous polling with
// --watch.
type StatusCmd struct {
	Watch    bool          `help:"Continuously poll and report status on an interval."`
	Interval time.Duration `help:"Polling interval when --watch is set." default:"10s"`
}

func (c *StatusCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, loader, err := config.LoadConfigFile(ctx, cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Close()

	client := deployment.New(cfg.Deployment.BinaryPath, cfg.Deployment.DeploymentsDir, cfg.Deployment.ClientID)

	var interval time.Duration
	if c.Watch {
		interval = c.Interval
	}

	for deployments, err := range client.Snapshots(ctx, interval) {
		if err != nil {
			return fmt.Errorf("failed to query deployment status: %w", err)
		}
		printDeployments(deployments)
		if c.Watch {
			fmt.Println("---")
		}
	}
	return nil
}

// printDeployments renders a status snapshot, one release per line.
func printDeployments(deployments []agent.Release) {
	if len(deployments) == 0 {
		fmt.Println("no local deployments found")
		return
	}
	for _, d := range deployments {
		fmt.Printf("version: %-20s checksum: %s\n", d.Version, d.Checksum)
	}
}

// ServeCmd runs the update agent daemon: it loads configuration, wires the
// collaborators it names, and drives the AgentLoop until signaled to stop.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)
	log := logger.GetLogger()

	cfg, loader, err := config.LoadConfigFile(ctx, cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Close()

	metrics := agent.NewMetrics("agentd")

	deploymentClient := deployment.New(
		cfg.Deployment.BinaryPath, cfg.Deployment.DeploymentsDir, cfg.Deployment.ClientID,
		deployment.WithMetrics("agentd", metrics.Registry()),
	)

	booted, basearch, stream, err := deploymentClient.Identity(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine host identity: %w", err)
	}
	nodeID, err := nodeid.Load(cli.NodeIDPath)
	if err != nil {
		log.Warn("failed to load persisted node id, falling back to hostname", "error", err)
		nodeID, err = os.Hostname()
		if err != nil {
			nodeID = "unknown"
		}
	}
	identity := agent.Identity{NodeID: nodeID, CurrentOS: booted, BaseArch: basearch, Stream: stream}

	updateGraphClient := updategraph.New(cfg.UpdateGraph.URL, cfg.UpdateGraph.Timeout)

	strat, closeStrategy, err := buildStrategy(cfg.Strategy, nodeID)
	if err != nil {
		return err
	}
	if closeStrategy != nil {
		defer closeStrategy()
	}

	var sessionChecker agent.UserSessionChecker
	if checker, err := sessions.New(); err != nil {
		log.Warn("failed to connect to logind, user-session gating disabled", "error", err)
	} else {
		defer checker.Close()
		sessionChecker = checker
	}

	notify := sdnotify.New()

	loop := agent.NewAgentLoop(agent.Config{
		Identity:       identity,
		Enabled:        cfg.Enabled,
		AllowDowngrade: cfg.AllowDowngrade,
		SteadyInterval: cfg.SteadyInterval,
		Deployment:     deploymentClient,
		UpdateGraph:    updateGraphClient,
		Strategy:       strat,
		Sessions:       sessionChecker,
		Notify:         notify,
		Metrics:        metrics,
	})

	if cfg.Observability.Metrics.Enabled {
		go serveMetrics(cfg.Observability.Metrics.ListenAddr, metrics)
	}

	surface := agent.NewIpcSurface(loop)
	ipcService, err := ipc.New(surface, cli.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to start ipc service: %w", err)
	}
	defer ipcService.Close()

	go func() {
		if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Error("config watch error", "error", err)
		}
	}()

	return loop.Run(ctx)
}

// buildStrategy selects and constructs the configured update strategy, the
// kong ServeCmd's analogue of the teacher's provider-selection switches.
func buildStrategy(cfg config.StrategyConfig, nodeID string) (agent.Strategy, func(), error) {
	switch cfg.Kind {
	case "", "immediate":
		return immediate.New(), nil, nil

	case "periodic":
		window, err := periodic.NewWindow(cfg.Periodic.WindowStart, cfg.Periodic.Length, cfg.Periodic.Days)
		if err != nil {
			return nil, nil, err
		}
		return periodic.New(window), nil, nil

	case "fleetlock":
		s, err := fleetlock.New(fleetlock.Config{
			ConsulAddr: cfg.Fleetlock.ConsulAddr,
			LockKey:    cfg.Fleetlock.LockKey,
			LockGroup:  cfg.Fleetlock.LockGroup,
			NodeID:     nodeID,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Release() }, nil

	case "plugin":
		loader := pluginstrategy.NewLoader()
		strat, closeFn, err := loader.Load(cfg.Plugin.Path)
		if err != nil {
			return nil, nil, err
		}
		return strat, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown strategy kind: %q", cfg.Kind)
	}
}

// serveMetrics exposes the agent's Prometheus registry over HTTP via
// go-chi and promhttp, the same transport pairing named in spec_full §11.6.
func serveMetrics(addr string, metrics *agent.Metrics) {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.GetLogger().Error("metrics server stopped", "error", err)
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentd"),
		kong.Description("Host-side auto-update agent for image-based deployments."),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
