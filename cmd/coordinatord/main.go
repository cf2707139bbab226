// Copyright 2025 Tom Barlow
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

// Command coordinatord runs the task coordinator daemon: it drives the
// per-project selection loop against a dashboard, dispatches workflows
// over a transport, and exposes Prometheus metrics for the run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/taskforge/internal/config"
	"github.com/tombee/taskforge/internal/coordinator"
	"github.com/tombee/taskforge/internal/log"
	"github.com/tombee/taskforge/pkg/dashboard"
	"github.com/tombee/taskforge/pkg/httpclient"
	"github.com/tombee/taskforge/pkg/observability"
	"github.com/tombee/taskforge/pkg/secrets"
	"github.com/tombee/taskforge/pkg/transport"
	"github.com/tombee/taskforge/pkg/workflow"
	"github.com/tombee/taskforge/pkg/workflow/steps"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "coordinatord",
		Short:         "Coordinator daemon for persona-driven task workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to coordinator config YAML")

	cmd.AddCommand(newRunCommand(&configPath))
	cmd.AddCommand(newValidateWorkflowsCommand(&configPath))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "coordinatord %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

func newValidateWorkflowsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-workflows",
		Short: "Load and validate every workflow definition, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			registry := workflow.NewRegistry()
			steps.Register(registry, &steps.Deps{})
			defs, err := workflow.LoadDirectory(cfg.WorkflowsDir, registry)
			if err != nil {
				return fmt.Errorf("coordinatord: validating workflows in %s: %w", cfg.WorkflowsDir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d workflow definitions from %s\n", len(defs), cfg.WorkflowsDir)
			for name := range defs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
			}
			return nil
		},
	}
}

func newRunCommand(configPath *string) *cobra.Command {
	var (
		projectID   string
		repoBaseDir string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the coordinator selection loop for a single project until it exhausts pending tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("coordinatord: --project is required")
			}
			return runCoordinator(cmd.Context(), *configPath, projectID, repoBaseDir, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "dashboard project ID to run the coordinator loop for")
	cmd.Flags().StringVar(&repoBaseDir, "repo-base-dir", "repos", "parent directory each project's repository is checked out under")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on; empty disables it")
	return cmd
}

func runCoordinator(ctx context.Context, configPath, projectID, repoBaseDir, metricsAddr string) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("coordinatord: loading config: %w", err)
	}

	shutdownTracing, err := observability.NewTracerProvider("coordinatord", version)
	if err != nil {
		return fmt.Errorf("coordinatord: setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics()
	if metricsAddr != "" {
		server := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer server.Close()
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("coordinatord: building transport: %w", err)
	}

	dashboardClient, err := dashboard.New(cfg.DashboardBaseURL, cfg.DashboardAPIKey, httpclient.DefaultConfig())
	if err != nil {
		return fmt.Errorf("coordinatord: building dashboard client: %w", err)
	}

	masker := secrets.NewMasker()
	masker.AddValue(cfg.DashboardAPIKey)

	deps := &steps.Deps{
		Dashboard:         dashboardClient,
		RequestStream:     cfg.RequestStream,
		GroupPrefix:       cfg.GroupPrefix,
		DefaultTimeoutMs:  config.DefaultPersonaTimeoutSeconds * 1000,
		DefaultMaxRetries: cfg.PersonaTimeoutMaxRetries,
		Masker:            masker,
		Logger:            logger,
		Metrics:           metrics,
	}

	registry := workflow.NewRegistry()
	steps.Register(registry, deps)

	defs, err := workflow.LoadDirectory(cfg.WorkflowsDir, registry)
	if err != nil {
		return fmt.Errorf("coordinatord: loading workflows from %s: %w", cfg.WorkflowsDir, err)
	}

	engine := workflow.NewEngine(registry, nil)
	engine.Metrics = metrics

	c := &coordinator.Coordinator{
		Dashboard:     dashboardClient,
		Transport:     tr,
		Registry:      registry,
		Engine:        engine,
		Workflows:     defs,
		MaxIterations: cfg.CoordinatorMaxIterations,
		Logger:        logger,
		RepoBaseDir:   repoBaseDir,
		Metrics:       metrics,
	}

	runCtx, cancel := signalContext(ctx)
	defer cancel()

	result, err := c.Run(runCtx, projectID)
	if err != nil {
		return fmt.Errorf("coordinatord: run failed for project %s: %w", projectID, err)
	}

	if result.Aborted != nil {
		logger.Error("coordinator run aborted",
			"project", projectID,
			"taskId", result.Aborted.TaskID,
			"workflow", result.Aborted.WorkflowName,
			"failedStep", result.Aborted.FailedStep,
			"reason", result.Aborted.Reason,
			"error", result.Aborted.Error,
		)
		return fmt.Errorf("coordinatord: task %s aborted the run: %s", result.Aborted.TaskID, result.Aborted.Error)
	}

	logger.Info("coordinator run complete", "project", projectID, "tasksProcessed", result.TasksProcessed)
	return nil
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	if cfg.RedisAddr == "" {
		mem, err := transport.NewInMemory()
		if err != nil {
			return nil, err
		}
		return mem, nil
	}
	return transport.NewRedisAddr(cfg.RedisAddr), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
